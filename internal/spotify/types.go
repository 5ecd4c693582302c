package spotify

import "time"

// Play is one entry of the user's recently played tracks.
type Play struct {
	TrackID   string
	TrackName string
	Artist    string // Comma-separated artist names
	PlayedAt  time.Time
}

// Match is the top catalog search result for a track query.
type Match struct {
	URI        string
	Name       string
	Artist     string
	AlbumCover string // First album image, empty if the album has none
}

// Device is a Spotify Connect playback device.
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
	Volume int
}

// NowPlaying describes the track on the active device.
type NowPlaying struct {
	URI        string
	Title      string
	Artist     string
	AlbumCover string
	Paused     bool
	DeviceID   string
}
