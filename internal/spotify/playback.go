package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/soundify/internal/auth"
)

// Devices lists the user's available Spotify Connect devices.
func (c *Catalog) Devices(ctx context.Context, cred auth.Credential) ([]Device, error) {
	devices, err := c.api(cred).PlayerDevices(ctx)
	if err != nil {
		return nil, classify("listing devices", err)
	}

	out := make([]Device, len(devices))
	for i, d := range devices {
		out[i] = Device{
			ID:     d.ID.String(),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
			Volume: int(d.Volume),
		}
	}
	return out, nil
}

// Play starts playback of uris on deviceID (PUT /me/player/play?device_id=).
func (c *Catalog) Play(ctx context.Context, cred auth.Credential, deviceID string, uris []string) error {
	opt := playOptions(deviceID)
	opt.URIs = make([]spotify.URI, len(uris))
	for i, u := range uris {
		opt.URIs[i] = spotify.URI(u)
	}
	return classify("starting playback", c.api(cred).PlayOpt(ctx, opt))
}

// Resume resumes playback on deviceID.
func (c *Catalog) Resume(ctx context.Context, cred auth.Credential, deviceID string) error {
	return classify("resuming playback", c.api(cred).PlayOpt(ctx, playOptions(deviceID)))
}

// Pause pauses playback on deviceID.
func (c *Catalog) Pause(ctx context.Context, cred auth.Credential, deviceID string) error {
	return classify("pausing playback", c.api(cred).PauseOpt(ctx, playOptions(deviceID)))
}

// Next skips to the next track on deviceID.
func (c *Catalog) Next(ctx context.Context, cred auth.Credential, deviceID string) error {
	return classify("skipping to next", c.api(cred).NextOpt(ctx, playOptions(deviceID)))
}

// Previous skips to the previous track on deviceID.
func (c *Catalog) Previous(ctx context.Context, cred auth.Credential, deviceID string) error {
	return classify("skipping to previous", c.api(cred).PreviousOpt(ctx, playOptions(deviceID)))
}

// SetVolume sets the volume of deviceID as a percentage (0-100).
func (c *Catalog) SetVolume(ctx context.Context, cred auth.Credential, deviceID string, percent int) error {
	percent = max(0, min(100, percent))
	return classify("setting volume", c.api(cred).VolumeOpt(ctx, percent, playOptions(deviceID)))
}

// NowPlaying returns the current playback state, or nil when nothing is loaded.
func (c *Catalog) NowPlaying(ctx context.Context, cred auth.Credential) (*NowPlaying, error) {
	state, err := c.api(cred).PlayerState(ctx)
	if err != nil {
		return nil, classify("reading player state", err)
	}
	if state == nil || state.Item == nil {
		return nil, nil
	}

	np := convertNowPlaying(state.CurrentlyPlaying)
	np.DeviceID = state.Device.ID.String()
	return &np, nil
}

// playOptions targets deviceID, or the active device when empty.
func playOptions(deviceID string) *spotify.PlayOptions {
	opt := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opt.DeviceID = &id
	}
	return opt
}

// convertNowPlaying converts the currently playing item to NowPlaying.
func convertNowPlaying(cp spotify.CurrentlyPlaying) NowPlaying {
	np := NowPlaying{Paused: !cp.Playing}
	if cp.Item == nil {
		return np
	}

	np.URI = string(cp.Item.URI)
	np.Title = cp.Item.Name
	np.Artist = joinArtists(cp.Item.Artists)
	if len(cp.Item.Album.Images) > 0 {
		np.AlbumCover = cp.Item.Album.Images[0].URL
	}
	return np
}
