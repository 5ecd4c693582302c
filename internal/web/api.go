package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/insights"
	"github.com/justestif/soundify/internal/player"
	"github.com/justestif/soundify/internal/recommend"
	"github.com/justestif/soundify/internal/session"
	"github.com/justestif/soundify/internal/spotify"
	"github.com/justestif/soundify/internal/state"
)

// stateResponse is the full session view plus the player.
type stateResponse struct {
	state.Snapshot
	Player player.State `json:"player"`
}

type filtersResponse struct {
	Genres []string `json:"genres"`
	Moods  []string `json:"moods"`
}

type insightsResponse struct {
	TimeOfDay history.Bucket         `json:"time_of_day"`
	Plays     int                    `json:"plays"`
	Buckets   map[history.Bucket]int `json:"buckets"`
	Peaks     []insights.Window      `json:"peaks"`
}

type filterRequest struct {
	Genre string `json:"genre"`
	Mood  string `json:"mood"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type playRequest struct {
	URIs []string `json:"uris"`
}

type connectRequest struct {
	DeviceID string `json:"device_id"`
}

type volumeRequest struct {
	Volume *int `json:"volume"`
}

type acceptedResponse struct {
	Seq uint64 `json:"seq"`
}

// Filters lists the genre and mood choices (GET /api/filters).
func (h *Handlers) Filters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, filtersResponse{Genres: recommend.Genres, Moods: recommend.Moods})
}

// State returns the session snapshot (GET /api/state).
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	l := liveFrom(r)
	writeJSON(w, http.StatusOK, stateResponse{Snapshot: l.Store().Snapshot(), Player: l.Player.State()})
}

// History returns the loaded listening history (GET /api/history).
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	entries := liveFrom(r).Store().History()
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ReloadHistory refetches listening history (POST /api/history/reload).
// A successful reload issues a fresh baseline request.
func (h *Handlers) ReloadHistory(w http.ResponseWriter, r *http.Request) {
	l := liveFrom(r)
	if err := l.Controller.Reload(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l.Store().Snapshot())
}

// Insights summarizes when the user listens (GET /api/insights).
func (h *Handlers) Insights(w http.ResponseWriter, r *http.Request) {
	store := liveFrom(r).Store()
	entries := store.History()

	peaks, err := insights.PeakWindows(entries, h.insights)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if peaks == nil {
		peaks = []insights.Window{}
	}

	writeJSON(w, http.StatusOK, insightsResponse{
		TimeOfDay: store.TimeOfDay(),
		Plays:     len(entries),
		Buckets:   insights.BucketCounts(entries),
		Peaks:     peaks,
	})
}

// Filter requests recommendations for a genre and mood
// (POST /api/recommendations/filter).
func (h *Handlers) Filter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !recommend.KnownGenre(req.Genre) {
		writeError(w, http.StatusBadRequest, "unknown genre: "+req.Genre)
		return
	}
	if !recommend.KnownMood(req.Mood) {
		writeError(w, http.StatusBadRequest, "unknown mood: "+req.Mood)
		return
	}

	seq, err := liveFrom(r).Controller.ApplyFilters(req.Genre, req.Mood)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Seq: seq})
}

// Search requests recommendations for free text
// (POST /api/recommendations/search). Blank queries are ignored.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	seq, err := liveFrom(r).Controller.Search(query)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Seq: seq})
}

// Clear empties the recommendation slot (POST /api/recommendations/clear).
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	liveFrom(r).Controller.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// PlayerState returns the player view (GET /api/player).
func (h *Handlers) PlayerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, liveFrom(r).Player.State())
}

// PlayerToken hands the browser's playback SDK the session's access token
// (GET /api/player/token).
func (h *Handlers) PlayerToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": string(liveFrom(r).Store().Credential()),
	})
}

// PlayerConnect binds the session to a playback device, normally the
// browser's own SDK player (POST /api/player/connect).
func (h *Handlers) PlayerConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := liveFrom(r).Player
	if err := p.Connect(r.Context(), req.DeviceID); err != nil {
		if errors.Is(err, player.ErrNotReady) {
			writeError(w, http.StatusConflict, "no playback device available")
			return
		}
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.State())
}

// PlayerPlay starts playback (POST /api/player/play). Without URIs in the
// body it plays the playable recommendations in order.
func (h *Handlers) PlayerPlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l := liveFrom(r)
	uris := req.URIs
	if len(uris) == 0 {
		uris = l.Store().Result().URIs()
	}

	h.playerCommand(w, r, func(ctx context.Context) error {
		return l.Player.Play(ctx, uris)
	})
}

// PlayerPause pauses playback (POST /api/player/pause).
func (h *Handlers) PlayerPause(w http.ResponseWriter, r *http.Request) {
	h.playerCommand(w, r, liveFrom(r).Player.Pause)
}

// PlayerResume resumes playback (POST /api/player/resume).
func (h *Handlers) PlayerResume(w http.ResponseWriter, r *http.Request) {
	h.playerCommand(w, r, liveFrom(r).Player.Resume)
}

// PlayerNext skips forward (POST /api/player/next).
func (h *Handlers) PlayerNext(w http.ResponseWriter, r *http.Request) {
	h.playerCommand(w, r, liveFrom(r).Player.Next)
}

// PlayerPrevious skips back (POST /api/player/previous).
func (h *Handlers) PlayerPrevious(w http.ResponseWriter, r *http.Request) {
	h.playerCommand(w, r, liveFrom(r).Player.Previous)
}

// PlayerVolume sets the volume percentage (POST /api/player/volume).
func (h *Handlers) PlayerVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeJSON(r, &req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume is required")
		return
	}

	volume := *req.Volume
	h.playerCommand(w, r, func(ctx context.Context) error {
		return liveFrom(r).Player.SetVolume(ctx, volume)
	})
}

// playerCommand runs a playback control. Commands sent before a device is
// connected are ignored rather than failed.
func (h *Handlers) playerCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	err := fn(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, liveFrom(r).Player.State())
	case errors.Is(err, player.ErrNotReady):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
	case errors.Is(err, player.ErrNoTracks):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeFailure(w, err)
	}
}

// writeFailure maps domain errors to HTTP statuses.
func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, spotify.ErrUnauthorized), errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, spotify.ErrUpstream):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
