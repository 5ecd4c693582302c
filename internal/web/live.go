package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/db"
	"github.com/justestif/soundify/internal/player"
	"github.com/justestif/soundify/internal/recommend"
	"github.com/justestif/soundify/internal/session"
	"github.com/justestif/soundify/internal/spotify"
	"github.com/justestif/soundify/internal/state"
)

// RunRecorder logs settled recommendation results. Optional.
type RunRecorder interface {
	Record(ctx context.Context, run *db.Run) error
}

// Live is the in-process state of one browser session.
type Live struct {
	Controller *session.Controller
	Player     *player.ConnectPlayer

	restoreMu   sync.Mutex
	restored    bool
	unsubscribe func()
}

// Store returns the session state.
func (l *Live) Store() *state.Store {
	return l.Controller.Store()
}

// liveFactory builds the Live for a session ID.
type liveFactory func(id string) *Live

// Registry maps session IDs to their Live state.
type Registry struct {
	mu    sync.Mutex
	lives map[string]*Live
	build liveFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry(build liveFactory) *Registry {
	return &Registry{lives: make(map[string]*Live), build: build}
}

// Get returns the Live for id, creating it on first use.
func (r *Registry) Get(id string) *Live {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lives[id]
	if !ok {
		l = r.build(id)
		r.lives[id] = l
	}
	return l
}

// Remove tears down and forgets the Live for id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	l, ok := r.lives[id]
	delete(r.lives, id)
	r.mu.Unlock()

	if ok {
		l.close()
	}
}

// Close tears down every Live.
func (r *Registry) Close() {
	r.mu.Lock()
	lives := r.lives
	r.lives = make(map[string]*Live)
	r.mu.Unlock()

	for _, l := range lives {
		l.close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lives)
}

func (l *Live) close() {
	l.Player.Disconnect()
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
}

// restore re-adopts a mirrored credential, so a browser keeps its login
// across server restarts. A failed attempt is retried on the next request,
// except when Spotify rejects the credential; that one is forgotten.
func (l *Live) restore(ctx context.Context, logger *log.Logger) {
	l.restoreMu.Lock()
	defer l.restoreMu.Unlock()

	if l.restored {
		return
	}
	if !l.Store().Credential().Empty() {
		l.restored = true
		return
	}

	_, err := l.Controller.Restore(ctx)
	switch {
	case err == nil:
		l.restored = true
	case errors.Is(err, spotify.ErrUnauthorized):
		logger.Warn("stored credential rejected", "err", err)
		if err := l.Controller.Logout(ctx); err != nil {
			logger.Warn("forgetting rejected credential failed", "err", err)
		}
		l.restored = true
	default:
		logger.Warn("restoring session failed", "err", err)
	}
}

// recordRuns subscribes rec to every newly settled result of store.
func recordRuns(ctx context.Context, scope string, store *state.Store, rec RunRecorder, logger *log.Logger) func() {
	var mu sync.Mutex
	var last uint64

	return store.Subscribe(func(snap state.Snapshot) {
		r := snap.Recommendations
		if r.Status != recommend.StatusSucceeded && r.Status != recommend.StatusFailed {
			return
		}
		mu.Lock()
		if r.Seq == 0 || r.Seq == last {
			mu.Unlock()
			return
		}
		last = r.Seq
		mu.Unlock()

		run := toRun(scope, r)
		go func() {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := rec.Record(ctx, run); err != nil {
				logger.Warn("recording recommendation run failed", "err", err)
			}
		}()
	})
}

func toRun(scope string, r recommend.Result) *db.Run {
	run := &db.Run{
		Scope:  scope,
		Seq:    r.Seq,
		Status: string(r.Status),
		Reason: r.Reason,
		Items:  make([]db.RunItem, len(r.Recommendations)),
	}
	for i, e := range r.Recommendations {
		item := db.RunItem{
			TrackName:  e.TrackName,
			ArtistName: e.ArtistName,
			Genre:      e.Genre,
			AlbumCover: e.AlbumCover,
		}
		if e.URI != "" {
			uri := e.URI
			item.URI = &uri
		}
		run.Items[i] = item
	}
	return run
}

// credentialOf adapts a store to the player's credential callback.
func credentialOf(s *state.Store) func() auth.Credential {
	return s.Credential
}
