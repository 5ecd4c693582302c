// Package session drives one browser session: login, history load, the
// baseline recommendation that follows it, filters, search and logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/metrics"
	"github.com/justestif/soundify/internal/recommend"
	"github.com/justestif/soundify/internal/state"
)

// ErrNotAuthenticated is returned when an operation needs a credential and
// the session has none.
var ErrNotAuthenticated = errors.New("not authenticated")

// HistoryLoader abstracts history.Loader for testing.
type HistoryLoader interface {
	Load(ctx context.Context, cred auth.Credential) ([]history.Entry, error)
}

// Runner abstracts recommend.Orchestrator for testing.
type Runner interface {
	Go(ctx context.Context, req recommend.Request, cred auth.Credential, sink recommend.Sink) uint64
}

// Archive stores history snapshots. Optional.
type Archive interface {
	SaveHistory(ctx context.Context, scope string, entries []history.Entry) error
}

// Controller wires a state.Store to the loader, orchestrator and storage.
type Controller struct {
	scope   string
	store   *state.Store
	loader  HistoryLoader
	runner  Runner
	storage auth.Storage
	archive Archive

	// background outlives HTTP requests so in-flight recommendations land.
	background context.Context
	now        func() time.Time
	loc        *time.Location
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithArchive records every loaded history.
func WithArchive(a Archive) Option {
	return func(c *Controller) { c.archive = a }
}

// WithBackground sets the context async recommendation requests run under.
func WithBackground(ctx context.Context) Option {
	return func(c *Controller) {
		if ctx != nil {
			c.background = ctx
		}
	}
}

// WithClock overrides time.Now (used by tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the location the login-time bucket is computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records history loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a Controller for the session identified by scope.
func NewController(scope string, store *state.Store, loader HistoryLoader, runner Runner, storage auth.Storage, opts ...Option) *Controller {
	c := &Controller{
		scope:      scope,
		store:      store,
		loader:     loader,
		runner:     runner,
		storage:    storage,
		background: context.Background(),
		now:        time.Now,
		loc:        time.Local,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session", shortScope(scope))
	return c
}

// Scope returns the session identifier.
func (c *Controller) Scope() string {
	return c.scope
}

// Store returns the session state.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Login adopts cred: it is stored, mirrored to durable storage, the
// time-of-day bucket is taken from the current hour, and history is loaded.
func (c *Controller) Login(ctx context.Context, cred auth.Credential) error {
	if cred.Empty() {
		return ErrNotAuthenticated
	}

	c.store.SetCredential(cred)
	if err := auth.SaveCredential(ctx, c.storage, c.scope, cred); err != nil {
		c.logger.Warn("mirroring credential failed", "err", err)
	}
	c.store.SetTimeOfDay(history.BucketAt(c.now(), c.loc))
	c.logger.Info("logged in", "credential", cred.Redacted(), "time_of_day", c.store.TimeOfDay())

	return c.Reload(ctx)
}

// Restore re-adopts a credential mirrored in durable storage. It reports
// whether one was found.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	cred, err := auth.LoadCredential(ctx, c.storage, c.scope)
	if err != nil {
		return false, fmt.Errorf("loading stored credential: %w", err)
	}
	if cred.Empty() {
		return false, nil
	}
	return true, c.Login(ctx, cred)
}

// Reload fetches listening history and, once it is non-empty and a
// time-of-day bucket is set, issues the baseline recommendation request.
func (c *Controller) Reload(ctx context.Context) error {
	cred := c.store.Credential()
	if cred.Empty() {
		return ErrNotAuthenticated
	}

	c.store.BeginHistoryLoad()
	entries, err := c.loader.Load(ctx, cred)
	c.metrics.ObserveHistoryLoad(err)
	if err != nil {
		c.store.FailHistory(err)
		c.logger.Error("loading history failed", "err", err)
		return err
	}
	c.store.SetHistory(entries)
	c.logger.Debug("history loaded", "entries", len(entries))

	if c.archive != nil && len(entries) > 0 {
		if err := c.archive.SaveHistory(ctx, c.scope, entries); err != nil {
			c.logger.Warn("archiving history failed", "err", err)
		}
	}

	tod := c.store.TimeOfDay()
	if len(entries) > 0 && tod != "" {
		c.runner.Go(c.background, recommend.Baseline{TimeOfDay: tod, History: entries}, cred, c.store)
	}
	return nil
}

// ApplyFilters issues a filtered request with the current history and
// bucket. Either genre or mood may be empty. Returns the request's sequence
// number.
func (c *Controller) ApplyFilters(genre, mood string) (uint64, error) {
	cred := c.store.Credential()
	if cred.Empty() {
		return 0, ErrNotAuthenticated
	}
	req := recommend.Filtered{
		TimeOfDay: c.store.TimeOfDay(),
		History:   c.store.History(),
		Genre:     genre,
		Mood:      mood,
	}
	return c.runner.Go(c.background, req, cred, c.store), nil
}

// Search issues a free-text request. An empty query is forwarded as-is.
func (c *Controller) Search(query string) (uint64, error) {
	cred := c.store.Credential()
	if cred.Empty() {
		return 0, ErrNotAuthenticated
	}
	return c.runner.Go(c.background, recommend.Search{Query: query}, cred, c.store), nil
}

// Clear resets the recommendation slot to idle.
func (c *Controller) Clear() {
	c.store.ClearRecommendations()
}

// Logout forgets the mirrored credential and discards all session state.
func (c *Controller) Logout(ctx context.Context) error {
	c.store.Reset()
	if err := auth.ForgetCredential(ctx, c.storage, c.scope); err != nil {
		return fmt.Errorf("forgetting credential: %w", err)
	}
	c.logger.Info("logged out")
	return nil
}

func shortScope(scope string) string {
	if len(scope) > 8 {
		return scope[:8]
	}
	return scope
}
