// Package player controls playback of recommended tracks on a Spotify
// Connect device and publishes now-playing changes.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/spotify"
)

// Name is the device name the browser SDK registers under.
const Name = "Soundify Web Player"

// DefaultVolume is the initial volume percentage.
const DefaultVolume = 50

// DefaultPollInterval is how often playback state is re-read while connected.
const DefaultPollInterval = 2 * time.Second

var (
	// ErrNotReady is returned while no playback device is known. Callers
	// treat it as "ignore the command".
	ErrNotReady = errors.New("player not ready")

	// ErrNoTracks is returned by Play when given no URIs.
	ErrNoTracks = errors.New("no tracks provided for playback")
)

// State is what the player UI shows.
type State struct {
	DeviceID   string `json:"device_id,omitempty"`
	URI        string `json:"uri,omitempty"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	AlbumCover string `json:"album_cover,omitempty"`
	Paused     bool   `json:"paused"`
	Volume     int    `json:"volume"`
}

// Idle returns the state shown before anything plays.
func Idle() State {
	return State{Title: "No Song Playing", Artist: "No Artist", Paused: true, Volume: DefaultVolume}
}

// Player is the playback surface offered to the UI.
type Player interface {
	Connect(ctx context.Context, deviceID string) error
	Disconnect()
	Play(ctx context.Context, uris []string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, percent int) error
	OnStateChanged(fn func(State)) (cancel func())
}

// Remote is the subset of spotify.Catalog the player drives.
type Remote interface {
	Devices(ctx context.Context, cred auth.Credential) ([]spotify.Device, error)
	Play(ctx context.Context, cred auth.Credential, deviceID string, uris []string) error
	Resume(ctx context.Context, cred auth.Credential, deviceID string) error
	Pause(ctx context.Context, cred auth.Credential, deviceID string) error
	Next(ctx context.Context, cred auth.Credential, deviceID string) error
	Previous(ctx context.Context, cred auth.Credential, deviceID string) error
	SetVolume(ctx context.Context, cred auth.Credential, deviceID string, percent int) error
	NowPlaying(ctx context.Context, cred auth.Credential) (*spotify.NowPlaying, error)
}

// ConnectPlayer implements Player over the Spotify Web API.
type ConnectPlayer struct {
	remote   Remote
	cred     func() auth.Credential
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	deviceID  string
	state     State
	stop      context.CancelFunc
	listeners map[int]func(State)
	nextID    int
}

// Option configures a ConnectPlayer.
type Option func(*ConnectPlayer)

// WithPollInterval sets how often state is polled. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(p *ConnectPlayer) {
		p.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *ConnectPlayer) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewConnectPlayer creates a player that authenticates with whatever cred
// returns at call time.
func NewConnectPlayer(remote Remote, cred func() auth.Credential, opts ...Option) *ConnectPlayer {
	p := &ConnectPlayer{
		remote:    remote,
		cred:      cred,
		interval:  DefaultPollInterval,
		logger:    log.Default(),
		state:     Idle(),
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect selects the device to play on. An empty deviceID picks the
// active device, or the first one listed. Polling starts once connected.
func (p *ConnectPlayer) Connect(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		id, err := p.pickDevice(ctx)
		if err != nil {
			return err
		}
		deviceID = id
	}

	p.mu.Lock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	p.deviceID = deviceID
	p.state.DeviceID = deviceID
	volume := p.state.Volume
	p.mu.Unlock()

	p.logger.Info("player ready", "device_id", deviceID)

	if err := p.remote.SetVolume(ctx, p.cred(), deviceID, volume); err != nil {
		p.logger.Warn("applying initial volume failed", "err", err)
	}

	if p.interval > 0 {
		pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p.mu.Lock()
		p.stop = cancel
		p.mu.Unlock()
		go p.poll(pollCtx)
	}
	return nil
}

// Disconnect stops polling and forgets the device.
func (p *ConnectPlayer) Disconnect() {
	p.mu.Lock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	p.deviceID = ""
	p.state = Idle()
	p.mu.Unlock()
}

// DeviceID returns the connected device, empty when not ready.
func (p *ConnectPlayer) DeviceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceID
}

// State returns the last observed playback state.
func (p *ConnectPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Play replaces the queue with uris and starts playback.
func (p *ConnectPlayer) Play(ctx context.Context, uris []string) error {
	device, err := p.ready()
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		return ErrNoTracks
	}
	if err := p.remote.Play(ctx, p.cred(), device, uris); err != nil {
		return err
	}
	p.refresh(ctx)
	return nil
}

// Pause pauses playback.
func (p *ConnectPlayer) Pause(ctx context.Context) error {
	return p.control(ctx, p.remote.Pause)
}

// Resume resumes playback.
func (p *ConnectPlayer) Resume(ctx context.Context) error {
	return p.control(ctx, p.remote.Resume)
}

// Next skips forward.
func (p *ConnectPlayer) Next(ctx context.Context) error {
	return p.control(ctx, p.remote.Next)
}

// Previous skips back.
func (p *ConnectPlayer) Previous(ctx context.Context) error {
	return p.control(ctx, p.remote.Previous)
}

// SetVolume sets the volume percentage, clamped to 0-100.
func (p *ConnectPlayer) SetVolume(ctx context.Context, percent int) error {
	device, err := p.ready()
	if err != nil {
		return err
	}
	percent = max(0, min(100, percent))
	if err := p.remote.SetVolume(ctx, p.cred(), device, percent); err != nil {
		return err
	}

	p.mu.Lock()
	p.state.Volume = percent
	state := p.state
	subs := p.listenersLocked()
	p.mu.Unlock()

	emit(subs, state)
	return nil
}

// OnStateChanged registers fn for state changes. The returned func
// unregisters it.
func (p *ConnectPlayer) OnStateChanged(fn func(State)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// Refresh re-reads playback state now and emits it if it changed.
func (p *ConnectPlayer) Refresh(ctx context.Context) (State, error) {
	np, err := p.remote.NowPlaying(ctx, p.cred())
	if err != nil {
		return p.State(), err
	}

	p.mu.Lock()
	next := p.state
	if np == nil {
		idle := Idle()
		next.URI, next.Title, next.Artist, next.AlbumCover, next.Paused = "", idle.Title, idle.Artist, "", true
	} else {
		next.URI = np.URI
		next.Title = np.Title
		next.Artist = np.Artist
		next.AlbumCover = np.AlbumCover
		next.Paused = np.Paused
	}
	changed := next != p.state
	p.state = next
	subs := p.listenersLocked()
	p.mu.Unlock()

	if changed {
		emit(subs, next)
	}
	return next, nil
}

func (p *ConnectPlayer) pickDevice(ctx context.Context) (string, error) {
	devices, err := p.remote.Devices(ctx, p.cred())
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", ErrNotReady
	}
	for _, d := range devices {
		if d.Active {
			return d.ID, nil
		}
	}
	return devices[0].ID, nil
}

func (p *ConnectPlayer) ready() (string, error) {
	device := p.DeviceID()
	if device == "" {
		return "", ErrNotReady
	}
	return device, nil
}

func (p *ConnectPlayer) control(ctx context.Context, fn func(context.Context, auth.Credential, string) error) error {
	device, err := p.ready()
	if err != nil {
		return err
	}
	if err := fn(ctx, p.cred(), device); err != nil {
		return err
	}
	p.refresh(ctx)
	return nil
}

func (p *ConnectPlayer) refresh(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil {
		p.logger.Debug("refreshing player state failed", "err", err)
	}
}

func (p *ConnectPlayer) poll(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *ConnectPlayer) listenersLocked() []func(State) {
	subs := make([]func(State), 0, len(p.listeners))
	for _, fn := range p.listeners {
		subs = append(subs, fn)
	}
	return subs
}

func emit(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s)
	}
}

var _ Player = (*ConnectPlayer)(nil)
