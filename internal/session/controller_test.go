package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/recommend"
	"github.com/justestif/soundify/internal/state"
)

type mockLoader struct {
	entries []history.Entry
	err     error
	calls   int
}

func (m *mockLoader) Load(context.Context, auth.Credential) ([]history.Entry, error) {
	m.calls++
	return m.entries, m.err
}

// mockRunner records requests instead of running them.
type mockRunner struct {
	mu    sync.Mutex
	reqs  []recommend.Request
	creds []auth.Credential
}

func (m *mockRunner) Go(_ context.Context, req recommend.Request, cred auth.Credential, sink recommend.Sink) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	m.creds = append(m.creds, cred)
	return sink.Begin()
}

type mockArchive struct {
	saved [][]history.Entry
}

func (m *mockArchive) SaveHistory(_ context.Context, _ string, entries []history.Entry) error {
	m.saved = append(m.saved, entries)
	return nil
}

func newController(loader HistoryLoader, runner Runner, storage auth.Storage, opts ...Option) *Controller {
	at9 := func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	opts = append([]Option{
		WithClock(at9),
		WithLocation(time.UTC),
		WithLogger(log.New(io.Discard)),
	}, opts...)
	return NewController("sess-123456789", state.New(), loader, runner, storage, opts...)
}

func TestLogin_LoadsHistoryThenBaseline(t *testing.T) {
	loader := &mockLoader{entries: []history.Entry{{TrackName: "A", ArtistName: "B", TimeOfDay: history.Evening}}}
	runner := &mockRunner{}
	storage := auth.NewMemoryStorage()
	archive := &mockArchive{}
	c := newController(loader, runner, storage, WithArchive(archive))

	if err := c.Login(context.Background(), "tok"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if got, _, _ := storage.GetItem(context.Background(), c.Scope(), auth.CredentialKey); got != "tok" {
		t.Errorf("mirrored credential = %q, want tok", got)
	}
	if tod := c.Store().TimeOfDay(); tod != history.Morning {
		t.Errorf("TimeOfDay = %q, want Morning (09:00)", tod)
	}
	if len(runner.reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(runner.reqs))
	}
	base, ok := runner.reqs[0].(recommend.Baseline)
	if !ok {
		t.Fatalf("request = %T, want Baseline", runner.reqs[0])
	}
	if base.TimeOfDay != history.Morning || len(base.History) != 1 {
		t.Errorf("baseline = %+v", base)
	}
	if runner.creds[0] != "tok" {
		t.Errorf("credential = %q", runner.creds[0])
	}
	if c.Store().Result().Status != recommend.StatusLoading {
		t.Errorf("Status = %q, want loading", c.Store().Result().Status)
	}
	if len(archive.saved) != 1 {
		t.Errorf("archived %d histories, want 1", len(archive.saved))
	}
}

func TestLogin_EmptyHistorySkipsBaseline(t *testing.T) {
	runner := &mockRunner{}
	c := newController(&mockLoader{}, runner, auth.NewMemoryStorage())

	if err := c.Login(context.Background(), "tok"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if len(runner.reqs) != 0 {
		t.Errorf("requests = %d, want 0 for empty history", len(runner.reqs))
	}
	if c.Store().Snapshot().HistoryStatus != recommend.StatusSucceeded {
		t.Error("history status not succeeded")
	}
}

func TestLogin_HistoryFailure(t *testing.T) {
	loadErr := errors.New("spotify rejected credential")
	runner := &mockRunner{}
	c := newController(&mockLoader{err: loadErr}, runner, auth.NewMemoryStorage())

	err := c.Login(context.Background(), "tok")
	if !errors.Is(err, loadErr) {
		t.Fatalf("Login() error = %v, want %v", err, loadErr)
	}
	if c.Store().Snapshot().HistoryStatus != recommend.StatusFailed {
		t.Error("history status not failed")
	}
	if len(runner.reqs) != 0 {
		t.Errorf("requests = %d, want 0", len(runner.reqs))
	}
}

func TestLogin_EmptyCredential(t *testing.T) {
	c := newController(&mockLoader{}, &mockRunner{}, auth.NewMemoryStorage())
	if err := c.Login(context.Background(), ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Login(\"\") error = %v, want ErrNotAuthenticated", err)
	}
}

func TestRestore(t *testing.T) {
	storage := auth.NewMemoryStorage()
	loader := &mockLoader{}
	c := newController(loader, &mockRunner{}, storage)

	found, err := c.Restore(context.Background())
	if err != nil || found {
		t.Fatalf("Restore() = %v, %v, want false, nil", found, err)
	}

	_ = storage.SetItem(context.Background(), c.Scope(), auth.CredentialKey, "saved")
	found, err = c.Restore(context.Background())
	if err != nil || !found {
		t.Fatalf("Restore() = %v, %v, want true, nil", found, err)
	}
	if c.Store().Credential() != "saved" {
		t.Errorf("Credential = %q, want saved", c.Store().Credential())
	}
	if loader.calls != 1 {
		t.Errorf("loader calls = %d, want 1", loader.calls)
	}
}

func TestApplyFiltersAndSearch(t *testing.T) {
	runner := &mockRunner{}
	c := newController(&mockLoader{}, runner, auth.NewMemoryStorage())

	if _, err := c.ApplyFilters("Jazz", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("ApplyFilters() unauthenticated error = %v", err)
	}

	_ = c.Login(context.Background(), "tok")
	c.Store().SetHistory([]history.Entry{{TrackName: "A"}})

	if _, err := c.ApplyFilters("Jazz", ""); err != nil {
		t.Fatalf("ApplyFilters() error = %v", err)
	}
	if _, err := c.Search(""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(runner.reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(runner.reqs))
	}
	f, ok := runner.reqs[0].(recommend.Filtered)
	if !ok || f.Genre != "Jazz" || f.Mood != "" || f.TimeOfDay != history.Morning || len(f.History) != 1 {
		t.Errorf("filtered = %#v", runner.reqs[0])
	}
	if s, ok := runner.reqs[1].(recommend.Search); !ok || s.Query != "" {
		t.Errorf("search = %#v", runner.reqs[1])
	}
}

func TestLogout(t *testing.T) {
	storage := auth.NewMemoryStorage()
	c := newController(&mockLoader{}, &mockRunner{}, storage)
	_ = c.Login(context.Background(), "tok")

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if !c.Store().Credential().Empty() {
		t.Error("credential survived logout")
	}
	if _, ok, _ := storage.GetItem(context.Background(), c.Scope(), auth.CredentialKey); ok {
		t.Error("mirrored credential survived logout")
	}
}
