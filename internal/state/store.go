// Package state holds one browser session's observable state: credential,
// time of day, listening history and the recommendation result slot.
package state

import (
	"slices"
	"sync"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/history"
	"github.com/justestif/soundify/internal/recommend"
)

// Policy decides which of several overlapping requests owns the result slot.
type Policy int

const (
	// LastWriteWins keeps whichever request settles last, even if it was
	// issued first.
	LastWriteWins Policy = iota
	// LatestIssuedWins discards any settle that is not from the most
	// recently issued request.
	LatestIssuedWins
)

// String returns the config name of the policy.
func (p Policy) String() string {
	if p == LatestIssuedWins {
		return "latest-issued-wins"
	}
	return "last-write-wins"
}

// ParsePolicy parses a config name. Unknown names yield LastWriteWins.
func ParsePolicy(s string) Policy {
	if s == "latest-issued-wins" {
		return LatestIssuedWins
	}
	return LastWriteWins
}

// Snapshot is a consistent copy of the Store. It never carries the credential.
type Snapshot struct {
	Version         uint64           `json:"version"`
	Authenticated   bool             `json:"authenticated"`
	TimeOfDay       history.Bucket   `json:"time_of_day"`
	History         []history.Entry  `json:"listening_history"`
	HistoryStatus   recommend.Status `json:"history_status"`
	HistoryError    string           `json:"history_error,omitempty"`
	Recommendations recommend.Result `json:"recommendations"`
}

// Store is the session state. It is safe for concurrent use; its mutex is
// the only lock guarding the result slot.
type Store struct {
	mu     sync.Mutex
	policy Policy

	cred          auth.Credential
	timeOfDay     history.Bucket
	history       []history.Entry
	historyStatus recommend.Status
	historyErr    string
	result        recommend.Result

	issued  uint64 // last sequence number handed out
	floor   uint64 // settles at or below this are from before the last Reset
	version uint64

	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the supersession policy.
func WithPolicy(p Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		historyStatus: recommend.StatusIdle,
		result:        recommend.Idle(),
		history:       []history.Entry{},
		subs:          make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credential returns the current credential.
func (s *Store) Credential() auth.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

// SetCredential overwrites the credential.
func (s *Store) SetCredential(c auth.Credential) {
	s.update(func() { s.cred = c })
}

// TimeOfDay returns the session's time-of-day bucket, empty if unset.
func (s *Store) TimeOfDay() history.Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeOfDay
}

// SetTimeOfDay overwrites the time-of-day bucket.
func (s *Store) SetTimeOfDay(b history.Bucket) {
	s.update(func() { s.timeOfDay = b })
}

// History returns a copy of the listening history.
func (s *Store) History() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// BeginHistoryLoad marks the history as loading.
func (s *Store) BeginHistoryLoad() {
	s.update(func() {
		s.historyStatus = recommend.StatusLoading
		s.historyErr = ""
	})
}

// SetHistory replaces the listening history wholesale.
func (s *Store) SetHistory(entries []history.Entry) {
	if entries == nil {
		entries = []history.Entry{}
	}
	s.update(func() {
		s.history = slices.Clone(entries)
		s.historyStatus = recommend.StatusSucceeded
		s.historyErr = ""
	})
}

// FailHistory records a failed history load. The previous history is kept.
func (s *Store) FailHistory(err error) {
	s.update(func() {
		s.historyStatus = recommend.StatusFailed
		if err != nil {
			s.historyErr = err.Error()
		}
	})
}

// Result returns the current recommendation result.
func (s *Store) Result() recommend.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Begin moves the result slot to loading and returns a new sequence number.
// It implements recommend.Sink.
func (s *Store) Begin() uint64 {
	var seq uint64
	s.update(func() {
		s.issued++
		seq = s.issued
		s.result.Status = recommend.StatusLoading
		s.result.Reason = ""
	})
	return seq
}

// Settle publishes a finished request's result. It implements recommend.Sink.
// Under LatestIssuedWins a superseded seq is discarded; under LastWriteWins
// every settle overwrites the slot. Settles from before a Reset are always
// discarded.
func (s *Store) Settle(seq uint64, r recommend.Result) bool {
	s.mu.Lock()
	if seq <= s.floor || (s.policy == LatestIssuedWins && seq != s.issued) {
		s.mu.Unlock()
		return false
	}
	r.Seq = seq
	if r.Recommendations == nil {
		r.Recommendations = []recommend.Enriched{}
	}
	s.result = r
	snap, subs := s.commitLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return true
}

// ClearRecommendations resets the result slot to idle with no items.
// Requests still in flight may settle afterwards.
func (s *Store) ClearRecommendations() {
	s.update(func() { s.result = recommend.Idle() })
}

// Reset discards all session state (logout). Subscribers are kept.
func (s *Store) Reset() {
	s.update(func() {
		s.cred = ""
		s.timeOfDay = ""
		s.history = []history.Entry{}
		s.historyStatus = recommend.StatusIdle
		s.historyErr = ""
		s.result = recommend.Idle()
		s.floor = s.issued
	})
}

// Snapshot returns a consistent copy of the state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a snapshot after every change.
// Calls happen outside the lock, in the mutating goroutine; use
// Snapshot.Version to order them. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn under the lock and notifies subscribers.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	snap, subs := s.commitLocked()
	s.mu.Unlock()

	notify(subs, snap)
}

func (s *Store) commitLocked() (Snapshot, []func(Snapshot)) {
	s.version++
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return s.snapshotLocked(), subs
}

func (s *Store) snapshotLocked() Snapshot {
	result := s.result
	result.Recommendations = slices.Clone(result.Recommendations)
	return Snapshot{
		Version:         s.version,
		Authenticated:   !s.cred.Empty(),
		TimeOfDay:       s.timeOfDay,
		History:         slices.Clone(s.history),
		HistoryStatus:   s.historyStatus,
		HistoryError:    s.historyErr,
		Recommendations: result,
	}
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

var _ recommend.Sink = (*Store)(nil)
