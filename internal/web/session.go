package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/soundify/internal/db"
)

const (
	sessionCookieName = "session_id"

	// DefaultSessionTTL is how long a browser session lives.
	DefaultSessionTTL = 24 * time.Hour
)

// ErrSessionExpired is returned when adopting an ID whose session expired.
var ErrSessionExpired = errors.New("session expired")

// Session identifies one browser. The credential itself lives in the
// session's state and durable storage, not here.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionManager defines the interface for session management.
type SessionManager interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	// Adopt returns the live session for id, creating one under that ID
	// when the store has never seen it.
	Adopt(ctx context.Context, id string) (*Session, error)
	// DeleteExpired removes expired sessions and returns their IDs.
	DeleteExpired(ctx context.Context) ([]string, error)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// ============================================================================
// In-Memory Session Store (for development/testing)
// ============================================================================

// SessionStore manages browser sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionStore creates a new in-memory session store. A zero ttl means
// DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create generates a new session.
func (s *SessionStore) Create(_ context.Context) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := newSession(id, s.ttl)
	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

// Adopt returns the session for id, creating it if the store has no record
// of id. A known but expired id is refused.
func (s *SessionStore) Adopt(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		if time.Now().After(session.ExpiresAt) {
			return nil, ErrSessionExpired
		}
		return session, nil
	}

	session := newSession(id, s.ttl)
	s.sessions[id] = session
	return session, nil
}

// DeleteExpired removes expired sessions and returns their IDs.
func (s *SessionStore) DeleteExpired(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var ids []string
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Get retrieves an unexpired session by ID.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil
	}
	return session
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// GetFromRequest extracts the session from the request cookie.
func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromCookie(r, s.Get)
}

// SetCookie sets the session cookie on the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// ============================================================================
// Database-Backed Session Store
// ============================================================================

// SessionRepository is the session table, implemented by
// db.SessionRepository.
type SessionRepository interface {
	Create(ctx context.Context, session *db.Session) error
	Get(ctx context.Context, id string) (*db.Session, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) ([]string, error)
}

// DBSessionStore manages browser sessions in PostgreSQL.
type DBSessionStore struct {
	repo   SessionRepository
	ttl    time.Duration
	logger *log.Logger
}

// NewDBSessionStore creates a new database-backed session store.
func NewDBSessionStore(repo SessionRepository, ttl time.Duration, logger *log.Logger) *DBSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DBSessionStore{repo: repo, ttl: ttl, logger: logger}
}

// Create generates a new session and stores it in the database.
func (s *DBSessionStore) Create(ctx context.Context) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, id)
}

func (s *DBSessionStore) insert(ctx context.Context, id string) (*Session, error) {
	session := newSession(id, s.ttl)
	dbSession := &db.Session{
		ID:        id,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
	if err := s.repo.Create(ctx, dbSession); err != nil {
		return nil, err
	}
	return session, nil
}

// Get retrieves a session by ID from the database.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	dbSession, err := s.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warn("loading session failed", "err", err)
		}
		return nil
	}
	if err := s.repo.Touch(ctx, id); err != nil {
		s.logger.Debug("touching session failed", "err", err)
	}

	return &Session{
		ID:        dbSession.ID,
		CreatedAt: dbSession.CreatedAt,
		ExpiresAt: dbSession.ExpiresAt,
	}
}

// Adopt returns the session for id, inserting it if the table has no row
// for id. An expired row still present makes the insert, and so the
// adoption, fail.
func (s *DBSessionStore) Adopt(ctx context.Context, id string) (*Session, error) {
	if session := s.Get(ctx, id); session != nil {
		return session, nil
	}
	return s.insert(ctx, id)
}

// Delete removes a session and its stored data from the database.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Warn("deleting session failed", "err", err)
	}
}

// DeleteExpired removes expired sessions with their stored data.
func (s *DBSessionStore) DeleteExpired(ctx context.Context) ([]string, error) {
	return s.repo.DeleteExpired(ctx)
}

// GetFromRequest extracts the session from the request cookie.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromCookie(r, s.Get)
}

// SetCookie sets the session cookie on the response.
func (s *DBSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *DBSessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// ============================================================================
// Helper Functions
// ============================================================================

func newSession(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func sessionFromCookie(r *http.Request, get func(context.Context, string) *Session) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return get(r.Context(), cookie.Value)
}

// setCookie sets the session cookie on the response.
func setCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}

// clearCookie removes the session cookie from the response.
func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Ensure both stores implement SessionManager.
var (
	_ SessionManager    = (*SessionStore)(nil)
	_ SessionManager    = (*DBSessionStore)(nil)
	_ SessionRepository = (*db.SessionRepository)(nil)
)
