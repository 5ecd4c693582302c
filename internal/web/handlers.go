package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/justestif/soundify/internal/auth"
	"github.com/justestif/soundify/internal/insights"
	"github.com/justestif/soundify/internal/recommend"
)

const (
	stateCookieName = "oauth_state"
	maxBodyBytes    = 1 << 20
)

type liveKey struct{}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth      *auth.Authenticator
	sessions  SessionManager
	storage   auth.Storage
	registry  *Registry
	templates *Templates
	insights  insights.Config
	logger    *log.Logger
	upgrader  websocket.Upgrader
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(a *auth.Authenticator, sessions SessionManager, storage auth.Storage, registry *Registry, templates *Templates, ic insights.Config, logger *log.Logger) *Handlers {
	return &Handlers{
		auth:      a,
		sessions:  sessions,
		storage:   storage,
		registry:  registry,
		templates: templates,
		insights:  ic,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// session returns the request's session. A cookie the session store does
// not know is adopted when durable storage still holds a credential for it,
// which is the case after a restart with an in-memory store.
func (h *Handlers) session(r *http.Request) *Session {
	if session := h.sessions.GetFromRequest(r); session != nil {
		return session
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	cred, err := auth.LoadCredential(r.Context(), h.storage, cookie.Value)
	if err != nil {
		h.logger.Warn("loading stored credential failed", "err", err)
		return nil
	}
	if cred.Empty() {
		return nil
	}

	session, err := h.sessions.Adopt(r.Context(), cookie.Value)
	if err != nil {
		h.logger.Debug("adopting session failed", "err", err)
		return nil
	}
	h.logger.Info("adopted session from storage")
	return session
}

// live returns the Live for the request's session, or nil without one.
func (h *Handlers) live(r *http.Request) *Live {
	session := h.session(r)
	if session == nil {
		return nil
	}
	l := h.registry.Get(session.ID)
	l.restore(r.Context(), h.logger)
	return l
}

// requireAuth rejects API requests from sessions without a credential.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := h.live(r)
		if l == nil || l.Store().Credential().Empty() {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), liveKey{}, l)))
	})
}

func liveFrom(r *http.Request) *Live {
	l, _ := r.Context().Value(liveKey{}).(*Live)
	return l
}

// Home handles the landing page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	l := h.live(r)

	data := HomePageData{
		PageData: PageData{
			Title:         "Soundify",
			CurrentPath:   r.URL.Path,
			Authenticated: l != nil && !l.Store().Credential().Empty(),
		},
		Tagline: "Your Personal AI Music Recommender",
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		data.Flash = &FlashMessage{Type: "error", Message: errMsg}
	}

	h.render(w, "home", data)
}

// Main handles the recommendations page (GET /main).
func (h *Handlers) Main(w http.ResponseWriter, r *http.Request) {
	l := h.live(r)
	if l == nil || l.Store().Credential().Empty() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := MainPageData{
		PageData: PageData{
			Title:         "Soundify",
			CurrentPath:   r.URL.Path,
			Authenticated: true,
		},
		State:             l.Store().Snapshot(),
		Player:            l.Player.State(),
		Genres:            recommend.Genres,
		Moods:             recommend.Moods,
		SearchPlaceholder: "Tell me what you want to listen to...",
	}

	h.render(w, "main", data)
}

// Login initiates the Spotify implicit-grant flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in cookie for validation when the token is posted back
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback serves the page Spotify redirects to (GET /callback). The token
// is in the URL fragment, which only the browser sees, so the page posts it
// to /auth/token.
func (h *Handlers) Callback(w http.ResponseWriter, _ *http.Request) {
	h.render(w, "callback", PageData{Title: "Soundify"})
}

type tokenRequest struct {
	Fragment string `json:"fragment"`
}

type tokenResponse struct {
	Redirect     string `json:"redirect"`
	HistoryError string `json:"history_error,omitempty"`
}

// Token adopts the credential from a redirect fragment (POST /auth/token).
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	grant, err := auth.ParseFragment(req.Fragment)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrAccessDenied) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing state cookie")
		return
	}
	if err := grant.VerifyState(stateCookie.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	session := h.session(r)
	if session == nil {
		session, err = h.sessions.Create(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
	}
	h.sessions.SetCookie(w, session)

	resp := tokenResponse{Redirect: "/main"}
	l := h.registry.Get(session.ID)
	if err := l.Controller.Login(r.Context(), grant.Credential); err != nil {
		// The credential is kept; the page shows the history failure.
		resp.HistoryError = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout forgets the credential and session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.session(r); session != nil {
		l := h.registry.Get(session.ID)
		if err := l.Controller.Logout(r.Context()); err != nil {
			h.logger.Warn("logout failed", "err", err)
		}
		h.registry.Remove(session.ID)
		h.sessions.Delete(r.Context(), session.ID)
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, page, data); err != nil {
		h.logger.Error("rendering template failed", "page", page, "err", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
