// Package auth provides the Spotify implicit-grant login flow and durable
// credential storage.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	// DefaultRedirectURI uses explicit IPv4 loopback as required by Spotify for local development.
	// See: https://developer.spotify.com/documentation/web-api/concepts/redirect-uri
	DefaultRedirectURI = "http://127.0.0.1:8080/callback"

	// CredentialKey is the storage key the credential is mirrored under.
	CredentialKey = "spotify_access_token"
)

var (
	// ErrMissingClientID is returned when no Spotify client ID is configured.
	ErrMissingClientID = errors.New("missing Spotify client ID")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrNoAccessToken is returned when the redirect fragment carries no access_token.
	ErrNoAccessToken = errors.New("no access_token in redirect fragment")

	// ErrAccessDenied is returned when Spotify reports an error in the redirect.
	ErrAccessDenied = errors.New("spotify authorization denied")
)

// Scopes are the permissions requested at login: history, search and playback.
var Scopes = []string{
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeStreaming,
}

// Authenticator builds implicit-grant authorize URLs. The access token comes
// back in the URL fragment, so there is no server-side code exchange.
type Authenticator struct {
	auth        *spotifyauth.Authenticator
	redirectURI string
}

// New creates an Authenticator for the given client ID and redirect URI.
// Returns ErrMissingClientID if clientID is empty.
func New(clientID, redirectURI string, scopes ...string) (*Authenticator, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	if redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}
	if len(scopes) == 0 {
		scopes = Scopes
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithScopes(scopes...),
	)

	return &Authenticator{auth: auth, redirectURI: redirectURI}, nil
}

// AuthURL returns the Spotify authorize URL for the implicit grant.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state, oauth2.SetAuthURLParam("response_type", "token"))
}

// RedirectURI returns the configured callback URL.
func (a *Authenticator) RedirectURI() string {
	return a.redirectURI
}

// Grant is the result of a successful implicit-grant redirect.
type Grant struct {
	Credential Credential
	TokenType  string
	ExpiresIn  time.Duration
	State      string
}

// ParseFragment parses the URL fragment Spotify appends to the redirect URI,
// e.g. "#access_token=...&token_type=Bearer&expires_in=3600&state=...".
// The leading "#" is optional.
func ParseFragment(fragment string) (Grant, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return Grant{}, fmt.Errorf("parsing fragment: %w", err)
	}

	if e := values.Get("error"); e != "" {
		return Grant{State: values.Get("state")}, fmt.Errorf("%w: %s", ErrAccessDenied, e)
	}

	token := values.Get("access_token")
	if token == "" {
		return Grant{State: values.Get("state")}, ErrNoAccessToken
	}

	g := Grant{
		Credential: Credential(token),
		TokenType:  values.Get("token_type"),
		State:      values.Get("state"),
	}
	if g.TokenType == "" {
		g.TokenType = "Bearer"
	}
	if secs, err := strconv.Atoi(values.Get("expires_in")); err == nil && secs > 0 {
		g.ExpiresIn = time.Duration(secs) * time.Second
	}

	return g, nil
}

// VerifyState returns ErrStateMismatch unless the grant's state equals expected.
func (g Grant) VerifyState(expected string) error {
	if expected == "" || g.State != expected {
		return ErrStateMismatch
	}
	return nil
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
