package auth

import "golang.org/x/oauth2"

// Credential is an opaque bearer token granting access to the user's
// Spotify account. The zero value means no credential.
//
// Expiry is not tracked: a stale credential surfaces as a provider rejection.
type Credential string

// Empty reports whether no credential is present.
func (c Credential) Empty() bool {
	return c == ""
}

// Token returns the credential as an oauth2 bearer token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{AccessToken: string(c), TokenType: "Bearer"}
}

// TokenSource returns a static token source. It never refreshes.
func (c Credential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(c.Token())
}

// Redacted returns a form of the credential that is safe to log.
func (c Credential) Redacted() string {
	if len(c) <= 8 {
		return "****"
	}
	return string(c[:4]) + "****"
}
