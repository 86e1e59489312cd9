// Package auth reads the caller's identity from the configured bearer token.
//
// The backend verifies tokens; the client only needs the principal to key
// device profiles and to decide whether to attempt authenticated calls at
// all. Tokens are therefore parsed without signature verification.
package auth

import (
	"strings"
	"time"

	"fflux/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// GuestLabel is shown in place of a principal for unauthenticated sessions.
const GuestLabel = "Guest"

var timeNow = time.Now

// Session is the caller's login state.
type Session struct {
	Token string
}

// NewSession trims an optional "Bearer " prefix from token.
func NewSession(token string) Session {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return Session{Token: token}
}

// Principal returns the identity carried by the token: the "sub" claim, or
// "principal" when sub is absent. Tokens that are not JWTs, carry neither
// claim, or have expired yield the anonymous principal.
func (s Session) Principal() domain.Principal {
	if s.Token == "" {
		return domain.AnonymousPrincipal
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return domain.AnonymousPrincipal
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !exp.After(timeNow()) {
		return domain.AnonymousPrincipal
	}

	if sub, err := claims.GetSubject(); err == nil && strings.TrimSpace(sub) != "" {
		return domain.Principal(strings.TrimSpace(sub))
	}
	if p, ok := claims["principal"].(string); ok && strings.TrimSpace(p) != "" {
		return domain.Principal(strings.TrimSpace(p))
	}
	return domain.AnonymousPrincipal
}

// IsAuthenticated reports whether the session carries a non-anonymous principal.
func (s Session) IsAuthenticated() bool {
	return !s.Principal().IsAnonymous()
}

// PrincipalShort is the creator status line: an abbreviated principal, or
// GuestLabel when unauthenticated.
func (s Session) PrincipalShort() string {
	p := s.Principal()
	if p.IsAnonymous() {
		return GuestLabel
	}
	return p.Short()
}
