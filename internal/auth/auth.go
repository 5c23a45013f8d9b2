// Package auth resolves the principal behind a request. Token issuance lives
// outside this service; tokens are looked up in a static table.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
)

var (
	// ErrMissingToken is returned when the request carries no token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for a token that maps to no principal.
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is an authenticated caller.
type Principal struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && p.Role == role
}

// Authenticator resolves a request to a principal.
type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
}

// StaticTokens authenticates against a fixed token table.
type StaticTokens struct {
	tokens []config.TokenConfig
}

// NewStaticTokens creates an authenticator from the configured tokens.
func NewStaticTokens(tokens []config.TokenConfig) *StaticTokens {
	return &StaticTokens{tokens: append([]config.TokenConfig(nil), tokens...)}
}

// Authenticate looks up the request token.
func (s *StaticTokens) Authenticate(r *http.Request) (*Principal, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			return &Principal{Subject: t.Subject, Role: t.Role}, nil
		}
	}
	return nil, ErrInvalidToken
}

// Anonymous admits every request as one fixed principal. Used when auth is disabled.
type Anonymous struct {
	Principal Principal
}

// Authenticate always succeeds.
func (a Anonymous) Authenticate(r *http.Request) (*Principal, error) {
	p := a.Principal
	return &p, nil
}

// New returns the authenticator for cfg.
func New(cfg *config.AuthConfig) Authenticator {
	if !cfg.Enabled {
		return Anonymous{Principal: Principal{Subject: "anonymous", Role: cfg.ElevatedRole}}
	}
	return NewStaticTokens(cfg.Tokens)
}

// TokenFromRequest returns the bearer token from the Authorization header, or
// the token query parameter for clients such as browser WebSockets that cannot
// set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
