// Package auth gates requests behind bearer tokens checked by an external
// identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/config"
)

// ErrUnauthenticated wraps every verification failure: missing, malformed,
// expired or unverifiable tokens all look the same to callers.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the identity a verified token carries.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by Middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// New builds the verifier selected by cfg.Mode.
func New(cfg config.Auth) (Verifier, error) {
	switch cfg.Mode {
	case config.AuthFirebase:
		var opts []FirebaseOption
		if cfg.CertsURL != "" {
			opts = append(opts, WithCertsURL(cfg.CertsURL))
		}
		return NewFirebaseVerifier(cfg.ProjectID, opts...), nil
	case config.AuthStatic:
		v, err := NewStaticVerifier(cfg.TokenHash, cfg.TokenSalt)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
}
