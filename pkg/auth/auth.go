// Package auth authenticates inbound gateway requests.
//
// Three modes are supported: a shared opaque bearer token, OIDC JWTs
// validated against the issuer's JWKS, and no authentication at all. In
// every mode the raw bearer credential (when present) is kept on the request
// context so outbound service calls can forward it.
package auth

import (
	"context"
	"fmt"

	"github.com/luxsim/helio/pkg/config"
)

// Authenticator verifies a bearer credential extracted from the
// Authorization header.
type Authenticator interface {
	// Authenticate verifies the credential and returns the claims it
	// carries. Failures are classified errdefs errors.
	Authenticate(ctx context.Context, token string) (*Claims, error)
}

// Claims carries the identity asserted by a verified credential. Opaque
// tokens produce empty claims.
type Claims struct {
	Subject string
	Email   string
}

// New builds the authenticator selected by the config. Type "none" yields
// nil, which the middleware treats as pass-through.
func New(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Type {
	case config.AuthTypeNone:
		return nil, nil
	case config.AuthTypeToken:
		return NewTokenAuthenticator(cfg.Token), nil
	case config.AuthTypeAuth0:
		return NewJWTAuthenticator(
			cfg.Auth0.JWKSURL(),
			cfg.Auth0.Issuer(),
			cfg.Auth0.Audience,
			cfg.Auth0.Algorithms,
		)
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", cfg.Type)
	}
}

type contextKey string

const (
	claimsContextKey contextKey = "claims"
	bearerContextKey contextKey = "bearer"
)

// WithClaims stores verified claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the verified claims, or nil when the request
// was not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// WithBearer stores the raw inbound bearer credential on the context for
// forwarding to downstream services.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerContextKey, token)
}

// BearerFromContext returns the inbound bearer credential, if any.
func BearerFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(bearerContextKey).(string); ok {
		return token
	}
	return ""
}
