package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/luxsim/helio/pkg/errdefs"
)

// jwksMinRefresh bounds how often the JWKS is refetched; key rotation is
// picked up within this interval.
const jwksMinRefresh = 15 * time.Minute

// JWTAuthenticator validates OIDC JWTs against the issuer's JWKS. The JWKS
// is fetched once at construction and auto-refreshed in the background.
type JWTAuthenticator struct {
	jwksURL    string
	issuer     string
	audience   string
	algorithms map[string]bool
	cache      *jwk.Cache
}

// NewJWTAuthenticator creates a validator for the given issuer. The initial
// JWKS fetch happens here so misconfiguration fails at startup, not on the
// first request.
func NewJWTAuthenticator(jwksURL, issuer, audience string, algorithms []string) (*JWTAuthenticator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(jwksMinRefresh)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	allowed := make(map[string]bool, len(algorithms))
	for _, alg := range algorithms {
		allowed[alg] = true
	}

	return &JWTAuthenticator{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   audience,
		algorithms: allowed,
		cache:      cache,
	}, nil
}

// Authenticate verifies the token's signing algorithm, signature, expiry,
// issuer and audience, and extracts the identity claims.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, tokenString string) (*Claims, error) {
	if err := a.checkAlgorithm(tokenString); err != nil {
		return nil, err
	}

	keyset, err := a.cache.Get(ctx, a.jwksURL)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindInternal, err, "failed to get JWKS")
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, errdefs.Wrap(errdefs.KindExpiredJWT, err, "token expired")
		}
		return nil, errdefs.Wrap(errdefs.KindInvalidToken, err, "invalid token")
	}

	claims := &Claims{Subject: token.Subject()}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	return claims, nil
}

// checkAlgorithm rejects tokens whose signing algorithm is outside the
// configured allow-list before any cryptographic work happens.
func (a *JWTAuthenticator) checkAlgorithm(tokenString string) error {
	msg, err := jws.Parse([]byte(tokenString))
	if err != nil {
		return errdefs.Wrap(errdefs.KindInvalidToken, err, "malformed token")
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return errdefs.New(errdefs.KindInvalidToken, "token has no signature")
	}
	alg := sigs[0].ProtectedHeaders().Algorithm().String()
	if !a.algorithms[alg] {
		return errdefs.New(errdefs.KindInvalidToken, "signing algorithm %s not allowed", alg)
	}
	return nil
}
