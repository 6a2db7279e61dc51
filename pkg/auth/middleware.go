package auth

import (
	"net/http"
	"strings"

	"github.com/luxsim/helio/pkg/errdefs"
)

// Middleware enforces bearer authentication on inbound requests. A nil
// authenticator (auth type "none") passes everything through, still
// capturing any presented bearer for downstream forwarding.
//
// Preflight failures map to 400 (header absent or not a bearer scheme) and
// credential failures to 403, rendered via errdefs.WriteHTTP.
func Middleware(authn Authenticator, localMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			if authn == nil {
				if token, ok := bearerFromHeader(header); ok {
					r = r.WithContext(WithBearer(r.Context(), token))
				}
				next.ServeHTTP(w, r)
				return
			}

			if header == "" {
				errdefs.WriteHTTP(w, errdefs.New(errdefs.KindMissingAuth,
					"missing Authorization header"), localMode)
				return
			}
			token, ok := bearerFromHeader(header)
			if !ok {
				errdefs.WriteHTTP(w, errdefs.New(errdefs.KindInvalidAuthFormat,
					"invalid Authorization format, expected: Bearer <token>"), localMode)
				return
			}

			claims, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				errdefs.WriteHTTP(w, err, localMode)
				return
			}

			ctx := WithBearer(r.Context(), token)
			ctx = WithClaims(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerFromHeader(header string) (string, bool) {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}
