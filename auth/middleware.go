package auth

import (
	"channel-chat/contract"
	"channel-chat/domain"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// ErrorWriter renders an authentication failure in the gateway's format.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware validates the bearer token of every request and injects the
// resolved identity into the request context for downstream handlers.
func Middleware(verifier contract.TokenVerifier, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(BearerToken(r))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>",
// falling back to the "token" query parameter used by browser WebSockets.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}
