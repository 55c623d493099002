package auth

import (
	"context"
	"net/http"

	"github.com/lawmakers-app/lawmakers-api/internal/platform/httpx"
)

// Cookie names for the two credential cookies.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type contextKey string

const identityKey contextKey = "auth.identity"

// ContextWithIdentity attaches a verified identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by the middleware, or
// nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Middleware validates the access-token cookie and exposes the caller's
// identity to downstream handlers.
type Middleware struct {
	tokens *TokenService
}

// NewMiddleware constructs a Middleware.
func NewMiddleware(tokens *TokenService) *Middleware {
	return &Middleware{tokens: tokens}
}

// RequireAuth rejects requests without a valid access token. A missing
// cookie and an invalid or expired token are both 401s, with distinct codes.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AccessTokenCookie)
		if err != nil || cookie.Value == "" {
			httpx.Error(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
			return
		}
		claims := m.tokens.VerifyAccessToken(cookie.Value)
		if claims == nil {
			httpx.Error(w, http.StatusUnauthorized, CodeInvalidToken, "token is invalid or expired")
			return
		}
		id := &Identity{UserID: claims.Subject, Email: claims.Email}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// OptionalAuth attaches the identity when a valid access token is present
// and proceeds anonymously otherwise. For endpoints that behave differently
// for authenticated callers but never hard-require auth.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
			if claims := m.tokens.VerifyAccessToken(cookie.Value); claims != nil {
				id := &Identity{UserID: claims.Subject, Email: claims.Email}
				r = r.WithContext(ContextWithIdentity(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
