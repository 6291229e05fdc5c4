package middleware

import (
	"net/http"

	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/contextkeys"
	"github.com/taskboard/taskboard/pkg/httputil"
)

// AuthMiddleware verifies the bearer token and attaches an *auth.Context
// to the request. Requests without a valid token get a 401 and never reach
// the handler.
func AuthMiddleware(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractToken(r)
			if tokenStr == "" {
				httputil.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tokens.Parse(tokenStr)
			if err != nil {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			authCtx := &auth.Context{
				UserID:     claims.UserID,
				Email:      claims.Email,
				Role:       auth.MapRole(claims.Role),
				StoredRole: claims.Role,
			}

			ctx := contextkeys.WithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthContext retrieves the authenticated identity set by AuthMiddleware.
// The second return is false on unauthenticated requests.
func GetAuthContext(r *http.Request) (*auth.Context, bool) {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.Context)
	return authCtx, ok && authCtx != nil
}
