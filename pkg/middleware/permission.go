package middleware

import (
	"net/http"

	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

// Guard produces a permission-checking middleware for one resource:action
// pair. Feature packages take a Guard in RegisterRoutes so every protected
// route goes through the same authorization path.
type Guard func(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler

// NewGuard builds a Guard backed by the given checker
func NewGuard(checker rbac.Checker, logger *observability.Logger) Guard {
	return func(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
		return RequirePermission(checker, logger, resource, action)
	}
}

// RequirePermission gates a handler behind one resource:action check.
// It must run after AuthMiddleware; a request with no auth context is a
// wiring bug and is rejected with 401 rather than allowed through.
func RequirePermission(checker rbac.Checker, logger *observability.Logger, resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := GetAuthContext(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			result, err := checker.Check(r.Context(), authCtx.Role, resource, action)
			if err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"resource": resource,
					"action":   action,
				}).Error("permission check failed")
				httputil.WriteInternalError(w)
				return
			}

			if !result.Allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
