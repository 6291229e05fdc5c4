package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/observability"
)

// Handlers serves the role and permission management endpoints
type Handlers struct {
	store   *Store
	checker Checker
	logger  *observability.Logger
}

// NewHandlers creates RBAC handlers. The checker is invalidated whenever a
// grant is created or deleted so changes take effect without a restart.
func NewHandlers(store *Store, checker Checker, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, checker: checker, logger: logger}
}

// RegisterRoutes registers the RBAC endpoints on the router. Each route is
// wrapped by the guard with its own resource:action pair.
func (h *Handlers) RegisterRoutes(router *mux.Router, guard func(Resource, Action) func(http.Handler) http.Handler) {
	router.Handle("/roles",
		guard(ResourceRoles, ActionRead)(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	router.Handle("/permissions",
		guard(ResourcePermissions, ActionRead)(http.HandlerFunc(h.ListPermissions))).Methods(http.MethodGet)
	router.Handle("/role-permissions",
		guard(ResourcePermissions, ActionRead)(http.HandlerFunc(h.ListGrants))).Methods(http.MethodGet)
	router.Handle("/role-permissions",
		guard(ResourcePermissions, ActionCreate)(http.HandlerFunc(h.CreateGrant))).Methods(http.MethodPost)
	router.Handle("/role-permissions/{id}",
		guard(ResourcePermissions, ActionDelete)(http.HandlerFunc(h.DeleteGrant))).Methods(http.MethodDelete)
}

// ListRoles returns all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	if roles == nil {
		roles = []RoleRecord{}
	}
	httputil.WriteSuccess(w, roles)
}

// ListPermissions returns all permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list permissions")
		httputil.WriteInternalError(w)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httputil.WriteSuccess(w, perms)
}

// ListGrants returns all role-permission links
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.store.ListGrants(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list role permissions")
		httputil.WriteInternalError(w)
		return
	}
	if grants == nil {
		grants = []Grant{}
	}
	httputil.WriteSuccess(w, grants)
}

type createGrantRequest struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

// CreateGrant links a permission to a role
func (h *Handlers) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 || req.PermissionID <= 0 {
		httputil.WriteValidationError(w, "role_id and permission_id are required")
		return
	}

	grant, err := h.store.CreateGrant(r.Context(), req.RoleID, req.PermissionID)
	if err != nil {
		if errors.Is(err, ErrDuplicateGrant) {
			httputil.WriteConflict(w, "role already holds this permission")
			return
		}
		h.logger.WithError(err).Error("failed to create role permission")
		httputil.WriteInternalError(w)
		return
	}

	h.checker.Invalidate()
	httputil.WriteCreated(w, grant)
}

// DeleteGrant removes a role-permission link
func (h *Handlers) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteGrant(r.Context(), id); err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			httputil.WriteNotFoundError(w, "role permission not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete role permission")
		httputil.WriteInternalError(w)
		return
	}

	h.checker.Invalidate()
	httputil.WriteNoContent(w)
}
