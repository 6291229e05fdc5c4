package users

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

const minPasswordLength = 8

// Handlers serves profile, settings and admin user management endpoints
type Handlers struct {
	users    *auth.Store
	settings *SettingsStore
	audits   *audit.Store
	logger   *observability.Logger
}

// NewHandlers creates user handlers
func NewHandlers(users *auth.Store, settings *SettingsStore, audits *audit.Store, logger *observability.Logger) *Handlers {
	return &Handlers{
		users:    users,
		settings: settings,
		audits:   audits,
		logger:   logger,
	}
}

// RegisterRoutes registers profile, settings and admin user endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router, guard middleware.Guard) {
	// Profile and settings act on the caller's own account. They use the
	// profile resource, granted to every seeded role, so a plain employee
	// never needs any grant on the users collection.
	router.Handle("/profile",
		guard(rbac.ResourceProfile, rbac.ActionRead)(http.HandlerFunc(h.GetProfile))).Methods(http.MethodGet)
	router.Handle("/profile",
		guard(rbac.ResourceProfile, rbac.ActionUpdate)(http.HandlerFunc(h.UpdateProfile))).Methods(http.MethodPut)
	router.Handle("/settings",
		guard(rbac.ResourceSettings, rbac.ActionRead)(http.HandlerFunc(h.GetSettings))).Methods(http.MethodGet)
	router.Handle("/settings",
		guard(rbac.ResourceSettings, rbac.ActionUpdate)(http.HandlerFunc(h.UpdateSettings))).Methods(http.MethodPut)

	router.Handle("/users",
		guard(rbac.ResourceUsers, rbac.ActionRead)(http.HandlerFunc(h.List))).Methods(http.MethodGet)
	router.Handle("/users",
		guard(rbac.ResourceUsers, rbac.ActionCreate)(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	router.Handle("/users/{id}",
		guard(rbac.ResourceUsers, rbac.ActionUpdate)(http.HandlerFunc(h.Update))).Methods(http.MethodPut)
	router.Handle("/users/{id}",
		guard(rbac.ResourceUsers, rbac.ActionDelete)(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)
}

// GetProfile returns the caller's own account
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	user, err := h.users.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		h.logger.WithError(err).Error("failed to load profile")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, user)
}

type updateProfileRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
}

// UpdateProfile updates the caller's own name, phone or password.
// Email and role changes go through the admin endpoints.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req updateProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != nil && *req.Name == "" {
		httputil.WriteValidationError(w, "name cannot be empty")
		return
	}

	patch := auth.UserPatch{Name: req.Name, Phone: req.Phone}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			httputil.WriteValidationError(w, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.WithError(err).Error("failed to hash password")
			httputil.WriteInternalError(w)
			return
		}
		patch.PasswordHash = &hash
	}

	user, err := h.users.UpdateUser(r.Context(), authCtx.UserID, patch)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		h.logger.WithError(err).Error("failed to update profile")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionUpdate, user.ID, "updated own profile")
	httputil.WriteSuccess(w, user)
}

// GetSettings returns the caller's settings
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	settings, err := h.settings.Get(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load settings")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, settings)
}

type updateSettingsRequest struct {
	Theme    *string `json:"theme"`
	Language *string `json:"language"`
	Timezone *string `json:"timezone"`
}

// UpdateSettings updates the caller's settings. Omitted fields keep
// their current value.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req updateSettingsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	settings, err := h.settings.Get(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load settings")
		httputil.WriteInternalError(w)
		return
	}

	if req.Theme != nil {
		settings.Theme = *req.Theme
	}
	if req.Language != nil {
		settings.Language = *req.Language
	}
	if req.Timezone != nil {
		settings.Timezone = *req.Timezone
	}

	if err := h.settings.Put(r.Context(), settings); err != nil {
		h.logger.WithError(err).Error("failed to store settings")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionUpdate, authCtx.UserID, "updated settings")
	httputil.WriteSuccess(w, settings)
}

// List returns all users
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list users")
		httputil.WriteInternalError(w)
		return
	}
	if list == nil {
		list = []auth.User{}
	}
	httputil.WriteSuccess(w, list)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

// Create adds a user with an assigned role
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireEmail(w, req.Email) {
		return
	}
	if len(req.Password) < minPasswordLength {
		httputil.WriteValidationError(w, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}
	role, ok := normalizeStoredRole(req.Role)
	if !ok {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid role: %s", req.Role))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	user := &auth.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Phone:        req.Phone,
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			httputil.WriteConflict(w, "email already registered")
			return
		}
		h.logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionCreate, user.ID, fmt.Sprintf("created user %s", user.Email))
	httputil.WriteCreated(w, user)
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Phone    *string `json:"phone"`
}

// Update applies a partial update to a user
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != nil && *req.Name == "" {
		httputil.WriteValidationError(w, "name cannot be empty")
		return
	}
	if req.Email != nil && !httputil.ValidEmail(*req.Email) {
		httputil.WriteValidationError(w, "invalid email address")
		return
	}

	patch := auth.UserPatch{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if req.Role != nil {
		role, valid := normalizeStoredRole(*req.Role)
		if !valid {
			httputil.WriteValidationError(w, fmt.Sprintf("invalid role: %s", *req.Role))
			return
		}
		patch.Role = &role
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			httputil.WriteValidationError(w, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.WithError(err).Error("failed to hash password")
			httputil.WriteInternalError(w)
			return
		}
		patch.PasswordHash = &hash
	}

	user, err := h.users.UpdateUser(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		case errors.Is(err, auth.ErrDuplicateEmail):
			httputil.WriteConflict(w, "email already registered")
		default:
			h.logger.WithError(err).Error("failed to update user")
			httputil.WriteInternalError(w)
		}
		return
	}

	h.recordActivity(r, audit.ActionUpdate, user.ID, fmt.Sprintf("updated user %s", user.Email))
	httputil.WriteSuccess(w, user)
}

// Delete removes a user. A user cannot delete their own account.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if authCtx, ok := middleware.GetAuthContext(r); ok && authCtx.UserID == id {
		httputil.WriteValidationError(w, "cannot delete your own account")
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete user")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionDelete, id, "deleted user")
	httputil.WriteNoContent(w)
}

// normalizeStoredRole maps a requested role onto one of the stored role
// strings. An empty role defaults to employee.
func normalizeStoredRole(role string) (string, bool) {
	switch auth.MapRole(role) {
	case auth.RoleAdmin:
		return auth.StoredRoleAdmin, true
	case auth.RoleManager:
		return auth.StoredRoleManager, true
	default:
		// MapRole is total; unknown strings land here, but only accept
		// them when the caller asked for an employee-ish role or none
		switch role {
		case "", "employee", "EMPLOYEE", "member", "user", "staff":
			return auth.StoredRoleEmployee, true
		}
		return "", false
	}
}

func (h *Handlers) recordActivity(r *http.Request, action audit.Action, userID int64, message string) {
	entry := &audit.Entry{
		Action:     action,
		EntityType: audit.EntityUser,
		EntityID:   &userID,
		Message:    message,
	}
	if authCtx, ok := middleware.GetAuthContext(r); ok {
		entry.UserID = &authCtx.UserID
	}
	if err := h.audits.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record activity log entry")
	}
}
