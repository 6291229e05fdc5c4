package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/observability"
)

const minPasswordLength = 8

// AuthHandlers serves login and registration
type AuthHandlers struct {
	users  *auth.Store
	tokens *auth.TokenManager
	audits *audit.Store
	logger *observability.Logger
}

// NewAuthHandlers creates the authentication handlers
func NewAuthHandlers(users *auth.Store, tokens *auth.TokenManager, audits *audit.Store, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		users:  users,
		tokens: tokens,
		audits: audits,
		logger: logger,
	}
}

// RegisterRoutes registers the public auth endpoints
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	router.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

// Login verifies credentials and issues a session token. Failures are
// reported identically whether the email or the password was wrong.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			h.recordLoginFailure(r, req.Email)
			httputil.WriteUnauthorized(w, "invalid email or password")
			return
		}
		h.logger.WithError(err).Error("failed to look up user for login")
		httputil.WriteInternalError(w)
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		h.recordLoginFailure(r, req.Email)
		httputil.WriteUnauthorized(w, "invalid email or password")
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		h.logger.WithError(err).Error("failed to generate session token")
		httputil.WriteInternalError(w)
		return
	}

	h.recordAuthEvent(r, audit.ActionLogin, user.ID, fmt.Sprintf("user %s logged in", user.Email))
	httputil.WriteSuccess(w, authResponse{Token: token, User: user})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Register creates a new employee account and signs it in
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	// Self-registration always creates an employee; role changes are an
	// admin operation
	user := &auth.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         auth.StoredRoleEmployee,
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

	token, err := h.tokens.Generate(user)
	if err != nil {
		h.logger.WithError(err).Error("failed to generate session token")
		httputil.WriteInternalError(w)
		return
	}

	h.recordAuthEvent(r, audit.ActionRegister, user.ID, fmt.Sprintf("user %s registered", user.Email))
	httputil.WriteCreated(w, authResponse{Token: token, User: user})
}

func (h *AuthHandlers) recordAuthEvent(r *http.Request, action audit.Action, userID int64, message string) {
	entry := &audit.Entry{
		UserID:     &userID,
		Action:     action,
		EntityType: audit.EntityUser,
		EntityID:   &userID,
		Message:    message,
	}
	if err := h.audits.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record activity log entry")
	}
}

// recordLoginFailure logs a failed attempt without revealing whether the
// account exists
func (h *AuthHandlers) recordLoginFailure(r *http.Request, email string) {
	entry := &audit.Entry{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntityUser,
		Message:    fmt.Sprintf("failed login attempt for %s", email),
	}
	if err := h.audits.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record activity log entry")
	}
}
