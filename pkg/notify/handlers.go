package notify

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

// Handlers serves the notification preference endpoints
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates notification preference handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers the preference endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router, guard middleware.Guard) {
	router.Handle("/notification-preferences",
		guard(rbac.ResourceNotificationPreferences, rbac.ActionRead)(http.HandlerFunc(h.Get))).Methods(http.MethodGet)
	router.Handle("/notification-preferences",
		guard(rbac.ResourceNotificationPreferences, rbac.ActionUpdate)(http.HandlerFunc(h.Put))).Methods(http.MethodPut)
}

// Get returns the caller's notification preferences
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	pref, err := h.store.Get(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load notification preferences")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, pref)
}

type putPreferencesRequest struct {
	EmailEnabled    *bool `json:"email_enabled"`
	SMSEnabled      *bool `json:"sms_enabled"`
	WhatsAppEnabled *bool `json:"whatsapp_enabled"`
}

// Put updates the caller's notification preferences. Omitted fields
// keep their current value.
func (h *Handlers) Put(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req putPreferencesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pref, err := h.store.Get(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load notification preferences")
		httputil.WriteInternalError(w)
		return
	}

	if req.EmailEnabled != nil {
		pref.EmailEnabled = *req.EmailEnabled
	}
	if req.SMSEnabled != nil {
		pref.SMSEnabled = *req.SMSEnabled
	}
	if req.WhatsAppEnabled != nil {
		pref.WhatsAppEnabled = *req.WhatsAppEnabled
	}

	if err := h.store.Put(r.Context(), pref); err != nil {
		h.logger.WithError(err).Error("failed to store notification preferences")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, pref)
}
