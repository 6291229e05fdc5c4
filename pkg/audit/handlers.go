package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handlers serves the activity log endpoints
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates activity log handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers the activity log endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router, guard func(rbac.Resource, rbac.Action) func(http.Handler) http.Handler) {
	router.Handle("/activity-logs",
		guard(rbac.ResourceActivityLogs, rbac.ActionRead)(http.HandlerFunc(h.List))).Methods(http.MethodGet)
}

// List returns activity log entries, newest first, filtered by query params
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list activity logs")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, entries)
}

func parseFilter(r *http.Request) (Filter, error) {
	filter := Filter{Limit: defaultListLimit}

	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errInvalidParam("user_id", v)
		}
		filter.UserID = &id
	}
	if v := r.URL.Query().Get("entity_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errInvalidParam("entity_id", v)
		}
		filter.EntityID = &id
	}
	filter.Action = Action(r.URL.Query().Get("action"))
	filter.EntityType = EntityType(r.URL.Query().Get("entity_type"))

	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("since", v)
		}
		filter.Since = &t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("until", v)
		}
		filter.Until = &t
	}

	limit, err := httputil.ParseQueryInt(r, "limit", defaultListLimit)
	if err != nil {
		return filter, err
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	filter.Limit = limit

	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		return filter, err
	}
	if offset < 0 {
		offset = 0
	}
	filter.Offset = offset

	return filter, nil
}

type paramError struct {
	name, value string
}

func (e paramError) Error() string {
	return "invalid value for " + e.name + ": " + e.value
}

func errInvalidParam(name, value string) error {
	return paramError{name: name, value: value}
}
