package tasks

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

// Handlers serves the task endpoints
type Handlers struct {
	store       *Store
	workflow    *Workflow
	processor   *ReminderProcessor
	audits      *audit.Store
	logger      *observability.Logger
	frontendURL string
}

// NewHandlers creates task handlers. frontendURL is the base for
// reject-link redirects.
func NewHandlers(store *Store, workflow *Workflow, processor *ReminderProcessor, audits *audit.Store, logger *observability.Logger, frontendURL string) *Handlers {
	return &Handlers{
		store:       store,
		workflow:    workflow,
		processor:   processor,
		audits:      audits,
		logger:      logger,
		frontendURL: frontendURL,
	}
}

// RegisterRoutes registers the authenticated task endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router, guard middleware.Guard) {
	router.Handle("/tasks",
		guard(rbac.ResourceTasks, rbac.ActionRead)(http.HandlerFunc(h.List))).Methods(http.MethodGet)
	router.Handle("/tasks",
		guard(rbac.ResourceTasks, rbac.ActionCreate)(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	router.Handle("/tasks/{id}",
		guard(rbac.ResourceTasks, rbac.ActionRead)(http.HandlerFunc(h.Get))).Methods(http.MethodGet)
	router.Handle("/tasks/{id}",
		guard(rbac.ResourceTasks, rbac.ActionUpdate)(http.HandlerFunc(h.Update))).Methods(http.MethodPut)
	router.Handle("/tasks/{id}",
		guard(rbac.ResourceTasks, rbac.ActionDelete)(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)

	router.Handle("/tasks/{id}/respond",
		guard(rbac.ResourceTasks, rbac.ActionRespond)(http.HandlerFunc(h.Respond))).Methods(http.MethodPost)
	router.Handle("/tasks/{id}/reject",
		guard(rbac.ResourceTasks, rbac.ActionRespond)(http.HandlerFunc(h.Reject))).Methods(http.MethodPost)
	router.Handle("/tasks/{id}/refuse",
		guard(rbac.ResourceTasks, rbac.ActionRespond)(http.HandlerFunc(h.Reject))).Methods(http.MethodPost)

	router.Handle("/reminders",
		guard(rbac.ResourceReminders, rbac.ActionTrigger)(http.HandlerFunc(h.TriggerReminders))).Methods(http.MethodPost)
}

// RegisterPublicRoutes registers routes served without a session token.
// The reject link arrives by email, so the recipient may not be signed in.
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/tasks/{id}/reject-link", h.RejectLink).Methods(http.MethodGet)
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	ProjectID   *int64     `json:"project_id"`
	AssigneeIDs []int64    `json:"assignee_ids"`
}

// List returns tasks matching the query filters
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Status: Status(r.URL.Query().Get("status"))}
	if filter.Status != "" && !ValidStatus(filter.Status) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", filter.Status))
		return
	}

	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "invalid project_id")
			return
		}
		filter.ProjectID = &id
	}
	if v := r.URL.Query().Get("assignee_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "invalid assignee_id")
			return
		}
		filter.AssigneeID = &id
	}

	list, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list tasks")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, list)
}

// Get returns one task with its assignees
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			httputil.WriteNotFoundError(w, "task not found")
			return
		}
		h.logger.WithError(err).Error("failed to get task")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, task)
}

// Create creates a task with its assignees
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", req.Status))
		return
	}

	task := &Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     req.DueDate,
		ProjectID:   req.ProjectID,
		CreatedBy:   authCtx.UserID,
		AssigneeIDs: req.AssigneeIDs,
	}
	if err := h.store.CreateTask(r.Context(), task); err != nil {
		h.logger.WithError(err).Error("failed to create task")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionCreate, task.ID, fmt.Sprintf("created task %q", task.Title))
	h.workflow.NotifyAssignees(r.Context(), task)
	httputil.WriteCreated(w, task)
}

// Update applies a partial update to a task
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var patch TaskPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	if patch.Title != nil && *patch.Title == "" {
		httputil.WriteValidationError(w, "title cannot be empty")
		return
	}
	if patch.Status != nil && !ValidStatus(*patch.Status) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", *patch.Status))
		return
	}

	task, err := h.store.UpdateTask(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			httputil.WriteNotFoundError(w, "task not found")
			return
		}
		h.logger.WithError(err).Error("failed to update task")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionUpdate, task.ID, fmt.Sprintf("updated task %q", task.Title))
	httputil.WriteSuccess(w, task)
}

// Delete removes a task
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteTask(r.Context(), id); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			httputil.WriteNotFoundError(w, "task not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete task")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionDelete, id, "deleted task")
	httputil.WriteNoContent(w)
}

type respondRequest struct {
	Response ResponseKind `json:"response"`
	Reason   string       `json:"reason"`
	Token    string       `json:"token"`
}

// Respond records the caller's accept/reject decision on a task
func (h *Handlers) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	h.handleResponse(w, r, req)
}

// Reject records a refusal; the response kind is implied by the route
func (h *Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Response = ResponseRejected
	h.handleResponse(w, r, req)
}

func (h *Handlers) handleResponse(w http.ResponseWriter, r *http.Request, req respondRequest) {
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	// A token from an emailed reject link is checked up front but only
	// burned once the response commits, so a rejected submission (wrong
	// user, missing reason) leaves the link usable
	if req.Token != "" {
		if err := h.store.PeekRejectToken(r.Context(), req.Token, taskID); err != nil {
			if errors.Is(err, ErrInvalidRejectToken) {
				httputil.WriteValidationError(w, "invalid or already used reject token")
				return
			}
			h.logger.WithError(err).Error("failed to validate reject token")
			httputil.WriteInternalError(w)
			return
		}
	}

	response, err := h.workflow.Respond(r.Context(), taskID, authCtx.UserID, req.Response, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrTaskNotFound):
			httputil.WriteNotFoundError(w, "task not found")
		case errors.Is(err, ErrNotAssignee):
			httputil.WriteForbidden(w, "only assignees may respond to this task")
		case errors.Is(err, ErrUnknownResponse):
			httputil.WriteValidationError(w, ErrUnknownResponse.Error())
		case errors.Is(err, ErrEmptyReason):
			httputil.WriteValidationError(w, "a refusal reason is required")
		case errors.Is(err, ErrAlreadyResponded):
			h.writeExistingResponse(w, r, taskID, authCtx.UserID)
		default:
			h.logger.WithError(err).Error("failed to record task response")
			httputil.WriteInternalError(w)
		}
		return
	}

	if req.Token != "" {
		if err := h.store.ConsumeRejectToken(r.Context(), req.Token, taskID); err != nil {
			// The response itself is committed; a concurrent consume is
			// harmless now
			h.logger.WithError(err).Warn("failed to consume reject token")
		}
	}

	httputil.WriteCreated(w, response)
}

// writeExistingResponse returns 409 carrying the previously recorded decision
func (h *Handlers) writeExistingResponse(w http.ResponseWriter, r *http.Request, taskID, userID int64) {
	existing, err := h.store.GetResponse(r.Context(), taskID, userID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load existing task response")
		httputil.WriteConflict(w, "user already responded to this task")
		return
	}
	httputil.WriteConflictWith(w, "user already responded to this task", string(existing.Response))
}

// RejectLink validates an emailed refusal token and redirects to the
// frontend refusal form, or to its error page on any mismatch. An invalid
// link never silently succeeds.
func (h *Handlers) RejectLink(w http.ResponseWriter, r *http.Request) {
	taskID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		http.Redirect(w, r, h.frontendURL+"/reject-error", http.StatusFound)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, h.frontendURL+"/reject-error", http.StatusFound)
		return
	}

	if err := h.store.PeekRejectToken(r.Context(), token, taskID); err != nil {
		if !errors.Is(err, ErrInvalidRejectToken) {
			h.logger.WithError(err).Error("failed to validate reject token")
		}
		http.Redirect(w, r, h.frontendURL+"/reject-error", http.StatusFound)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("%s/tasks/%d/refuse?token=%s", h.frontendURL, taskID, token), http.StatusFound)
}

// TriggerReminders runs the reminder batch on demand
func (h *Handlers) TriggerReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.processor.Process(r.Context(), time.Now())
	if err != nil {
		h.logger.WithError(err).Error("reminder processing failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"reminders_sent": sent})
}

func (h *Handlers) recordActivity(r *http.Request, action audit.Action, taskID int64, message string) {
	entry := &audit.Entry{
		Action:     action,
		EntityType: audit.EntityTask,
		EntityID:   &taskID,
		Message:    message,
	}
	if authCtx, ok := middleware.GetAuthContext(r); ok {
		entry.UserID = &authCtx.UserID
	}
	if err := h.audits.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record activity log entry")
	}
}
