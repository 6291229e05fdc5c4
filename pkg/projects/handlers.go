package projects

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

// Handlers serves the project and stage endpoints
type Handlers struct {
	store  *Store
	audits *audit.Store
	logger *observability.Logger
}

// NewHandlers creates project handlers
func NewHandlers(store *Store, audits *audit.Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, audits: audits, logger: logger}
}

// RegisterRoutes registers project and stage endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router, guard middleware.Guard) {
	router.Handle("/projects",
		guard(rbac.ResourceProjects, rbac.ActionRead)(http.HandlerFunc(h.List))).Methods(http.MethodGet)
	router.Handle("/projects",
		guard(rbac.ResourceProjects, rbac.ActionCreate)(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	router.Handle("/projects/{id}",
		guard(rbac.ResourceProjects, rbac.ActionRead)(http.HandlerFunc(h.Get))).Methods(http.MethodGet)
	router.Handle("/projects/{id}",
		guard(rbac.ResourceProjects, rbac.ActionUpdate)(http.HandlerFunc(h.Update))).Methods(http.MethodPut)
	router.Handle("/projects/{id}",
		guard(rbac.ResourceProjects, rbac.ActionDelete)(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)

	router.Handle("/projects/{id}/stages",
		guard(rbac.ResourceProjects, rbac.ActionRead)(http.HandlerFunc(h.ListStages))).Methods(http.MethodGet)
	router.Handle("/projects/{id}/stages",
		guard(rbac.ResourceStages, rbac.ActionCreate)(http.HandlerFunc(h.CreateStage))).Methods(http.MethodPost)
	router.Handle("/projects/{id}/stages/{stageId}",
		guard(rbac.ResourceStages, rbac.ActionUpdate)(http.HandlerFunc(h.UpdateStage))).Methods(http.MethodPut)
	router.Handle("/projects/{id}/stages/{stageId}",
		guard(rbac.ResourceStages, rbac.ActionDelete)(http.HandlerFunc(h.DeleteStage))).Methods(http.MethodDelete)
}

type createProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	ManagerID   *int64 `json:"manager_id"`
}

// List returns all projects
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list projects")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, list)
}

// Get returns one project
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFoundError(w, "project not found")
			return
		}
		h.logger.WithError(err).Error("failed to get project")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, project)
}

// Create creates a project
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createProjectRequest
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

	project := &Project{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		ManagerID:   req.ManagerID,
		CreatedBy:   authCtx.UserID,
	}
	if err := h.store.CreateProject(r.Context(), project); err != nil {
		h.logger.WithError(err).Error("failed to create project")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionCreate, audit.EntityProject, project.ID,
		fmt.Sprintf("created project %q", project.Title))
	httputil.WriteCreated(w, project)
}

// Update applies a partial update to a project
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var patch ProjectPatch
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

	project, err := h.store.UpdateProject(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFoundError(w, "project not found")
			return
		}
		h.logger.WithError(err).Error("failed to update project")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionUpdate, audit.EntityProject, project.ID,
		fmt.Sprintf("updated project %q", project.Title))
	httputil.WriteSuccess(w, project)
}

// Delete removes a project and its stages
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFoundError(w, "project not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete project")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionDelete, audit.EntityProject, id, "deleted project")
	httputil.WriteNoContent(w)
}

type createStageRequest struct {
	Name         string  `json:"name"`
	StageOrder   int     `json:"order"`
	DurationDays int     `json:"duration_days"`
	Status       Status  `json:"status"`
	Dependencies []int64 `json:"dependencies"`
}

// ListStages returns a project's stages in order
func (h *Handlers) ListStages(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	stages, err := h.store.ListStages(r.Context(), projectID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list stages")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, stages)
}

// CreateStage adds a stage to a project
func (h *Handlers) CreateStage(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req createStageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", req.Status))
		return
	}

	stage := &Stage{
		ProjectID:    projectID,
		Name:         req.Name,
		StageOrder:   req.StageOrder,
		DurationDays: req.DurationDays,
		Status:       req.Status,
		Dependencies: req.Dependencies,
	}
	if err := h.store.CreateStage(r.Context(), stage); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFoundError(w, "project not found")
			return
		}
		h.logger.WithError(err).Error("failed to create stage")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionCreate, audit.EntityStage, stage.ID,
		fmt.Sprintf("created stage %q", stage.Name))
	httputil.WriteCreated(w, stage)
}

// UpdateStage applies a partial update to a stage
func (h *Handlers) UpdateStage(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	stageID, ok := httputil.ParsePathInt64OrError(w, r, "stageId")
	if !ok {
		return
	}

	var patch StagePatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	if patch.Name != nil && *patch.Name == "" {
		httputil.WriteValidationError(w, "name cannot be empty")
		return
	}
	if patch.Status != nil && !ValidStatus(*patch.Status) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", *patch.Status))
		return
	}

	stage, err := h.store.UpdateStage(r.Context(), projectID, stageID, patch)
	if err != nil {
		if errors.Is(err, ErrStageNotFound) {
			httputil.WriteNotFoundError(w, "stage not found")
			return
		}
		h.logger.WithError(err).Error("failed to update stage")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionUpdate, audit.EntityStage, stage.ID,
		fmt.Sprintf("updated stage %q", stage.Name))
	httputil.WriteSuccess(w, stage)
}

// DeleteStage removes a stage from a project
func (h *Handlers) DeleteStage(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	stageID, ok := httputil.ParsePathInt64OrError(w, r, "stageId")
	if !ok {
		return
	}

	if err := h.store.DeleteStage(r.Context(), projectID, stageID); err != nil {
		if errors.Is(err, ErrStageNotFound) {
			httputil.WriteNotFoundError(w, "stage not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete stage")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionDelete, audit.EntityStage, stageID, "deleted stage")
	httputil.WriteNoContent(w)
}

// recordActivity writes an activity log entry. Failures are logged and
// never fail the request that caused them.
func (h *Handlers) recordActivity(r *http.Request, action audit.Action, entity audit.EntityType, entityID int64, message string) {
	entry := &audit.Entry{
		Action:     action,
		EntityType: entity,
		EntityID:   &entityID,
		Message:    message,
	}
	if authCtx, ok := middleware.GetAuthContext(r); ok {
		entry.UserID = &authCtx.UserID
	}
	if err := h.audits.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record activity log entry")
	}
}
