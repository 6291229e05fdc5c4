package documents

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

// Handlers serves the document endpoints
type Handlers struct {
	store          *Store
	objects        ObjectStorage
	audits         *audit.Store
	logger         *observability.Logger
	metrics        *observability.Metrics
	maxUploadBytes int64
}

// NewHandlers creates document handlers. objects may be nil when no
// object storage is configured; upload and download then return 503.
func NewHandlers(store *Store, objects ObjectStorage, audits *audit.Store, logger *observability.Logger, metrics *observability.Metrics, maxUploadBytes int64) *Handlers {
	return &Handlers{
		store:          store,
		objects:        objects,
		audits:         audits,
		logger:         logger,
		metrics:        metrics,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers the document endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router, guard middleware.Guard) {
	router.Handle("/documents",
		guard(rbac.ResourceDocuments, rbac.ActionRead)(http.HandlerFunc(h.List))).Methods(http.MethodGet)
	router.Handle("/documents",
		guard(rbac.ResourceDocuments, rbac.ActionCreate)(http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	router.Handle("/documents/upload",
		guard(rbac.ResourceDocuments, rbac.ActionUpload)(http.HandlerFunc(h.Upload))).Methods(http.MethodPost)
	router.Handle("/documents/{id}",
		guard(rbac.ResourceDocuments, rbac.ActionRead)(http.HandlerFunc(h.Get))).Methods(http.MethodGet)
	router.Handle("/documents/{id}/download",
		guard(rbac.ResourceDocuments, rbac.ActionRead)(http.HandlerFunc(h.Download))).Methods(http.MethodGet)
	router.Handle("/documents/{id}",
		guard(rbac.ResourceDocuments, rbac.ActionDelete)(http.HandlerFunc(h.Delete))).Methods(http.MethodDelete)
}

// List returns documents, optionally filtered by project or task
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "invalid project_id")
			return
		}
		filter.ProjectID = &id
	}
	if v := r.URL.Query().Get("task_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "invalid task_id")
			return
		}
		filter.TaskID = &id
	}

	docs, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list documents")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, docs)
}

// Get returns one document's metadata
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			httputil.WriteNotFoundError(w, "document not found")
			return
		}
		h.logger.WithError(err).Error("failed to get document")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, doc)
}

type createDocumentRequest struct {
	Name      string `json:"name"`
	FileURL   string `json:"file_url"`
	ProjectID *int64 `json:"project_id"`
	TaskID    *int64 `json:"task_id"`
}

// Create records a link-type document that points at an external URL
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createDocumentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.FileURL, "file_url") {
		return
	}

	doc := &Document{
		Name:       req.Name,
		FileURL:    req.FileURL,
		ProjectID:  req.ProjectID,
		TaskID:     req.TaskID,
		UploadedBy: authCtx.UserID,
	}
	if err := h.store.Create(r.Context(), doc); err != nil {
		if errors.Is(err, ErrInvalidReference) {
			httputil.WriteValidationError(w, "referenced project or task not found")
			return
		}
		h.logger.WithError(err).Error("failed to create document")
		httputil.WriteInternalError(w)
		return
	}

	h.recordActivity(r, audit.ActionCreate, doc.ID, fmt.Sprintf("added document %q", doc.Name))
	httputil.WriteCreated(w, doc)
}

// Upload stores a multipart file in object storage and records its
// metadata. The request body is capped at the configured maximum.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if h.objects == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.countUpload("rejected")
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUploadBytes))
			return
		}
		httputil.WriteValidationError(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.countUpload("rejected")
		httputil.WriteValidationError(w, "a file part named 'file' is required")
		return
	}
	defer file.Close()

	doc := &Document{
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   header.Size,
		UploadedBy:  authCtx.UserID,
	}
	if doc.ContentType == "" {
		doc.ContentType = "application/octet-stream"
	}
	if doc.ProjectID, ok = parseOptionalID(w, r.FormValue("project_id"), "project_id"); !ok {
		h.countUpload("rejected")
		return
	}
	if doc.TaskID, ok = parseOptionalID(w, r.FormValue("task_id"), "task_id"); !ok {
		h.countUpload("rejected")
		return
	}

	doc.ObjectKey = fmt.Sprintf("documents/%s/%s", uuid.NewString(), doc.Name)
	if err := h.objects.Put(r.Context(), doc.ObjectKey, file, doc.ContentType); err != nil {
		h.countUpload("error")
		h.logger.WithError(err).Error("failed to store uploaded document")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.Create(r.Context(), doc); err != nil {
		// The blob is orphaned if we leave it; remove it before failing
		if cleanupErr := h.objects.Delete(r.Context(), doc.ObjectKey); cleanupErr != nil {
			h.logger.WithError(cleanupErr).Warn("failed to clean up orphaned upload")
		}
		h.countUpload("error")
		if errors.Is(err, ErrInvalidReference) {
			httputil.WriteValidationError(w, "referenced project or task not found")
			return
		}
		h.logger.WithError(err).Error("failed to record uploaded document")
		httputil.WriteInternalError(w)
		return
	}

	h.countUpload("success")
	if h.metrics != nil {
		h.metrics.DocumentUploadBytes.Observe(float64(doc.SizeBytes))
	}
	h.recordActivity(r, audit.ActionUpload, doc.ID, fmt.Sprintf("uploaded document %q", doc.Name))
	httputil.WriteCreated(w, doc)
}

// Download streams an uploaded document, or redirects to the external
// URL for link-type documents
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			httputil.WriteNotFoundError(w, "document not found")
			return
		}
		h.logger.WithError(err).Error("failed to get document")
		httputil.WriteInternalError(w)
		return
	}

	if doc.ObjectKey == "" {
		if doc.FileURL == "" {
			httputil.WriteNotFoundError(w, "document has no stored content")
			return
		}
		http.Redirect(w, r, doc.FileURL, http.StatusFound)
		return
	}

	if h.objects == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	body, err := h.objects.Get(r.Context(), doc.ObjectKey)
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch document content")
		httputil.WriteInternalError(w)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WithError(err).Warn("document download interrupted")
	}
}

// Delete removes the document record and its stored object
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.store.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			httputil.WriteNotFoundError(w, "document not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete document")
		httputil.WriteInternalError(w)
		return
	}

	// The record is gone; a leftover blob only wastes space
	if doc.ObjectKey != "" && h.objects != nil {
		if err := h.objects.Delete(r.Context(), doc.ObjectKey); err != nil {
			h.logger.WithError(err).Warn("failed to delete stored object")
		}
	}

	h.recordActivity(r, audit.ActionDelete, id, fmt.Sprintf("deleted document %q", doc.Name))
	httputil.WriteNoContent(w)
}

func parseOptionalID(w http.ResponseWriter, value, field string) (*int64, bool) {
	if value == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid "+field)
		return nil, false
	}
	return &id, true
}

func (h *Handlers) countUpload(status string) {
	if h.metrics != nil {
		h.metrics.DocumentUploadsTotal.WithLabelValues(status).Inc()
	}
}

func (h *Handlers) recordActivity(r *http.Request, action audit.Action, docID int64, message string) {
	entry := &audit.Entry{
		Action:     action,
		EntityType: audit.EntityDocument,
		EntityID:   &docID,
		Message:    message,
	}
	if authCtx, ok := middleware.GetAuthContext(r); ok {
		entry.UserID = &authCtx.UserID
	}
	if err := h.audits.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record activity log entry")
	}
}
