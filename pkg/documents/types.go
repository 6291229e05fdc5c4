package documents

import "time"

// Document is a stored file or an external link attached to a project
// or a task. Uploaded files live in object storage under ObjectKey;
// link-type documents carry only FileURL.
type Document struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	ObjectKey   string    `json:"-"`
	FileURL     string    `json:"file_url,omitempty"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	TaskID      *int64    `json:"task_id,omitempty"`
	UploadedBy  int64     `json:"uploaded_by"`
	Uploader    string    `json:"uploader,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows document listings
type Filter struct {
	ProjectID *int64
	TaskID    *int64
}
