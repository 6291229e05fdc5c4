package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidReference means the project or task the document points
	// at does not exist
	ErrInvalidReference = errors.New("referenced project or task not found")
)

// Store provides document metadata persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a document store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the documents table if needed
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			size_bytes BIGINT NOT NULL DEFAULT 0,
			object_key TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			project_id BIGINT REFERENCES projects(id) ON DELETE CASCADE,
			task_id BIGINT REFERENCES tasks(id) ON DELETE CASCADE,
			uploaded_by BIGINT NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);
		CREATE INDEX IF NOT EXISTS idx_documents_task ON documents(task_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure documents schema: %w", err)
	}
	return nil
}

const documentColumns = `d.id, d.name, d.content_type, d.size_bytes, d.object_key, d.file_url,
	d.project_id, d.task_id, d.uploaded_by, COALESCE(u.name, '') AS uploader, d.created_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.Name, &doc.ContentType, &doc.SizeBytes, &doc.ObjectKey,
		&doc.FileURL, &doc.ProjectID, &doc.TaskID, &doc.UploadedBy, &doc.Uploader,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create inserts a document record
func (s *Store) Create(ctx context.Context, doc *Document) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (name, content_type, size_bytes, object_key, file_url, project_id, task_id, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, doc.Name, doc.ContentType, doc.SizeBytes, doc.ObjectKey, doc.FileURL,
		doc.ProjectID, doc.TaskID, doc.UploadedBy).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get returns one document with the uploader name joined in
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		LEFT JOIN users u ON u.id = d.uploaded_by
		WHERE d.id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns documents matching the filter, newest first
func (s *Store) List(ctx context.Context, filter Filter) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		LEFT JOIN users u ON u.id = d.uploaded_by
		WHERE 1=1`

	args := []interface{}{}
	argCount := 0
	if filter.ProjectID != nil {
		argCount++
		query += fmt.Sprintf(" AND d.project_id = $%d", argCount)
		args = append(args, *filter.ProjectID)
	}
	if filter.TaskID != nil {
		argCount++
		query += fmt.Sprintf(" AND d.task_id = $%d", argCount)
		args = append(args, *filter.TaskID)
	}
	query += " ORDER BY d.created_at DESC, d.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document record and returns it so the caller can
// clean up the stored object
func (s *Store) Delete(ctx context.Context, id int64) (*Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	if affected == 0 {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
