package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskboard/taskboard/pkg/contextkeys"
)

// Store persists activity log entries in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new activity log store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the activity_logs table and its indexes
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS activity_logs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT,
		action VARCHAR(50) NOT NULL,
		entity_type VARCHAR(50) NOT NULL,
		entity_id BIGINT,
		message TEXT NOT NULL DEFAULT '',
		request_id VARCHAR(100),
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_entity ON activity_logs(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_action ON activity_logs(action);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Log inserts one entry. The request id is taken from the context when the
// entry does not carry one already.
func (s *Store) Log(ctx context.Context, entry *Entry) error {
	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal activity metadata: %w", err)
		}
	}

	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO activity_logs (user_id, action, entity_type, entity_id, message, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, entry.UserID, entry.Action, entry.EntityType, entry.EntityID,
		entry.Message, entry.RequestID, metadataJSON, entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first
func (s *Store) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	query := `
		SELECT id, user_id, action, entity_type, entity_id, message, request_id, metadata, created_at
		FROM activity_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, string(filter.Action))
		argCount++
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, string(filter.EntityType))
		argCount++
	}
	if filter.EntityID != nil {
		query += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, *filter.EntityID)
		argCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.Since)
		argCount++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.Until)
		argCount++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var requestID sql.NullString
		var metadataJSON []byte

		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Action, &entry.EntityType, &entry.EntityID,
			&entry.Message, &requestID, &metadataJSON, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}

		entry.RequestID = requestID.String
		if len(metadataJSON) > 0 {
			entry.Metadata = make(map[string]interface{})
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LogTx inserts an entry inside an existing transaction so that status
// changes and their activity records commit or roll back together.
func LogTx(ctx context.Context, tx *sql.Tx, entry *Entry) error {
	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal activity metadata: %w", err)
		}
	}

	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO activity_logs (user_id, action, entity_type, entity_id, message, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, entry.UserID, entry.Action, entry.EntityType, entry.EntityID,
		entry.Message, entry.RequestID, metadataJSON, entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}
