package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidRejectToken = errors.New("invalid or already used reject token")

// rejectTokenTTL bounds how long an emailed refusal link stays valid
const rejectTokenTTL = 7 * 24 * time.Hour

// CreateRejectToken issues a single-use token bound to a task, for
// embedding in a refusal link sent by email. The token is distinct from
// any session credential.
func (s *Store) CreateRejectToken(ctx context.Context, taskID int64) (string, error) {
	token := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reject_tokens (token, task_id) VALUES ($1, $2)
	`, token, taskID)
	if err != nil {
		return "", fmt.Errorf("failed to create reject token: %w", err)
	}
	return token, nil
}

// ConsumeRejectToken validates that the token exists, is unused, is not
// expired and is bound to the given task, and marks it used. The UPDATE
// with a used_at guard makes consumption atomic: two concurrent attempts
// cannot both succeed.
func (s *Store) ConsumeRejectToken(ctx context.Context, token string, taskID int64) error {
	var consumed string
	err := s.db.QueryRowContext(ctx, `
		UPDATE reject_tokens
		SET used_at = NOW()
		WHERE token = $1 AND task_id = $2 AND used_at IS NULL AND created_at > $3
		RETURNING token
	`, token, taskID, time.Now().Add(-rejectTokenTTL)).Scan(&consumed)

	if err == sql.ErrNoRows {
		return ErrInvalidRejectToken
	}
	if err != nil {
		return fmt.Errorf("failed to consume reject token: %w", err)
	}
	return nil
}

// PeekRejectToken checks validity without consuming, for loading the
// refusal form before the user submits.
func (s *Store) PeekRejectToken(ctx context.Context, token string, taskID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reject_tokens
			WHERE token = $1 AND task_id = $2 AND used_at IS NULL AND created_at > $3
		)
	`, token, taskID, time.Now().Add(-rejectTokenTTL)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check reject token: %w", err)
	}
	if !exists {
		return ErrInvalidRejectToken
	}
	return nil
}
