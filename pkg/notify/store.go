package notify

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists notification preferences
type Store struct {
	db *sql.DB
}

// NewStore creates a preference store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the notification_preferences table if needed
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			sms_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			whatsapp_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure notification_preferences schema: %w", err)
	}
	return nil
}

// Get returns the user's preferences, falling back to the defaults when
// no row exists yet. The defaults are not written on read.
func (s *Store) Get(ctx context.Context, userID int64) (*Preference, error) {
	var pref Preference
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email_enabled, sms_enabled, whatsapp_enabled, updated_at
		FROM notification_preferences WHERE user_id = $1
	`, userID).Scan(&pref.UserID, &pref.EmailEnabled, &pref.SMSEnabled,
		&pref.WhatsAppEnabled, &pref.UpdatedAt)
	if err == sql.ErrNoRows {
		return DefaultPreference(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return &pref, nil
}

// Put stores the user's preferences, creating the row on first write
func (s *Store) Put(ctx context.Context, pref *Preference) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_preferences (user_id, email_enabled, sms_enabled, whatsapp_enabled, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			whatsapp_enabled = EXCLUDED.whatsapp_enabled,
			updated_at = NOW()
		RETURNING updated_at
	`, pref.UserID, pref.EmailEnabled, pref.SMSEnabled, pref.WhatsAppEnabled).Scan(&pref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store notification preferences: %w", err)
	}
	return nil
}
