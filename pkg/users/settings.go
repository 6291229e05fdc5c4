package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Settings holds per-user UI and locale preferences. Users without a
// stored row get the defaults.
type Settings struct {
	UserID    int64     `json:"user_id"`
	Theme     string    `json:"theme"`
	Language  string    `json:"language"`
	Timezone  string    `json:"timezone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings is what a user gets before they change anything
func DefaultSettings(userID int64) *Settings {
	return &Settings{
		UserID:   userID,
		Theme:    "light",
		Language: "en",
		Timezone: "UTC",
	}
}

// SettingsStore persists user settings
type SettingsStore struct {
	db *sql.DB
}

// NewSettingsStore creates a settings store
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// EnsureSchema creates the user_settings table if needed
func (s *SettingsStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_settings (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			theme TEXT NOT NULL DEFAULT 'light',
			language TEXT NOT NULL DEFAULT 'en',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure user_settings schema: %w", err)
	}
	return nil
}

// Get returns the user's settings, falling back to defaults when no
// row exists yet. Defaults are not written on read.
func (s *SettingsStore) Get(ctx context.Context, userID int64) (*Settings, error) {
	var settings Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, theme, language, timezone, updated_at
		FROM user_settings WHERE user_id = $1
	`, userID).Scan(&settings.UserID, &settings.Theme, &settings.Language,
		&settings.Timezone, &settings.UpdatedAt)
	if err == sql.ErrNoRows {
		return DefaultSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	return &settings, nil
}

// Put stores the user's settings, creating the row on first write
func (s *SettingsStore) Put(ctx context.Context, settings *Settings) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_settings (user_id, theme, language, timezone, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			theme = EXCLUDED.theme,
			language = EXCLUDED.language,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
		RETURNING updated_at
	`, settings.UserID, settings.Theme, settings.Language, settings.Timezone).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store user settings: %w", err)
	}
	return nil
}
