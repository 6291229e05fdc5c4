package notify

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Get_LazyDefaults(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("FROM notification_preferences").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "email_enabled", "sms_enabled", "whatsapp_enabled", "updated_at",
		}))

	pref, err := store.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, pref.EmailEnabled)
	assert.True(t, pref.SMSEnabled)
	assert.True(t, pref.WhatsAppEnabled)
	assert.Equal(t, int64(5), pref.UserID)
}

func TestStore_Get_StoredRow(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("FROM notification_preferences").
		WithArgs(int64(5)).
		WillReturnRows(prefRow(false, true, false))

	pref, err := store.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, pref.EmailEnabled)
	assert.True(t, pref.SMSEnabled)
	assert.False(t, pref.WhatsAppEnabled)
}

func TestStore_Put_Upserts(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("INSERT INTO notification_preferences").
		WithArgs(int64(5), false, true, true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	pref := &Preference{UserID: 5, EmailEnabled: false, SMSEnabled: true, WhatsAppEnabled: true}
	require.NoError(t, store.Put(context.Background(), pref))
	assert.False(t, pref.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
