package notify

import "time"

// Channel identifies a delivery channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Preference holds a user's per-channel notification opt-ins. A user
// without a stored row gets the defaults (everything on).
type Preference struct {
	UserID          int64     `json:"user_id"`
	EmailEnabled    bool      `json:"email_enabled"`
	SMSEnabled      bool      `json:"sms_enabled"`
	WhatsAppEnabled bool      `json:"whatsapp_enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultPreference is what a user gets before they change anything
func DefaultPreference(userID int64) *Preference {
	return &Preference{
		UserID:          userID,
		EmailEnabled:    true,
		SMSEnabled:      true,
		WhatsAppEnabled: true,
	}
}
