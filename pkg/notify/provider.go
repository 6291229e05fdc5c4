package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskboard/taskboard/pkg/config"
)

const defaultMessagingAPIBase = "https://api.twilio.com/2010-04-01"

// MessagingSender delivers SMS or WhatsApp messages through a
// Twilio-compatible messaging API
type MessagingSender struct {
	client     *http.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
	whatsapp   bool
}

// NewSMSSender creates an SMS sender, or nil when no account is
// configured
func NewSMSSender(cfg config.NotifyConfig) *MessagingSender {
	if cfg.SMSAccountSID == "" || cfg.SMSFrom == "" {
		return nil
	}
	return &MessagingSender{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultMessagingAPIBase,
		accountSID: cfg.SMSAccountSID,
		authToken:  cfg.SMSAuthToken,
		from:       cfg.SMSFrom,
	}
}

// NewWhatsAppSender creates a WhatsApp sender on the same messaging
// account, or nil when unconfigured
func NewWhatsAppSender(cfg config.NotifyConfig) *MessagingSender {
	if cfg.SMSAccountSID == "" || cfg.WhatsAppFrom == "" {
		return nil
	}
	return &MessagingSender{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultMessagingAPIBase,
		accountSID: cfg.SMSAccountSID,
		authToken:  cfg.SMSAuthToken,
		from:       cfg.WhatsAppFrom,
		whatsapp:   true,
	}
}

// Send posts one message to the provider API
func (s *MessagingSender) Send(ctx context.Context, to, subject, body string) error {
	from := s.from
	if s.whatsapp {
		from = "whatsapp:" + strings.TrimPrefix(from, "whatsapp:")
		to = "whatsapp:" + strings.TrimPrefix(to, "whatsapp:")
	}

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", subject+"\n"+body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("messaging API error: status %d", resp.StatusCode)
	}
	return nil
}
