package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/config"
	"github.com/taskboard/taskboard/pkg/observability"
)

// ChannelSender delivers one message over one channel
type ChannelSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher fans a notification out to every channel the recipient has
// enabled. Delivery is best effort: a failed channel is logged and
// counted but never surfaces to the caller.
type Dispatcher struct {
	prefs    *Store
	email    ChannelSender
	sms      ChannelSender
	whatsapp ChannelSender
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher. Any sender may be nil; the
// corresponding channel is then skipped with a debug log.
func NewDispatcher(prefs *Store, email, sms, whatsapp ChannelSender, logger *logrus.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		prefs:    prefs,
		email:    email,
		sms:      sms,
		whatsapp: whatsapp,
		logger:   logger,
		metrics:  metrics,
	}
}

// NewDispatcherFromConfig builds a dispatcher with whichever channels
// the configuration enables. A nil sender must stay a nil interface, so
// each constructor result is checked before assignment.
func NewDispatcherFromConfig(prefs *Store, cfg config.NotifyConfig, logger *logrus.Logger, metrics *observability.Metrics) *Dispatcher {
	var email, sms, whatsapp ChannelSender
	if s := NewSMTPSender(cfg); s != nil {
		email = s
	}
	if s := NewSMSSender(cfg); s != nil {
		sms = s
	}
	if s := NewWhatsAppSender(cfg); s != nil {
		whatsapp = s
	}
	return NewDispatcher(prefs, email, sms, whatsapp, logger, metrics)
}

// Notify delivers subject/body to the user over their enabled channels
func (d *Dispatcher) Notify(ctx context.Context, user *auth.User, subject, body string) {
	pref, err := d.prefs.Get(ctx, user.ID)
	if err != nil {
		d.logger.WithError(err).WithField("user_id", user.ID).
			Warn("failed to load notification preferences, using defaults")
		pref = DefaultPreference(user.ID)
	}

	if pref.EmailEnabled && user.Email != "" {
		d.send(ctx, ChannelEmail, d.email, user.Email, subject, body)
	}
	if pref.SMSEnabled && user.Phone != "" {
		d.send(ctx, ChannelSMS, d.sms, user.Phone, subject, body)
	}
	if pref.WhatsAppEnabled && user.Phone != "" {
		d.send(ctx, ChannelWhatsApp, d.whatsapp, user.Phone, subject, body)
	}
}

func (d *Dispatcher) send(ctx context.Context, channel Channel, sender ChannelSender, to, subject, body string) {
	if sender == nil {
		d.logger.WithFields(logrus.Fields{
			"channel": channel,
			"to":      to,
		}).Debug("channel not configured, skipping")
		d.count(channel, "skipped")
		return
	}

	if err := sender.Send(ctx, to, subject, body); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"channel": channel,
			"to":      to,
		}).Warn("notification delivery failed")
		d.count(channel, "error")
		return
	}

	d.logger.WithFields(logrus.Fields{
		"channel": channel,
		"subject": subject,
	}).Info("notification sent")
	d.count(channel, "sent")
}

func (d *Dispatcher) count(channel Channel, status string) {
	if d.metrics != nil {
		d.metrics.NotificationsSentTotal.WithLabelValues(string(channel), status).Inc()
	}
}
