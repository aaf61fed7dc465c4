// Package notify delivers customer emails: license keys after a purchase, trial
// activations and recovered keys. Delivery is best effort; callers go through
// a Dispatcher, which never returns an error.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Kind identifies the message template.
type Kind string

const (
	KindLicenseDelivery Kind = "license_delivery"
	KindTrialActivation Kind = "trial_activation"
	KindLicenseRecovery Kind = "license_recovery"
)

// ErrDisabled is returned by the no-op notifier.
var ErrDisabled = errors.New("email delivery is not configured")

// Message is one email to send.
type Message struct {
	Kind         Kind
	Recipient    string
	LicenseKey   string
	CustomerName string
	Expires      time.Time
}

// Notifier sends a message or reports why it could not.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures the notifier.
type Config struct {
	Provider  string
	APIKey    string
	FromEmail string
	FromName  string
	AppName   string
	// PurchaseURL is linked from trial emails.
	PurchaseURL string
}

// New returns the notifier for cfg. An unknown provider or a SendGrid
// provider without an API key yields the no-op notifier.
func New(cfg Config, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case "sendgrid":
		if cfg.APIKey != "" {
			return NewSendGrid(cfg, logger)
		}
		logger.Warn("sendgrid selected without an API key, email delivery disabled")
	case "", "none":
	default:
		logger.Warn("unknown email provider, email delivery disabled", slog.String("provider", cfg.Provider))
	}
	return NewNoop(logger)
}

// Noop logs what would have been sent.
type Noop struct {
	logger *slog.Logger
}

// NewNoop returns a notifier that delivers nothing.
func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger.With(slog.String("component", "notify_noop"))}
}

// Send implements Notifier.
func (n *Noop) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "email delivery disabled, message not sent",
		slog.String("kind", string(msg.Kind)),
		slog.String("recipient", msg.Recipient),
	)
	return ErrDisabled
}
