package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailClient is the part of *sendgrid.Client used here.
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers messages through the SendGrid v3 API.
type SendGrid struct {
	cfg    Config
	client mailClient
	logger *slog.Logger
}

// NewSendGrid returns a SendGrid notifier for cfg.APIKey.
func NewSendGrid(cfg Config, logger *slog.Logger) *SendGrid {
	return newSendGrid(cfg, sendgrid.NewSendClient(cfg.APIKey), logger)
}

func newSendGrid(cfg Config, client mailClient, logger *slog.Logger) *SendGrid {
	return &SendGrid{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "notify_sendgrid")),
	}
}

// Send implements Notifier. A non-2xx API response is an error.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	subject, text, htmlBody, err := Compose(s.cfg, msg)
	if err != nil {
		return err
	}

	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromEmail)
	to := mail.NewEmail(msg.CustomerName, msg.Recipient)
	message := mail.NewSingleEmail(from, subject, to, text, htmlBody)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		s.logger.WarnContext(ctx, "email rejected by provider",
			slog.String("kind", string(msg.Kind)),
			slog.Int("status_code", response.StatusCode),
			slog.String("body", response.Body),
		)
		return fmt.Errorf("sendgrid: unexpected status %d", response.StatusCode)
	}

	s.logger.InfoContext(ctx, "email sent",
		slog.String("kind", string(msg.Kind)),
		slog.Int("status_code", response.StatusCode),
	)
	return nil
}
