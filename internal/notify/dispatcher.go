package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 10 * time.Second

// Dispatcher isolates callers from notifier failures. Errors, timeouts and
// panics are logged and reported as false.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
	// OnResult, when set, observes every delivery outcome.
	OnResult func(ctx context.Context, kind Kind, delivered bool)
}

// NewDispatcher wraps n. A non-positive timeout uses DefaultTimeout.
func NewDispatcher(n Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: n,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Deliver sends msg and reports whether it was accepted. The caller's
// cancellation is ignored once issuance has committed, so the send runs on a
// detached context bounded by the dispatcher's timeout.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) (delivered bool) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "notifier panicked",
				slog.String("kind", string(msg.Kind)),
				slog.String("panic", fmt.Sprint(r)),
			)
			delivered = false
		}
		if d.OnResult != nil {
			d.OnResult(ctx, msg.Kind, delivered)
		}
	}()

	err := d.notifier.Send(sendCtx, msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDisabled):
		return false
	default:
		d.logger.ErrorContext(ctx, "email delivery failed",
			slog.String("kind", string(msg.Kind)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
		)
		return false
	}
}
