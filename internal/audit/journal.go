// Package audit keeps an append-only JSON-lines journal of license lifecycle
// events for support and dispute handling.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"licsrv/pkg/contracts/domain"
)

// Event types.
const (
	EventIssued      = "issued"
	EventRevoked     = "revoked"
	EventRebound     = "rebound"
	EventTrialIssued = "trial_issued"
)

// maxLineSize bounds one journal line when reading back.
const maxLineSize = 1 << 20

// Event is one journal line.
type Event struct {
	Timestamp  domain.Timestamp     `json:"timestamp"`
	Event      string               `json:"event"`
	LicenseKey string               `json:"license_key"`
	Email      string               `json:"email,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	HardwareID string               `json:"hardware_id,omitempty"`
	Purchase   *domain.PurchaseInfo `json:"purchase_info,omitempty"`
}

// Journal appends events to a file.
type Journal struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewJournal returns a journal writing to path.
func NewJournal(path string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		path:   path,
		logger: logger.With(slog.String("component", "audit_journal")),
		now:    time.Now,
	}
}

// Path returns the journal location.
func (j *Journal) Path() string {
	return j.path
}

// Record appends ev. Failures are logged and never returned: the journal must
// not undo an entitlement that is already committed.
func (j *Journal) Record(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = domain.NewTimestamp(j.now())
	}
	line, err := json.Marshal(ev)
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to encode audit event", slog.String("error", err.Error()))
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		j.logger.ErrorContext(ctx, "failed to create audit directory", slog.String("error", err.Error()))
		return
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to open audit journal", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		j.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()),
		)
	}
}

// Events returns the journal entries for licenseKey, oldest first. Malformed
// lines are skipped.
func (j *Journal) Events(ctx context.Context, licenseKey string) ([]Event, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	skipped := 0
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			skipped++
			continue
		}
		if ev.LicenseKey == licenseKey {
			events = append(events, ev)
		}
	}
	if skipped > 0 {
		j.logger.WarnContext(ctx, "skipped malformed audit lines", slog.Int("count", skipped))
	}
	return events, scanner.Err()
}

// ToDomain converts an event for API output.
func (ev Event) ToDomain() domain.LicenseEvent {
	return domain.LicenseEvent{
		Timestamp:  ev.Timestamp,
		Event:      ev.Event,
		Reason:     ev.Reason,
		HardwareID: ev.HardwareID,
		Purchase:   ev.Purchase,
	}
}
