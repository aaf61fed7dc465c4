// Package trial meters anonymous trial usage per hardware id against a
// configurable file quota.
package trial

import (
	"context"
	"iter"
	"log/slog"
	"time"

	apperrors "licsrv/internal/errors"
	"licsrv/internal/store"
	"licsrv/pkg/contracts/domain"
)

// Status is a quota snapshot for one hardware id.
type Status struct {
	Allowed        bool
	FilesUsed      int
	RemainingFiles int
	MaxFiles       int
}

// Manager owns the trial document.
type Manager struct {
	store  store.Store[domain.TrialUsage]
	rules  RulesSource
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a trial manager. A nil rules source uses DefaultMaxFiles.
func NewManager(s store.Store[domain.TrialUsage], rules RulesSource, logger *slog.Logger, opts ...Option) *Manager {
	if rules == nil {
		rules = StaticRules(DefaultMaxFiles)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  s,
		rules:  rules,
		logger: logger.With(slog.String("component", "trial_manager")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxFiles returns the quota currently in force.
func (m *Manager) MaxFiles() int {
	return m.rules.MaxFiles()
}

func status(filesUsed, maxFiles int) Status {
	return Status{
		Allowed:        filesUsed < maxFiles,
		FilesUsed:      filesUsed,
		RemainingFiles: max(0, maxFiles-filesUsed),
		MaxFiles:       maxFiles,
	}
}

// Check reports the quota for hardwareID without modifying anything. An
// unreadable store reads as empty.
func (m *Manager) Check(ctx context.Context, hardwareID string) (Status, error) {
	if hardwareID == "" {
		return Status{}, apperrors.InvalidArgument("hardware id is required")
	}
	maxFiles := m.rules.MaxFiles()

	records, err := m.store.Load(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to load trial usage, reporting fresh quota",
			slog.String("error", err.Error()),
		)
		return status(0, maxFiles), nil
	}
	usage, _ := records.Get(hardwareID)
	return status(usage.FilesUsed, maxFiles), nil
}

// Increment records filesCount processed files. The whole batch is accepted
// while the device is under quota, so one batch may overshoot it. At or over
// quota it fails with errors.ErrTrialLimitReached and writes nothing.
func (m *Manager) Increment(ctx context.Context, hardwareID string, filesCount int) (Status, error) {
	if hardwareID == "" {
		return Status{}, apperrors.InvalidArgument("hardware id is required")
	}
	if filesCount < 1 {
		return Status{}, apperrors.InvalidArgument("files count must be at least 1")
	}
	maxFiles := m.rules.MaxFiles()

	unlock, err := store.Lock(ctx, m.store)
	if err != nil {
		return Status{}, err
	}
	defer unlock()

	records, err := m.store.Load(ctx)
	if err != nil {
		return Status{}, apperrors.NewPersistenceError("load", "trials", err)
	}

	now := domain.NewTimestamp(m.now())
	usage, ok := records.Get(hardwareID)
	if !ok {
		usage = domain.TrialUsage{FirstSeen: now}
	}
	usage.ConversionsUsed = nil
	usage.LastSeen = now

	if usage.FilesUsed >= maxFiles {
		m.logger.InfoContext(ctx, "trial limit reached",
			slog.String("hardware_id", hardwareID),
			slog.Int("files_used", usage.FilesUsed),
			slog.Int("max_files", maxFiles),
		)
		st := status(usage.FilesUsed, maxFiles)
		return st, apperrors.ErrTrialLimitReached
	}

	usage.FilesUsed += filesCount
	records.Set(hardwareID, usage)
	if err := m.store.Save(ctx, records); err != nil {
		return Status{}, apperrors.NewPersistenceError("save", "trials", err)
	}

	st := status(usage.FilesUsed, maxFiles)
	m.logger.DebugContext(ctx, "trial usage recorded",
		slog.String("hardware_id", hardwareID),
		slog.Int("files_count", filesCount),
		slog.Int("files_used", st.FilesUsed),
		slog.Int("remaining_files", st.RemainingFiles),
	)
	return st, nil
}

// Reset clears a device's usage. Unknown devices fail with
// errors.ErrHardwareIDNotFound.
func (m *Manager) Reset(ctx context.Context, hardwareID string) (domain.TrialUsage, error) {
	unlock, err := store.Lock(ctx, m.store)
	if err != nil {
		return domain.TrialUsage{}, err
	}
	defer unlock()

	records, err := m.store.Load(ctx)
	if err != nil {
		return domain.TrialUsage{}, apperrors.NewPersistenceError("load", "trials", err)
	}
	usage, ok := records.Get(hardwareID)
	if !ok {
		return domain.TrialUsage{}, apperrors.ErrHardwareIDNotFound
	}

	zero := 0
	usage.FilesUsed = 0
	usage.BatchesUsed = &zero
	usage.ConversionsUsed = nil
	records.Set(hardwareID, usage)
	if err := m.store.Save(ctx, records); err != nil {
		return domain.TrialUsage{}, apperrors.NewPersistenceError("save", "trials", err)
	}

	m.logger.InfoContext(ctx, "trial usage reset", slog.String("hardware_id", hardwareID))
	return usage, nil
}

// Get returns the stored usage for a device.
func (m *Manager) Get(ctx context.Context, hardwareID string) (domain.TrialUsage, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return domain.TrialUsage{}, apperrors.NewPersistenceError("load", "trials", err)
	}
	usage, ok := records.Get(hardwareID)
	if !ok {
		return domain.TrialUsage{}, apperrors.ErrHardwareIDNotFound
	}
	return usage, nil
}

// List returns every usage record in store order. Each iteration reads a fresh
// snapshot; an unreadable store yields an empty sequence.
func (m *Manager) List(ctx context.Context) iter.Seq2[string, domain.TrialUsage] {
	return func(yield func(string, domain.TrialUsage) bool) {
		records, err := m.store.Load(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to load trial usage for listing", slog.String("error", err.Error()))
			return
		}
		for k, v := range records.All() {
			if !yield(k, v) {
				return
			}
		}
	}
}
