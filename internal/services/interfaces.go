package services

import (
	"context"
	"iter"

	"licsrv/internal/audit"
	"licsrv/internal/license"
	"licsrv/internal/notify"
	"licsrv/internal/trial"
	"licsrv/pkg/contracts/domain"
)

// LicenseManager is the subset of *license.Manager the services depend on.
type LicenseManager interface {
	Create(ctx context.Context, p license.CreateParams) (string, domain.LicenseRecord, error)
	Validate(ctx context.Context, p license.ValidateParams) (*license.Validation, error)
	Revoke(ctx context.Context, key, reason string) (domain.LicenseRecord, bool, error)
	Rebind(ctx context.Context, key, hardwareID, deviceName string) (domain.LicenseRecord, error)
	Get(ctx context.Context, key string) (domain.LicenseRecord, error)
	List(ctx context.Context) iter.Seq2[string, domain.LicenseRecord]
	FindByEmail(ctx context.Context, email string) (string, domain.LicenseRecord, error)
	IssueTrial(ctx context.Context, p license.TrialParams) (string, domain.LicenseRecord, error)
	Eligibility(ctx context.Context, email, hardwareID string) error
}

// TrialManager is the subset of *trial.Manager the services depend on.
type TrialManager interface {
	MaxFiles() int
	Check(ctx context.Context, hardwareID string) (trial.Status, error)
	Increment(ctx context.Context, hardwareID string, filesCount int) (trial.Status, error)
	Reset(ctx context.Context, hardwareID string) (domain.TrialUsage, error)
	Get(ctx context.Context, hardwareID string) (domain.TrialUsage, error)
	List(ctx context.Context) iter.Seq2[string, domain.TrialUsage]
}

// Journal records license lifecycle events.
type Journal interface {
	Record(ctx context.Context, ev audit.Event)
	Events(ctx context.Context, licenseKey string) ([]audit.Event, error)
}

// Mailer delivers customer emails and reports whether one was accepted.
type Mailer interface {
	Deliver(ctx context.Context, msg notify.Message) bool
}

var (
	_ LicenseManager = (*license.Manager)(nil)
	_ TrialManager   = (*trial.Manager)(nil)
	_ Journal        = (*audit.Journal)(nil)
	_ Mailer         = (*notify.Dispatcher)(nil)
)
