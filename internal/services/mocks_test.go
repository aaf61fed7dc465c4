package services

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"licsrv/internal/audit"
	"licsrv/internal/license"
	"licsrv/internal/notify"
	"licsrv/internal/trial"
	"licsrv/pkg/contracts/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockLicenseManager implements LicenseManager for testing
type MockLicenseManager struct {
	mock.Mock
}

func (m *MockLicenseManager) Create(ctx context.Context, p license.CreateParams) (string, domain.LicenseRecord, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Get(1).(domain.LicenseRecord), args.Error(2)
}

func (m *MockLicenseManager) Validate(ctx context.Context, p license.ValidateParams) (*license.Validation, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*license.Validation), args.Error(1)
}

func (m *MockLicenseManager) Revoke(ctx context.Context, key, reason string) (domain.LicenseRecord, bool, error) {
	args := m.Called(ctx, key, reason)
	return args.Get(0).(domain.LicenseRecord), args.Bool(1), args.Error(2)
}

func (m *MockLicenseManager) Rebind(ctx context.Context, key, hardwareID, deviceName string) (domain.LicenseRecord, error) {
	args := m.Called(ctx, key, hardwareID, deviceName)
	return args.Get(0).(domain.LicenseRecord), args.Error(1)
}

func (m *MockLicenseManager) Get(ctx context.Context, key string) (domain.LicenseRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.LicenseRecord), args.Error(1)
}

func (m *MockLicenseManager) List(ctx context.Context) iter.Seq2[string, domain.LicenseRecord] {
	args := m.Called(ctx)
	return args.Get(0).(iter.Seq2[string, domain.LicenseRecord])
}

func (m *MockLicenseManager) FindByEmail(ctx context.Context, email string) (string, domain.LicenseRecord, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Get(1).(domain.LicenseRecord), args.Error(2)
}

func (m *MockLicenseManager) IssueTrial(ctx context.Context, p license.TrialParams) (string, domain.LicenseRecord, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Get(1).(domain.LicenseRecord), args.Error(2)
}

func (m *MockLicenseManager) Eligibility(ctx context.Context, email, hardwareID string) error {
	args := m.Called(ctx, email, hardwareID)
	return args.Error(0)
}

// MockTrialManager implements TrialManager for testing
type MockTrialManager struct {
	mock.Mock
}

func (m *MockTrialManager) MaxFiles() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockTrialManager) Check(ctx context.Context, hardwareID string) (trial.Status, error) {
	args := m.Called(ctx, hardwareID)
	return args.Get(0).(trial.Status), args.Error(1)
}

func (m *MockTrialManager) Increment(ctx context.Context, hardwareID string, filesCount int) (trial.Status, error) {
	args := m.Called(ctx, hardwareID, filesCount)
	return args.Get(0).(trial.Status), args.Error(1)
}

func (m *MockTrialManager) Reset(ctx context.Context, hardwareID string) (domain.TrialUsage, error) {
	args := m.Called(ctx, hardwareID)
	return args.Get(0).(domain.TrialUsage), args.Error(1)
}

func (m *MockTrialManager) Get(ctx context.Context, hardwareID string) (domain.TrialUsage, error) {
	args := m.Called(ctx, hardwareID)
	return args.Get(0).(domain.TrialUsage), args.Error(1)
}

func (m *MockTrialManager) List(ctx context.Context) iter.Seq2[string, domain.TrialUsage] {
	args := m.Called(ctx)
	return args.Get(0).(iter.Seq2[string, domain.TrialUsage])
}

// MockJournal implements Journal for testing
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Record(ctx context.Context, ev audit.Event) {
	m.Called(ctx, ev)
}

func (m *MockJournal) Events(ctx context.Context, licenseKey string) ([]audit.Event, error) {
	args := m.Called(ctx, licenseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Event), args.Error(1)
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Deliver(ctx context.Context, msg notify.Message) bool {
	args := m.Called(ctx, msg)
	return args.Bool(0)
}

func licenseSeq(entries ...domain.LicenseEntry) iter.Seq2[string, domain.LicenseRecord] {
	return func(yield func(string, domain.LicenseRecord) bool) {
		for _, e := range entries {
			if !yield(e.LicenseKey, e.License) {
				return
			}
		}
	}
}

func trialSeq(entries ...domain.TrialEntry) iter.Seq2[string, domain.TrialUsage] {
	return func(yield func(string, domain.TrialUsage) bool) {
		for _, e := range entries {
			if !yield(e.HardwareID, e.Usage) {
				return
			}
		}
	}
}
