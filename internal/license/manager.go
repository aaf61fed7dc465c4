package license

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	apperrors "licsrv/internal/errors"
	"licsrv/internal/store"
	"licsrv/pkg/contracts/domain"
)

const (
	// DefaultCustomerName labels licenses issued without a name.
	DefaultCustomerName = "Customer"

	maxKeyAttempts = 10
)

// Manager owns the license document.
type Manager struct {
	store  store.Store[domain.LicenseRecord]
	logger *slog.Logger
	now    func() time.Time
	keygen func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithKeyGenerator replaces GenerateKey, for tests.
func WithKeyGenerator(gen func() (string, error)) Option {
	return func(m *Manager) {
		m.keygen = gen
	}
}

// NewManager creates a license manager over s.
func NewManager(s store.Store[domain.LicenseRecord], logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  s,
		logger: logger.With(slog.String("component", "license_manager")),
		now:    time.Now,
		keygen: GenerateKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateParams describes a license to issue.
type CreateParams struct {
	Email        string
	CustomerName string
	Validity     time.Duration
	Tier         domain.LicenseTier
	HardwareID   string
	DeviceName   string
	Purchase     *domain.PurchaseInfo
}

// ValidateParams is one client validation attempt.
type ValidateParams struct {
	Email      string
	LicenseKey string
	HardwareID string
	DeviceName string
}

// Validation is the outcome of a successful Validate.
type Validation struct {
	LicenseKey      string
	Email           string
	Expires         time.Time
	IsTrial         bool
	EmailMismatch   bool
	FirstBinding    bool
	ValidationCount int
	// SupersededTrials lists the trial keys revoked because a full license of
	// the same email validated.
	SupersededTrials []string
}

// ReasonSupersededByFull is the revocation reason of a trial replaced by a
// full license.
const ReasonSupersededByFull = "superseded_by_full"

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

// mutate runs fn inside one locked load-modify-save cycle. fn reports whether
// the document changed; unchanged documents are not rewritten.
func (m *Manager) mutate(ctx context.Context, fn func(records *store.Records[domain.LicenseRecord]) (bool, error)) error {
	unlock, err := store.Lock(ctx, m.store)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := m.store.Load(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("load", "licenses", err)
	}

	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := m.store.Save(ctx, records); err != nil {
		return apperrors.NewPersistenceError("save", "licenses", err)
	}
	return nil
}

// Create issues a new license and returns its key.
func (m *Manager) Create(ctx context.Context, p CreateParams) (string, domain.LicenseRecord, error) {
	var (
		key string
		rec domain.LicenseRecord
	)
	err := m.mutate(ctx, func(records *store.Records[domain.LicenseRecord]) (bool, error) {
		var err error
		key, rec, err = m.insert(records, p)
		return err == nil, err
	})
	if err != nil {
		return "", domain.LicenseRecord{}, err
	}

	m.logger.InfoContext(ctx, "license created",
		slog.String("license_key", MaskKey(key)),
		slog.String("tier", string(rec.Tier)),
		slog.Time("expires", rec.ExpiryDate.Time),
	)
	return key, rec, nil
}

// insert adds a record for p under a fresh key. Callers hold the lock.
func (m *Manager) insert(records *store.Records[domain.LicenseRecord], p CreateParams) (string, domain.LicenseRecord, error) {
	email := strings.TrimSpace(p.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", domain.LicenseRecord{}, apperrors.InvalidArgument("invalid email %q", p.Email)
	}
	if p.Validity < 0 {
		return "", domain.LicenseRecord{}, apperrors.InvalidArgument("validity must not be negative")
	}
	if p.HardwareID != "" && !domain.ValidHardwareID(p.HardwareID) {
		return "", domain.LicenseRecord{}, apperrors.InvalidArgument("invalid hardware id")
	}

	key, err := m.uniqueKey(records)
	if err != nil {
		return "", domain.LicenseRecord{}, err
	}

	name := strings.TrimSpace(p.CustomerName)
	if name == "" {
		name = DefaultCustomerName
	}
	tier := p.Tier
	if tier == "" {
		tier = domain.LicenseTierFull
	}

	now := m.clock()
	rec := domain.LicenseRecord{
		Email:        email,
		CustomerName: name,
		CreatedDate:  domain.NewTimestamp(now),
		ExpiryDate:   domain.NewTimestamp(now.Add(p.Validity)),
		Status:       domain.LicenseStatusActive,
		Tier:         tier,
		PurchaseInfo: p.Purchase,
	}
	if p.HardwareID != "" {
		rec.HardwareID = p.HardwareID
		rec.DeviceName = deviceNameOrDefault(p.DeviceName)
	}

	records.Set(key, rec)
	return key, rec, nil
}

func (m *Manager) uniqueKey(records *store.Records[domain.LicenseRecord]) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := m.keygen()
		if err != nil {
			return "", fmt.Errorf("generate license key: %w", err)
		}
		if !records.Has(key) {
			return key, nil
		}
	}
	return "", fmt.Errorf("generate license key: no unique key after %d attempts", maxKeyAttempts)
}

// Validate checks a client's key against its device and binds the key on
// first use.
func (m *Manager) Validate(ctx context.Context, p ValidateParams) (*Validation, error) {
	key := NormalizeKey(p.LicenseKey)
	if p.HardwareID == "" {
		return nil, apperrors.InvalidArgument("hardware id is required")
	}

	var result *Validation
	err := m.mutate(ctx, func(records *store.Records[domain.LicenseRecord]) (bool, error) {
		rec, ok := records.Get(key)
		if !ok {
			return false, apperrors.ErrLicenseNotFound
		}
		if !rec.IsActive() {
			return false, apperrors.ErrLicenseRevoked
		}
		now := m.clock()
		if rec.ExpiredAt(now) {
			return false, apperrors.ErrLicenseExpired
		}

		first := !rec.IsBound()
		if !first && rec.HardwareID != p.HardwareID {
			return false, &apperrors.HardwareMismatchError{BoundDevice: rec.DeviceName}
		}

		rec.HardwareID = p.HardwareID
		rec.DeviceName = deviceNameOrDefault(p.DeviceName)
		rec.LastValidation = domain.NewTimestamp(now)
		rec.ValidationCount++
		records.Set(key, rec)

		result = &Validation{
			LicenseKey:      key,
			Email:           rec.Email,
			Expires:         rec.ExpiryDate.Time,
			IsTrial:         rec.IsTrial(),
			EmailMismatch:   p.Email != "" && !strings.EqualFold(strings.TrimSpace(p.Email), rec.Email),
			FirstBinding:    first,
			ValidationCount: rec.ValidationCount,
		}
		if !rec.IsTrial() {
			result.SupersededTrials = supersedeTrials(records, rec.Email, now)
		}
		return true, nil
	})
	if err != nil {
		m.logger.DebugContext(ctx, "license validation rejected",
			slog.String("license_key", MaskKey(key)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	attrs := []any{
		slog.String("license_key", MaskKey(key)),
		slog.Bool("first_binding", result.FirstBinding),
		slog.Int("validation_count", result.ValidationCount),
	}
	for _, trialKey := range result.SupersededTrials {
		m.logger.InfoContext(ctx, "trial superseded by full license",
			slog.String("license_key", MaskKey(trialKey)),
			slog.String("full_license_key", MaskKey(key)),
		)
	}
	if result.EmailMismatch {
		m.logger.WarnContext(ctx, "license validated with a different email", attrs...)
	} else {
		m.logger.DebugContext(ctx, "license validated", attrs...)
	}
	return result, nil
}

// supersedeTrials revokes every active trial license of email. Callers hold
// the lock.
func supersedeTrials(records *store.Records[domain.LicenseRecord], email string, now time.Time) []string {
	if email == "" {
		return nil
	}
	var keys []string
	for key, rec := range records.All() {
		if !rec.IsTrial() || !rec.IsActive() || !strings.EqualFold(rec.Email, email) {
			continue
		}
		rec.Status = domain.LicenseStatusRevoked
		rec.RevokedAt = domain.NewTimestamp(now)
		rec.RevocationReason = ReasonSupersededByFull
		records.Set(key, rec)
		keys = append(keys, key)
	}
	return keys
}

// Revoke soft-deletes a license. Revoking a revoked license changes nothing and
// reports changed=false.
func (m *Manager) Revoke(ctx context.Context, key, reason string) (domain.LicenseRecord, bool, error) {
	key = NormalizeKey(key)
	var (
		rec     domain.LicenseRecord
		changed bool
	)
	err := m.mutate(ctx, func(records *store.Records[domain.LicenseRecord]) (bool, error) {
		var ok bool
		rec, ok = records.Get(key)
		if !ok {
			return false, apperrors.ErrLicenseNotFound
		}
		if !rec.IsActive() {
			return false, nil
		}
		rec.Status = domain.LicenseStatusRevoked
		rec.RevokedAt = domain.NewTimestamp(m.clock())
		rec.RevocationReason = strings.TrimSpace(reason)
		records.Set(key, rec)
		changed = true
		return true, nil
	})
	if err != nil {
		return domain.LicenseRecord{}, false, err
	}

	if changed {
		m.logger.InfoContext(ctx, "license revoked",
			slog.String("license_key", MaskKey(key)),
			slog.String("reason", rec.RevocationReason),
		)
	}
	return rec, changed, nil
}

// Rebind moves a license to another device. An empty hardware id clears the
// binding so the next validation binds afresh.
func (m *Manager) Rebind(ctx context.Context, key, hardwareID, deviceName string) (domain.LicenseRecord, error) {
	key = NormalizeKey(key)
	if hardwareID != "" && !domain.ValidHardwareID(hardwareID) {
		return domain.LicenseRecord{}, apperrors.InvalidArgument("invalid hardware id")
	}

	var rec domain.LicenseRecord
	err := m.mutate(ctx, func(records *store.Records[domain.LicenseRecord]) (bool, error) {
		var ok bool
		rec, ok = records.Get(key)
		if !ok {
			return false, apperrors.ErrLicenseNotFound
		}
		rec.HardwareID = hardwareID
		rec.DeviceName = ""
		if hardwareID != "" {
			rec.DeviceName = deviceNameOrDefault(deviceName)
		}
		records.Set(key, rec)
		return true, nil
	})
	if err != nil {
		return domain.LicenseRecord{}, err
	}

	m.logger.InfoContext(ctx, "license rebound",
		slog.String("license_key", MaskKey(key)),
		slog.Bool("cleared", hardwareID == ""),
	)
	return rec, nil
}

// Get returns one record.
func (m *Manager) Get(ctx context.Context, key string) (domain.LicenseRecord, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return domain.LicenseRecord{}, apperrors.NewPersistenceError("load", "licenses", err)
	}
	rec, ok := records.Get(NormalizeKey(key))
	if !ok {
		return domain.LicenseRecord{}, apperrors.ErrLicenseNotFound
	}
	return rec, nil
}

// List returns every record in store order. Each iteration reads a fresh
// snapshot; an unreadable store yields an empty sequence.
func (m *Manager) List(ctx context.Context) iter.Seq2[string, domain.LicenseRecord] {
	return func(yield func(string, domain.LicenseRecord) bool) {
		records, err := m.store.Load(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to load licenses for listing", slog.String("error", err.Error()))
			return
		}
		for k, v := range records.All() {
			if !yield(k, v) {
				return
			}
		}
	}
}

// FindByEmail returns the newest active license held by email, falling back to
// the newest license of any status.
func (m *Manager) FindByEmail(ctx context.Context, email string) (string, domain.LicenseRecord, error) {
	email = strings.TrimSpace(email)
	var (
		bestKey, activeKey string
		best, active       domain.LicenseRecord
	)
	for k, rec := range m.List(ctx) {
		if !strings.EqualFold(rec.Email, email) {
			continue
		}
		if bestKey == "" || !rec.CreatedDate.Before(best.CreatedDate.Time) {
			bestKey, best = k, rec
		}
		if rec.IsActive() && (activeKey == "" || !rec.CreatedDate.Before(active.CreatedDate.Time)) {
			activeKey, active = k, rec
		}
	}
	switch {
	case activeKey != "":
		return activeKey, active, nil
	case bestKey != "":
		return bestKey, best, nil
	default:
		return "", domain.LicenseRecord{}, apperrors.ErrLicenseNotFound
	}
}

func deviceNameOrDefault(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.DefaultDeviceName
	}
	return name
}
