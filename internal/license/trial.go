package license

import (
	"context"
	"log/slog"
	"strings"
	"time"

	apperrors "licsrv/internal/errors"
	"licsrv/internal/store"
	"licsrv/pkg/contracts/domain"
)

// DefaultTrialPeriod is the validity of a trial license.
const DefaultTrialPeriod = 7 * 24 * time.Hour

// TrialParams describes a trial license request.
type TrialParams struct {
	Email       string
	HardwareID  string
	DeviceName  string
	Period      time.Duration
	ProductName string
}

// IssueTrial creates a trial-tier license bound to the requesting device. It
// fails with *errors.EligibilityError when the email or device already had a
// trial, or the email holds a paid license.
func (m *Manager) IssueTrial(ctx context.Context, p TrialParams) (string, domain.LicenseRecord, error) {
	if !domain.ValidHardwareID(p.HardwareID) {
		return "", domain.LicenseRecord{}, apperrors.InvalidArgument("invalid hardware id")
	}
	period := p.Period
	if period <= 0 {
		period = DefaultTrialPeriod
	}

	var (
		key string
		rec domain.LicenseRecord
	)
	err := m.mutate(ctx, func(records *store.Records[domain.LicenseRecord]) (bool, error) {
		if err := m.eligibility(records, p.Email, p.HardwareID); err != nil {
			return false, err
		}
		var err error
		key, rec, err = m.insert(records, CreateParams{
			Email:      p.Email,
			Validity:   period,
			Tier:       domain.LicenseTierTrial,
			HardwareID: p.HardwareID,
			DeviceName: p.DeviceName,
			Purchase: &domain.PurchaseInfo{
				Source:      "trial",
				Tier:        string(domain.LicenseTierTrial),
				ProductName: p.ProductName,
				Price:       0,
				Currency:    "USD",
			},
		})
		return err == nil, err
	})
	if err != nil {
		return "", domain.LicenseRecord{}, err
	}

	m.logger.InfoContext(ctx, "trial license issued",
		slog.String("license_key", MaskKey(key)),
		slog.Time("expires", rec.ExpiryDate.Time),
	)
	return key, rec, nil
}

// Eligibility reports whether email on hardwareID may start a trial. A nil
// error means eligible; otherwise the error is an *errors.EligibilityError or
// a persistence failure.
func (m *Manager) Eligibility(ctx context.Context, email, hardwareID string) error {
	records, err := m.store.Load(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("load", "licenses", err)
	}
	return m.eligibility(records, email, hardwareID)
}

func (m *Manager) eligibility(records *store.Records[domain.LicenseRecord], email, hardwareID string) error {
	email = strings.TrimSpace(email)
	now := m.clock()

	var usedDevice, hasLicense bool
	for _, rec := range records.All() {
		sameEmail := email != "" && strings.EqualFold(rec.Email, email)
		if rec.IsTrial() {
			if sameEmail {
				return &apperrors.EligibilityError{
					Reason:  apperrors.ReasonTrialUsedEmail,
					Message: "You have already used your free trial",
				}
			}
			if hardwareID != "" && rec.HardwareID == hardwareID {
				usedDevice = true
			}
			continue
		}
		if sameEmail && rec.IsActive() && !rec.ExpiredAt(now) {
			hasLicense = true
		}
	}

	switch {
	case usedDevice:
		return &apperrors.EligibilityError{
			Reason:  apperrors.ReasonTrialUsedDevice,
			Message: "This device has already been used for a free trial",
		}
	case hasLicense:
		return &apperrors.EligibilityError{
			Reason:  apperrors.ReasonAlreadyHasLicense,
			Message: "You already have a full license. Please log in with your license key.",
		}
	}
	return nil
}
