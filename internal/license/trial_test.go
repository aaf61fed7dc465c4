package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licsrv/internal/errors"
	"licsrv/pkg/contracts/domain"
)

func TestIssueTrial_CreatesBoundTrialLicense(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)

	key, rec, err := m.IssueTrial(ctx, TrialParams{Email: "new@example.com", HardwareID: hwA, DeviceName: "Laptop", ProductName: "Converter"})
	require.NoError(t, err)

	assert.Equal(t, domain.LicenseTierTrial, rec.Tier)
	assert.True(t, rec.IsTrial())
	assert.Equal(t, hwA, rec.HardwareID)
	assert.Equal(t, "Laptop", rec.DeviceName)
	assert.Equal(t, DefaultTrialPeriod, rec.ExpiryDate.Sub(rec.CreatedDate.Time))
	require.NotNil(t, rec.PurchaseInfo)
	assert.Equal(t, "trial", rec.PurchaseInfo.Source)
	assert.Equal(t, "USD", rec.PurchaseInfo.Currency)
	assert.Equal(t, "Converter", rec.PurchaseInfo.ProductName)

	res, err := m.Validate(ctx, ValidateParams{LicenseKey: key, HardwareID: hwA})
	require.NoError(t, err)
	assert.True(t, res.IsTrial)
	assert.False(t, res.FirstBinding)

	clock.Advance(DefaultTrialPeriod + time.Second)
	_, err = m.Validate(ctx, ValidateParams{LicenseKey: key, HardwareID: hwA})
	assert.ErrorIs(t, err, apperrors.ErrLicenseExpired)
}

func TestEligibility(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		setup      func(t *testing.T, m *Manager, clock *fixedClock)
		email      string
		hardwareID string
		wantReason string
	}{
		{
			name:       "fresh user",
			setup:      func(t *testing.T, m *Manager, clock *fixedClock) {},
			email:      "new@example.com",
			hardwareID: hwA,
		},
		{
			name: "email already had a trial",
			setup: func(t *testing.T, m *Manager, clock *fixedClock) {
				_, _, err := m.IssueTrial(ctx, TrialParams{Email: "used@example.com", HardwareID: hwB})
				require.NoError(t, err)
			},
			email:      "USED@example.com",
			hardwareID: hwA,
			wantReason: apperrors.ReasonTrialUsedEmail,
		},
		{
			name: "expired trial still counts",
			setup: func(t *testing.T, m *Manager, clock *fixedClock) {
				_, _, err := m.IssueTrial(ctx, TrialParams{Email: "used@example.com", HardwareID: hwB})
				require.NoError(t, err)
				clock.Advance(30 * 24 * time.Hour)
			},
			email:      "used@example.com",
			hardwareID: hwA,
			wantReason: apperrors.ReasonTrialUsedEmail,
		},
		{
			name: "device already had a trial",
			setup: func(t *testing.T, m *Manager, clock *fixedClock) {
				_, _, err := m.IssueTrial(ctx, TrialParams{Email: "first@example.com", HardwareID: hwA})
				require.NoError(t, err)
			},
			email:      "second@example.com",
			hardwareID: hwA,
			wantReason: apperrors.ReasonTrialUsedDevice,
		},
		{
			name: "active full license",
			setup: func(t *testing.T, m *Manager, clock *fixedClock) {
				mustCreate(t, m, "paid@example.com", 365*24*time.Hour)
			},
			email:      "paid@example.com",
			hardwareID: hwA,
			wantReason: apperrors.ReasonAlreadyHasLicense,
		},
		{
			name: "revoked full license does not block",
			setup: func(t *testing.T, m *Manager, clock *fixedClock) {
				key := mustCreate(t, m, "refunded@example.com", 365*24*time.Hour)
				_, _, err := m.Revoke(ctx, key, "refund")
				require.NoError(t, err)
			},
			email:      "refunded@example.com",
			hardwareID: hwA,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, clock := newTestManager(t)
			tt.setup(t, m, clock)

			err := m.Eligibility(ctx, tt.email, tt.hardwareID)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var eligibility *apperrors.EligibilityError
			require.ErrorAs(t, err, &eligibility)
			assert.Equal(t, tt.wantReason, eligibility.Reason)

			_, _, err = m.IssueTrial(ctx, TrialParams{Email: tt.email, HardwareID: tt.hardwareID})
			assert.ErrorIs(t, err, apperrors.ErrTrialNotEligible)
		})
	}
}

func TestIssueTrial_RejectsBadHardwareID(t *testing.T) {
	m, mem, _ := newTestManager(t)
	_, _, err := m.IssueTrial(context.Background(), TrialParams{Email: "a@example.com", HardwareID: "short"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Zero(t, mem.Saves())
}

func TestValidate_FullLicenseSupersedesTrial(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)

	trialKey, _, err := m.IssueTrial(ctx, TrialParams{Email: "a@example.com", HardwareID: hwA})
	require.NoError(t, err)
	otherTrial, _, err := m.IssueTrial(ctx, TrialParams{Email: "b@example.com", HardwareID: hwB})
	require.NoError(t, err)
	fullKey := mustCreate(t, m, "A@example.com", 365*24*time.Hour)

	clock.Advance(time.Hour)
	res, err := m.Validate(ctx, ValidateParams{LicenseKey: fullKey, HardwareID: hwA})
	require.NoError(t, err)
	assert.False(t, res.IsTrial)
	assert.Equal(t, []string{trialKey}, res.SupersededTrials)

	superseded, err := m.Get(ctx, trialKey)
	require.NoError(t, err)
	assert.False(t, superseded.IsActive())
	assert.Equal(t, ReasonSupersededByFull, superseded.RevocationReason)
	assert.True(t, superseded.RevokedAt.Equal(clock.Now()))

	_, err = m.Validate(ctx, ValidateParams{LicenseKey: trialKey, HardwareID: hwA})
	assert.ErrorIs(t, err, apperrors.ErrLicenseRevoked)

	untouched, err := m.Get(ctx, otherTrial)
	require.NoError(t, err)
	assert.True(t, untouched.IsActive())

	again, err := m.Validate(ctx, ValidateParams{LicenseKey: fullKey, HardwareID: hwA})
	require.NoError(t, err)
	assert.Empty(t, again.SupersededTrials)
}

func TestValidate_TrialDoesNotSupersedeItself(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	trialKey, _, err := m.IssueTrial(ctx, TrialParams{Email: "a@example.com", HardwareID: hwA})
	require.NoError(t, err)

	res, err := m.Validate(ctx, ValidateParams{LicenseKey: trialKey, HardwareID: hwA})
	require.NoError(t, err)
	assert.Empty(t, res.SupersededTrials)

	rec, err := m.Get(ctx, trialKey)
	require.NoError(t, err)
	assert.True(t, rec.IsActive())
}
