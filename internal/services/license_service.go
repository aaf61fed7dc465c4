package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"licsrv/internal/audit"
	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
	"licsrv/internal/license"
	"licsrv/internal/notify"
	"licsrv/pkg/contracts/domain"
)

// Issuance sources recorded in metrics when the request carries none.
const (
	SourceAdmin = "admin"
	SourceTrial = "trial"
)

// DefaultValidityDays applies to administrative issuance without validity_days.
const DefaultValidityDays = 30

// LicenseService provides the license protocol and administrative operations.
// Every error it returns renders through errors.FromDomain.
type LicenseService interface {
	// Client protocol
	Validate(ctx context.Context, req domain.ValidateLicenseRequest) (*domain.ValidateLicenseResponse, error)
	Recover(ctx context.Context, req domain.ForgotLicenseRequest) (*domain.ForgotLicenseResponse, error)
	CheckEligibility(ctx context.Context, req domain.TrialEligibilityRequest) (*domain.TrialEligibilityResponse, error)
	StartTrial(ctx context.Context, req domain.TrialStartRequest) (*domain.IssueLicenseResponse, error)
	TrialStatus(ctx context.Context, licenseKey string) (*domain.TrialStatusResponse, error)

	// Administration
	Issue(ctx context.Context, req domain.CreateLicenseRequest) (*domain.IssueLicenseResponse, error)
	Revoke(ctx context.Context, licenseKey string, req domain.RevokeLicenseRequest) (*domain.LicenseResponse, error)
	Rebind(ctx context.Context, licenseKey string, req domain.RebindLicenseRequest) (*domain.LicenseResponse, error)
	Get(ctx context.Context, licenseKey string) (*domain.LicenseResponse, error)
	List(ctx context.Context) (*domain.LicenseListResponse, error)
}

// LicenseServiceConfig carries issuance defaults.
type LicenseServiceConfig struct {
	DefaultValidityDays int
	TrialPeriod         time.Duration
	ProductName         string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// licenseService implements LicenseService
type licenseService struct {
	manager LicenseManager
	journal Journal
	mailer  Mailer
	metrics *infrastructure.EntitlementMetrics
	cfg     LicenseServiceConfig
	logger  *slog.Logger
}

// NewLicenseService creates a license service. A nil metrics disables
// instrumentation.
func NewLicenseService(manager LicenseManager, journal Journal, mailer Mailer, metrics *infrastructure.EntitlementMetrics, cfg LicenseServiceConfig, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultValidityDays <= 0 {
		cfg.DefaultValidityDays = DefaultValidityDays
	}
	if cfg.TrialPeriod <= 0 {
		cfg.TrialPeriod = license.DefaultTrialPeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &licenseService{
		manager: manager,
		journal: journal,
		mailer:  mailer,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With(slog.String("service", "license")),
	}
}

// Validate checks a client's license and binds it on first use.
func (s *licenseService) Validate(ctx context.Context, req domain.ValidateLicenseRequest) (*domain.ValidateLicenseResponse, error) {
	result, err := s.manager.Validate(ctx, license.ValidateParams{
		Email:      req.Email,
		LicenseKey: req.LicenseKey,
		HardwareID: req.HardwareID,
		DeviceName: req.DeviceName,
	})
	if err != nil {
		code := apierrors.FromDomain(err).ErrorCode
		s.metrics.RecordValidation(ctx, code)
		infrastructure.AddSpanEvent(ctx, "license.validated", attribute.String("result", code))
		return nil, err
	}
	s.metrics.RecordValidation(ctx, "success")
	infrastructure.AddSpanEvent(ctx, "license.validated",
		attribute.String("result", "success"),
		attribute.Bool("first_binding", result.FirstBinding))

	for _, trialKey := range result.SupersededTrials {
		s.metrics.RecordRevoked(ctx, license.ReasonSupersededByFull)
		s.journal.Record(ctx, audit.Event{
			Event:      audit.EventRevoked,
			LicenseKey: trialKey,
			Email:      result.Email,
			Reason:     license.ReasonSupersededByFull,
		})
	}

	if result.FirstBinding {
		s.logger.InfoContext(ctx, "license bound to device",
			slog.String("license_key", license.MaskKey(result.LicenseKey)),
			slog.String("app_version", req.AppVersion),
		)
	}

	expires := domain.NewTimestamp(result.Expires)
	return &domain.ValidateLicenseResponse{
		Success:       true,
		Message:       "License validated successfully",
		Expires:       &expires,
		IsTrial:       result.IsTrial,
		EmailMismatch: result.EmailMismatch,
	}, nil
}

// Recover emails the license key held by req.Email. The key itself is never
// part of the response.
func (s *licenseService) Recover(ctx context.Context, req domain.ForgotLicenseRequest) (*domain.ForgotLicenseResponse, error) {
	email := strings.TrimSpace(req.Email)
	key, rec, err := s.manager.FindByEmail(ctx, email)
	if errors.Is(err, apierrors.ErrLicenseNotFound) {
		return nil, apierrors.New(http.StatusNotFound, apierrors.CodeNoLicenseFound, "No license found for this email address")
	}
	if err != nil {
		return nil, err
	}

	sent := s.mailer.Deliver(ctx, notify.Message{
		Kind:         notify.KindLicenseRecovery,
		Recipient:    rec.Email,
		LicenseKey:   key,
		CustomerName: rec.CustomerName,
		Expires:      rec.ExpiryDate.Time,
	})
	s.logger.InfoContext(ctx, "license recovery requested",
		slog.String("license_key", license.MaskKey(key)),
		slog.Bool("email_sent", sent),
	)

	return &domain.ForgotLicenseResponse{
		Success:   true,
		Message:   "License key sent to your email",
		EmailSent: sent,
	}, nil
}

// CheckEligibility reports whether a trial may be started. Ineligibility is a
// normal answer, not an error.
func (s *licenseService) CheckEligibility(ctx context.Context, req domain.TrialEligibilityRequest) (*domain.TrialEligibilityResponse, error) {
	err := s.manager.Eligibility(ctx, req.Email, req.HardwareID)
	var notEligible *apierrors.EligibilityError
	switch {
	case err == nil:
		return &domain.TrialEligibilityResponse{Eligible: true, Message: "User is eligible for a trial"}, nil
	case errors.As(err, &notEligible):
		return &domain.TrialEligibilityResponse{
			Eligible: false,
			Reason:   notEligible.Reason,
			Message:  notEligible.Message,
		}, nil
	default:
		return nil, err
	}
}

// StartTrial issues a trial license bound to the requesting device and emails
// it to the customer.
func (s *licenseService) StartTrial(ctx context.Context, req domain.TrialStartRequest) (*domain.IssueLicenseResponse, error) {
	key, rec, err := s.manager.IssueTrial(ctx, license.TrialParams{
		Email:       req.Email,
		HardwareID:  req.HardwareID,
		DeviceName:  req.DeviceName,
		Period:      s.cfg.TrialPeriod,
		ProductName: s.cfg.ProductName,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordIssued(ctx, SourceTrial)
	s.journal.Record(ctx, audit.Event{
		Event:      audit.EventTrialIssued,
		LicenseKey: key,
		Email:      rec.Email,
		HardwareID: rec.HardwareID,
		Purchase:   rec.PurchaseInfo,
	})

	sent := s.mailer.Deliver(ctx, notify.Message{
		Kind:       notify.KindTrialActivation,
		Recipient:  rec.Email,
		LicenseKey: key,
		Expires:    rec.ExpiryDate.Time,
	})
	if !sent {
		s.logger.WarnContext(ctx, "trial email was not sent", slog.String("license_key", license.MaskKey(key)))
	}

	return issueResponse(key, rec, sent, "Trial license created successfully"), nil
}

// TrialStatus describes the remaining lifetime of any license, trial or not.
func (s *licenseService) TrialStatus(ctx context.Context, licenseKey string) (*domain.TrialStatusResponse, error) {
	key := license.NormalizeKey(licenseKey)
	rec, err := s.manager.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	expired := rec.ExpiredAt(now)
	return &domain.TrialStatusResponse{
		LicenseKey:    key,
		IsTrial:       rec.IsTrial(),
		Active:        rec.IsActive() && !expired,
		Expired:       expired,
		Expires:       rec.ExpiryDate.Ptr(),
		DaysRemaining: daysRemaining(rec.ExpiryDate.Time, now),
	}, nil
}

// daysRemaining rounds partial days up so a license expiring later today
// still reports one day left.
func daysRemaining(expiry, now time.Time) int {
	left := expiry.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Issue creates a full license, journals the purchase and optionally emails
// the key.
func (s *licenseService) Issue(ctx context.Context, req domain.CreateLicenseRequest) (*domain.IssueLicenseResponse, error) {
	days := req.ValidityDays
	if days <= 0 {
		days = s.cfg.DefaultValidityDays
	}
	source := SourceAdmin
	if req.PurchaseInfo != nil && req.PurchaseInfo.Source != "" {
		source = req.PurchaseInfo.Source
	}

	key, rec, err := s.manager.Create(ctx, license.CreateParams{
		Email:        req.Email,
		CustomerName: req.CustomerName,
		Validity:     time.Duration(days) * 24 * time.Hour,
		Tier:         domain.LicenseTierFull,
		Purchase:     req.PurchaseInfo,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordIssued(ctx, source)
	s.journal.Record(ctx, audit.Event{
		Event:      audit.EventIssued,
		LicenseKey: key,
		Email:      rec.Email,
		Purchase:   rec.PurchaseInfo,
	})

	sent := false
	if req.Notify {
		sent = s.mailer.Deliver(ctx, notify.Message{
			Kind:         notify.KindLicenseDelivery,
			Recipient:    rec.Email,
			LicenseKey:   key,
			CustomerName: rec.CustomerName,
			Expires:      rec.ExpiryDate.Time,
		})
	}

	return issueResponse(key, rec, sent, "License created successfully"), nil
}

func issueResponse(key string, rec domain.LicenseRecord, sent bool, message string) *domain.IssueLicenseResponse {
	return &domain.IssueLicenseResponse{
		Success:    true,
		LicenseKey: key,
		Email:      rec.Email,
		Expires:    rec.ExpiryDate.Ptr(),
		IsTrial:    rec.IsTrial(),
		EmailSent:  sent,
		Message:    message,
	}
}

// Revoke soft-deletes a license. Revoking twice succeeds without a second
// journal entry.
func (s *licenseService) Revoke(ctx context.Context, licenseKey string, req domain.RevokeLicenseRequest) (*domain.LicenseResponse, error) {
	key := license.NormalizeKey(licenseKey)
	rec, changed, err := s.manager.Revoke(ctx, key, req.Reason)
	if err != nil {
		return nil, err
	}

	message := "License already revoked"
	if changed {
		message = "License revoked"
		s.metrics.RecordRevoked(ctx, rec.RevocationReason)
		s.journal.Record(ctx, audit.Event{
			Event:      audit.EventRevoked,
			LicenseKey: key,
			Email:      rec.Email,
			Reason:     rec.RevocationReason,
		})
	}
	return &domain.LicenseResponse{Success: true, LicenseKey: key, License: rec, Message: message}, nil
}

// Rebind moves a license to another device, or clears its binding when the
// request names no device.
func (s *licenseService) Rebind(ctx context.Context, licenseKey string, req domain.RebindLicenseRequest) (*domain.LicenseResponse, error) {
	key := license.NormalizeKey(licenseKey)
	rec, err := s.manager.Rebind(ctx, key, req.HardwareID, req.DeviceName)
	if err != nil {
		return nil, err
	}
	s.journal.Record(ctx, audit.Event{
		Event:      audit.EventRebound,
		LicenseKey: key,
		Email:      rec.Email,
		HardwareID: rec.HardwareID,
	})

	message := "License rebound"
	if !rec.IsBound() {
		message = "License binding cleared"
	}
	return &domain.LicenseResponse{Success: true, LicenseKey: key, License: rec, Message: message}, nil
}

// Get returns one license with its journal history. A journal read failure
// is logged and the record is returned without events.
func (s *licenseService) Get(ctx context.Context, licenseKey string) (*domain.LicenseResponse, error) {
	key := license.NormalizeKey(licenseKey)
	rec, err := s.manager.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	resp := &domain.LicenseResponse{Success: true, LicenseKey: key, License: rec}
	events, err := s.journal.Events(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read audit journal",
			slog.String("license_key", license.MaskKey(key)),
			slog.String("error", err.Error()),
		)
		return resp, nil
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, ev.ToDomain())
	}
	return resp, nil
}

// List returns every license in store order.
func (s *licenseService) List(ctx context.Context) (*domain.LicenseListResponse, error) {
	entries := make([]domain.LicenseEntry, 0)
	for key, rec := range s.manager.List(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries = append(entries, domain.LicenseEntry{LicenseKey: key, License: rec})
	}
	return &domain.LicenseListResponse{Success: true, Count: len(entries), Licenses: entries}, nil
}
