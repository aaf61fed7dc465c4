package errors

import (
	"errors"
	"fmt"
	"time"
)

// Domain sentinels. Managers return these (or typed errors that match them
// through errors.Is) and the transport maps them to wire codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrLicenseNotFound    = fmt.Errorf("license %w", ErrNotFound)
	ErrHardwareIDNotFound = fmt.Errorf("hardware id %w", ErrNotFound)
	ErrLicenseRevoked     = errors.New("license revoked")
	ErrLicenseExpired     = errors.New("license expired")
	ErrHardwareMismatch   = errors.New("license bound to another device")
	ErrTrialLimitReached  = errors.New("trial limit reached")
	ErrTrialNotEligible   = errors.New("not eligible for a trial")
	ErrPersistence        = errors.New("persistence failure")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
)

// HardwareMismatchError carries the name of the device the license is bound to.
type HardwareMismatchError struct {
	BoundDevice string
}

func (e *HardwareMismatchError) Error() string {
	if e.BoundDevice == "" {
		return ErrHardwareMismatch.Error()
	}
	return fmt.Sprintf("%s (%s)", ErrHardwareMismatch, e.BoundDevice)
}

// Is reports whether target is ErrHardwareMismatch.
func (e *HardwareMismatchError) Is(target error) bool {
	return target == ErrHardwareMismatch
}

// PersistenceError reports a store that could not be read, locked or durably written.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError wraps err unless it already is a PersistenceError.
func NewPersistenceError(op, path string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Path: path, Err: err}
}

// Trial eligibility reason codes.
const (
	ReasonTrialUsedEmail    = "trial_already_used_email"
	ReasonTrialUsedDevice   = "trial_already_used_device"
	ReasonAlreadyHasLicense = "already_has_license"
)

// EligibilityError explains why a trial license was refused.
type EligibilityError struct {
	Reason  string
	Message string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTrialNotEligible, e.Reason)
}

// Is reports whether target is ErrTrialNotEligible.
func (e *EligibilityError) Is(target error) bool {
	return target == ErrTrialNotEligible
}

// RateLimitError reports a blocked identity and when it may retry.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry after %s", ErrRateLimited, e.Action, e.RetryAfter.Round(time.Second))
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// InvalidArgument wraps ErrInvalidArgument with a description.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
