package errors

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/render"

	"licsrv/internal/infrastructure"
)

// FromDomain maps an error returned by the managers or services to the API
// error sent to clients. Unknown errors become internal_error.
func FromDomain(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var mismatch *HardwareMismatchError
	var eligibility *EligibilityError

	switch {
	case errors.As(err, &mismatch):
		details := map[string]string{}
		if mismatch.BoundDevice != "" {
			details["bound_device"] = mismatch.BoundDevice
		}
		return NewWithDetails(http.StatusConflict, CodeBoundToOtherDevice,
			"This license is already activated on another device", details)
	case errors.Is(err, ErrLicenseNotFound):
		return New(http.StatusNotFound, CodeInvalidLicense, "The license key is not valid")
	case errors.Is(err, ErrHardwareIDNotFound):
		return New(http.StatusNotFound, CodeHardwareIDNotFound, "Hardware ID not found")
	case errors.Is(err, ErrLicenseRevoked):
		return New(http.StatusForbidden, CodeLicenseDeactivated, "This license has been deactivated")
	case errors.Is(err, ErrLicenseExpired):
		return New(http.StatusForbidden, CodeLicenseExpired, "Your license has expired. Please renew to continue.")
	case errors.Is(err, ErrTrialLimitReached):
		return New(http.StatusForbidden, CodeTrialLimitReached, "Trial limit reached")
	case errors.As(err, &eligibility):
		return NewWithDetails(http.StatusConflict, eligibility.Reason, eligibility.Message,
			map[string]bool{"eligible": false})
	case errors.Is(err, ErrTrialNotEligible):
		return New(http.StatusConflict, CodeTrialNotEligible, "You are not eligible for a trial at this time")
	case errors.Is(err, ErrRateLimited):
		return New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Too many requests. Please try again later.")
	case errors.Is(err, ErrUnauthorized):
		return New(http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
	case errors.Is(err, ErrInvalidArgument):
		return New(http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, ErrPersistence):
		return New(http.StatusInternalServerError, CodePersistence, "The request could not be stored. Please try again.")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return New(http.StatusGatewayTimeout, CodeTimeout, "The request took too long to process")
	default:
		return New(http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	}
}

// ErrorHandler provides centralized error rendering
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger.With(slog.String("component", "error_handler")),
	}
}

// HandleError renders err in the standard envelope. Server-side failures are
// logged at error level, client errors at debug.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	apiErr := FromDomain(err)

	level := slog.LevelDebug
	if apiErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
		infrastructure.RecordError(ctx, err)
	}
	h.logger.Log(ctx, level, "request failed",
		slog.String("error", err.Error()),
		slog.String("code", apiErr.ErrorCode),
		slog.Int("status", apiErr.StatusCode),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	resp := NewErrorResponse(apiErr, infrastructure.GetTraceID(ctx))
	var limited *RateLimitError
	if errors.As(err, &limited) {
		resp.RetryAfter = int(math.Ceil(limited.RetryAfter.Seconds()))
	}
	render.Render(w, r, resp)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	resp := NewErrorResponse(New(http.StatusNotFound, CodeNotFound, "The requested resource was not found"),
		infrastructure.GetTraceID(r.Context()))
	render.Render(w, r, resp)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	resp := NewErrorResponse(New(http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		"Method "+r.Method+" is not allowed for this endpoint"),
		infrastructure.GetTraceID(r.Context()))
	render.Render(w, r, resp)
}
