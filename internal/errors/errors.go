package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Stable wire codes. Clients branch on these, so they never change.
const (
	CodeInvalidLicense     = "invalid_license"
	CodeLicenseDeactivated = "license_deactivated"
	CodeLicenseExpired     = "license_expired"
	CodeBoundToOtherDevice = "bound_to_other_device"
	CodeTrialLimitReached  = "trial_limit_reached"
	CodeHardwareIDNotFound = "hardware_id_not_found"
	CodeNoLicenseFound     = "no_license_found"
	CodeMessageNotFound    = "message_not_found"
	CodePersistence        = "persistence_error"
	CodeInvalidRequest     = "invalid_request"
	CodeValidationFailed   = "validation_failed"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeTimeout            = "request_timeout"
	CodeInternal           = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
	CodeTrialNotEligible   = "trial_not_eligible"
	CodePayloadTooLarge    = "payload_too_large"
	CodeUnsupportedMedia   = "unsupported_media_type"
)

// APIError represents a structured API error
type APIError struct {
	StatusCode int         `json:"-"`
	ErrorCode  string      `json:"error"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents one failed field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// InvalidRequestWithError reports a body that could not be decoded
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// NewValidationErrors creates validation errors from multiple fields
func NewValidationErrors(errors []ValidationError) *APIError {
	return NewWithDetails(
		http.StatusBadRequest,
		CodeValidationFailed,
		"Request validation failed",
		ValidationErrors{Errors: errors},
	)
}

// NotFoundError creates a not found error for a named resource
func NotFoundError(resource string) *APIError {
	return New(http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ErrorResponse is the envelope of every failed request:
// {"success": false, "error": "<code>", "message": "...", ...}
type ErrorResponse struct {
	Success    bool        `json:"success"`
	Error      string      `json:"error"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter int         `json:"retry_after,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`

	status int
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError, traceID string) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   err.ErrorCode,
		Message: err.Message,
		Details: err.Details,
		TraceID: traceID,
		status:  err.StatusCode,
	}
}

// StatusCode returns the HTTP status the response is sent with
func (e *ErrorResponse) StatusCode() int {
	return e.status
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
	}
	render.Status(r, e.status)
	return nil
}

// WriteError writes an error response without chi/render, for use outside a
// router (recoverers, raw middleware)
func WriteError(w http.ResponseWriter, err *APIError, traceID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(err, traceID))
}
