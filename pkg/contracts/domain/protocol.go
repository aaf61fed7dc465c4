package domain

// Request and response contracts of the HTTP protocol. Request types carry
// validator tags; the custom "licensekey" and "hardwareid" tags are registered
// by the validation middleware.

// DefaultDeviceName is used when a client omits device_name.
const DefaultDeviceName = "Unknown Device"

// ValidateLicenseRequest is the validation protocol request.
type ValidateLicenseRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	LicenseKey string `json:"license_key" validate:"required,licensekey"`
	HardwareID string `json:"hardware_id" validate:"required,hardwareid"`
	DeviceName string `json:"device_name,omitempty" validate:"omitempty,max=128"`
	AppVersion string `json:"app_version,omitempty" validate:"omitempty,max=64"`
}

// ValidateLicenseResponse is returned on successful validation.
type ValidateLicenseResponse struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Expires       *Timestamp `json:"expires,omitempty"`
	IsTrial       bool       `json:"is_trial"`
	EmailMismatch bool       `json:"email_mismatch,omitempty"`
}

// ForgotLicenseRequest asks for a license key to be re-sent.
type ForgotLicenseRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// ForgotLicenseResponse never carries the key itself.
type ForgotLicenseResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	EmailSent bool   `json:"email_sent"`
}

// TrialCheckRequest is the trial-check protocol request.
type TrialCheckRequest struct {
	HardwareID string `json:"hardware_id" validate:"required,hardwareid"`
}

// TrialLimits reports the quota in effect.
type TrialLimits struct {
	Files int `json:"files"`
}

// TrialCheckResponse is the trial-check protocol response.
type TrialCheckResponse struct {
	Allowed        bool        `json:"allowed"`
	RemainingFiles int         `json:"remaining_files"`
	FilesUsed      int         `json:"files_used"`
	Limits         TrialLimits `json:"limits"`
}

// TrialIncrementRequest records processed files. FilesCount defaults to 1.
type TrialIncrementRequest struct {
	HardwareID string `json:"hardware_id" validate:"required,hardwareid"`
	FilesCount int    `json:"files_count,omitempty" validate:"omitempty,min=1,max=1000"`
}

// TrialIncrementResponse reports usage after an increment.
type TrialIncrementResponse struct {
	Success        bool   `json:"success"`
	FilesUsed      int    `json:"files_used"`
	RemainingFiles int    `json:"remaining_files"`
	Message        string `json:"message,omitempty"`
}

// TrialEligibilityRequest asks whether a trial license may be issued.
type TrialEligibilityRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	HardwareID string `json:"hardware_id" validate:"required,hardwareid"`
}

// TrialEligibilityResponse carries a reason code when not eligible.
type TrialEligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

// TrialStartRequest issues a trial license bound to the requesting device.
type TrialStartRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	HardwareID string `json:"hardware_id" validate:"required,hardwareid"`
	DeviceName string `json:"device_name,omitempty" validate:"omitempty,max=128"`
}

// TrialStatusRequest looks up a license by key.
type TrialStatusRequest struct {
	LicenseKey string `json:"license_key" validate:"required,licensekey"`
}

// TrialStatusResponse describes the remaining lifetime of a license.
type TrialStatusResponse struct {
	LicenseKey    string     `json:"license_key"`
	IsTrial       bool       `json:"is_trial"`
	Active        bool       `json:"active"`
	Expired       bool       `json:"expired"`
	Expires       *Timestamp `json:"expires,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
}

// CreateLicenseRequest is the administrative issuance request.
type CreateLicenseRequest struct {
	Email        string        `json:"email" validate:"required,email,max=254"`
	CustomerName string        `json:"customer_name,omitempty" validate:"omitempty,max=128"`
	ValidityDays int           `json:"validity_days,omitempty" validate:"omitempty,min=1,max=36500"`
	Notify       bool          `json:"notify,omitempty"`
	PurchaseInfo *PurchaseInfo `json:"purchase_info,omitempty"`
}

// IssueLicenseResponse is returned for administrative and trial issuance.
type IssueLicenseResponse struct {
	Success    bool       `json:"success"`
	LicenseKey string     `json:"license_key"`
	Email      string     `json:"email"`
	Expires    *Timestamp `json:"expires,omitempty"`
	IsTrial    bool       `json:"is_trial"`
	EmailSent  bool       `json:"email_sent"`
	Message    string     `json:"message,omitempty"`
}

// RevokeLicenseRequest carries an optional reason such as "refund" or "dispute".
type RevokeLicenseRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=128"`
}

// RebindLicenseRequest moves a license to another device. An empty hardware id
// clears the binding so the next validation claims it.
type RebindLicenseRequest struct {
	HardwareID string `json:"hardware_id,omitempty" validate:"omitempty,hardwareid"`
	DeviceName string `json:"device_name,omitempty" validate:"omitempty,max=128"`
}

// LicenseResponse wraps a single record for administrators.
type LicenseResponse struct {
	Success    bool           `json:"success"`
	LicenseKey string         `json:"license_key"`
	License    LicenseRecord  `json:"license"`
	Events     []LicenseEvent `json:"events,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// LicenseListResponse is the administrative listing.
type LicenseListResponse struct {
	Success  bool           `json:"success"`
	Count    int            `json:"count"`
	Licenses []LicenseEntry `json:"licenses"`
}

// TrialUsageResponse wraps a single trial record for administrators.
type TrialUsageResponse struct {
	Success    bool       `json:"success"`
	HardwareID string     `json:"hardware_id"`
	Usage      TrialUsage `json:"usage"`
	Message    string     `json:"message,omitempty"`
}

// TrialListResponse is the administrative trial listing.
type TrialListResponse struct {
	Success  bool         `json:"success"`
	Count    int          `json:"count"`
	MaxFiles int          `json:"max_files"`
	Trials   []TrialEntry `json:"trials"`
}

// RateLimitResetRequest clears the per-identity limiter state of one client.
// At least one field must be set.
type RateLimitResetRequest struct {
	Email      string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	IP         string `json:"ip,omitempty" validate:"omitempty,ip"`
	HardwareID string `json:"hardware_id,omitempty" validate:"omitempty,hardwareid"`
}

// ActionResponse acknowledges an administrative action without a payload.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse is the liveness document.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthResponse reports the readiness of each dependency.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}
