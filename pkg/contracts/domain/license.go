// Package domain contains the records and wire contracts shared by every layer of
// the entitlement server. These types are the single source of truth for the
// on-disk documents and the HTTP protocol.
package domain

import (
	"encoding/json"
	"time"
)

// LicenseStatus is the soft-delete tag of a license record.
type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusRevoked LicenseStatus = "revoked"
)

// LicenseTier distinguishes paid licenses from short trial licenses.
type LicenseTier string

const (
	LicenseTierFull  LicenseTier = "full"
	LicenseTierTrial LicenseTier = "trial"
)

// LegacyTrialPeriod is the longest validity a record without a tier may have and
// still be classified as a trial.
const LegacyTrialPeriod = 7 * 24 * time.Hour

// PurchaseInfo is audit metadata attached at issuance. Nothing in the
// entitlement logic branches on it.
type PurchaseInfo struct {
	Source           string     `json:"source,omitempty"`
	SourceLicenseKey string     `json:"source_license_key,omitempty"`
	SaleID           string     `json:"sale_id,omitempty"`
	ProductName      string     `json:"product_name,omitempty"`
	Tier             string     `json:"tier,omitempty"`
	Price            float64    `json:"price,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	PurchaseDate     *Timestamp `json:"purchase_date,omitempty"`
	IsRecurring      bool       `json:"is_recurring,omitempty"`
	Refunded         bool       `json:"refunded,omitempty"`
	Disputed         bool       `json:"disputed,omitempty"`
	Test             bool       `json:"test,omitempty"`
}

// LicenseRecord is one entry of the license store, keyed by license key.
// An empty HardwareID means the license has not been bound to a device yet.
type LicenseRecord struct {
	Email            string
	CustomerName     string
	CreatedDate      Timestamp
	ExpiryDate       Timestamp
	Status           LicenseStatus
	Tier             LicenseTier
	HardwareID       string
	DeviceName       string
	LastValidation   Timestamp
	ValidationCount  int
	RevokedAt        Timestamp
	RevocationReason string
	PurchaseInfo     *PurchaseInfo
}

// IsActive reports whether the record has not been revoked.
func (r LicenseRecord) IsActive() bool {
	return r.Status == LicenseStatusActive
}

// IsBound reports whether a device has claimed the license.
func (r LicenseRecord) IsBound() bool {
	return r.HardwareID != ""
}

// IsTrial reports whether the record is a trial license. Records written before
// tiers existed are classified by their validity period.
func (r LicenseRecord) IsTrial() bool {
	if r.Tier != "" {
		return r.Tier == LicenseTierTrial
	}
	return r.ExpiryDate.Sub(r.CreatedDate.Time) <= LegacyTrialPeriod
}

// ExpiredAt reports whether the license is past its expiry at now.
func (r LicenseRecord) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiryDate.Time)
}

// licenseRecordJSON is the persisted shape. Binding fields are explicit nulls when
// unset and is_active is kept alongside status for older readers.
type licenseRecordJSON struct {
	Email            string        `json:"email"`
	CustomerName     string        `json:"customer_name"`
	CreatedDate      Timestamp     `json:"created_date"`
	ExpiryDate       Timestamp     `json:"expiry_date"`
	Status           LicenseStatus `json:"status,omitempty"`
	IsActive         *bool         `json:"is_active,omitempty"`
	Tier             LicenseTier   `json:"tier,omitempty"`
	HardwareID       *string       `json:"hardware_id"`
	DeviceName       *string       `json:"device_name"`
	LastValidation   Timestamp     `json:"last_validation"`
	ValidationCount  int           `json:"validation_count"`
	RevokedAt        *Timestamp    `json:"revoked_at,omitempty"`
	RevocationReason string        `json:"revocation_reason,omitempty"`
	PurchaseInfo     *PurchaseInfo `json:"purchase_info,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r LicenseRecord) MarshalJSON() ([]byte, error) {
	active := r.IsActive()
	return json.Marshal(licenseRecordJSON{
		Email:            r.Email,
		CustomerName:     r.CustomerName,
		CreatedDate:      r.CreatedDate,
		ExpiryDate:       r.ExpiryDate,
		Status:           r.Status,
		IsActive:         &active,
		Tier:             r.Tier,
		HardwareID:       optionalString(r.HardwareID),
		DeviceName:       optionalString(r.DeviceName),
		LastValidation:   r.LastValidation,
		ValidationCount:  r.ValidationCount,
		RevokedAt:        r.RevokedAt.Ptr(),
		RevocationReason: r.RevocationReason,
		PurchaseInfo:     r.PurchaseInfo,
	})
}

// UnmarshalJSON implements json.Unmarshaler. When status is absent the legacy
// is_active flag decides; a record carrying neither is treated as revoked.
func (r *LicenseRecord) UnmarshalJSON(data []byte) error {
	var raw licenseRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	status := raw.Status
	if status == "" {
		status = LicenseStatusRevoked
		if raw.IsActive != nil && *raw.IsActive {
			status = LicenseStatusActive
		}
	}

	*r = LicenseRecord{
		Email:            raw.Email,
		CustomerName:     raw.CustomerName,
		CreatedDate:      raw.CreatedDate,
		ExpiryDate:       raw.ExpiryDate,
		Status:           status,
		Tier:             raw.Tier,
		HardwareID:       derefString(raw.HardwareID),
		DeviceName:       derefString(raw.DeviceName),
		LastValidation:   raw.LastValidation,
		ValidationCount:  raw.ValidationCount,
		RevocationReason: raw.RevocationReason,
		PurchaseInfo:     raw.PurchaseInfo,
	}
	if raw.RevokedAt != nil {
		r.RevokedAt = *raw.RevokedAt
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// LicenseEntry pairs a record with its key for listings.
type LicenseEntry struct {
	LicenseKey string        `json:"license_key"`
	License    LicenseRecord `json:"license"`
}

// LicenseEvent is one audit journal entry, as exposed to administrators.
type LicenseEvent struct {
	Timestamp  Timestamp     `json:"timestamp"`
	Event      string        `json:"event"`
	Reason     string        `json:"reason,omitempty"`
	HardwareID string        `json:"hardware_id,omitempty"`
	Purchase   *PurchaseInfo `json:"purchase_info,omitempty"`
}
