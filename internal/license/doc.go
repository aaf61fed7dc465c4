// Package license implements the server side of license entitlements: issuing
// keys, validating them against a device, and soft revocation.
//
// # Records
//
// Every license is a domain.LicenseRecord stored under its key in a
// store.Store document. Records are never removed; revocation flips the
// status tag and stamps revoked_at so support can see the history.
//
// # Validation Flow
//
// Validate applies these rules in order, and the first match wins:
//
//	1. Unknown key               -> errors.ErrLicenseNotFound
//	2. Revoked                   -> errors.ErrLicenseRevoked
//	3. Past expiry_date          -> errors.ErrLicenseExpired
//	4. Not bound yet             -> bind to the caller's hardware id
//	5. Bound to the same device  -> refresh device name and counters
//	6. Bound to another device   -> *errors.HardwareMismatchError
//
// The email sent by the client is compared case-insensitively but only
// reported back; a mismatch never fails validation.
//
// # Hardware Binding
//
// A key binds to the first device that validates it. Only Rebind, an
// administrative operation, moves or clears the binding.
//
// # Trials
//
// IssueTrial creates a short trial-tier license already bound to the device.
// Eligibility is checked inside the same store lock, so two concurrent
// requests cannot both obtain a trial for one email or device.
//
// # Concurrency
//
// Each mutation is one load-modify-save cycle under the store's lock (see
// store.Locker). Reads take a snapshot without locking; the store's atomic
// save guarantees a snapshot is never a partially written document.
//
// # Key Format
//
// Generated keys are four groups of four characters from an alphabet without
// I, O, 0 and 1, e.g. "K7QD-9XHM-2RPA-W4TZ". Keys issued by the previous
// server ("IW-123456-ABCDEF12") are still accepted.
package license
