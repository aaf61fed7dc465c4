package domain

import "regexp"

// Clients derive the hardware id from a hash of machine identifiers (16 hex
// characters today). Any opaque token of word characters and dashes is accepted
// so future client fingerprints keep working.
var hardwareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// ValidHardwareID reports whether id is an acceptable hardware identifier.
func ValidHardwareID(id string) bool {
	return hardwareIDPattern.MatchString(id)
}
