package license

import (
	"crypto/rand"
	"regexp"
	"strings"
)

// keyAlphabet has 32 symbols, so a random byte masked to 5 bits picks one
// without modulo bias.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	keyGroups     = 4
	keyGroupSize  = 4
	keyCharacters = keyGroups * keyGroupSize
)

var (
	keyPattern       = regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`)
	legacyKeyPattern = regexp.MustCompile(`^IW-[0-9]{6}-[0-9A-F]{8}$`)
	bareKeyPattern   = regexp.MustCompile(`^[A-Z0-9]{16}$`)
)

// GenerateKey returns a new random key in XXXX-XXXX-XXXX-XXXX form.
func GenerateKey() (string, error) {
	raw := make([]byte, keyCharacters)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(keyCharacters + keyGroups - 1)
	for i, v := range raw {
		if i > 0 && i%keyGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(keyAlphabet[v&31])
	}
	return b.String(), nil
}

// NormalizeKey upper-cases and trims a key typed by a user. Sixteen bare
// characters get their dashes back.
func NormalizeKey(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "")
	if bareKeyPattern.MatchString(key) {
		return key[0:4] + "-" + key[4:8] + "-" + key[8:12] + "-" + key[12:16]
	}
	return key
}

// ValidKeyFormat reports whether key, after normalization, looks like a key
// this server could have issued.
func ValidKeyFormat(key string) bool {
	key = NormalizeKey(key)
	return keyPattern.MatchString(key) || legacyKeyPattern.MatchString(key)
}

// MaskKey hides the middle of a key for logs: "K7QD****W4TZ".
func MaskKey(key string) string {
	if len(key) < 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
