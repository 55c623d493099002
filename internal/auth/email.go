package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var emailValidator = validator.New()

// ValidateEmail checks presence, length and basic address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidEmail)
	}
	if len(email) > 255 {
		return fmt.Errorf("%w: email must be at most 255 characters", ErrInvalidEmail)
	}
	if err := emailValidator.Var(email, "email"); err != nil {
		return fmt.Errorf("%w: malformed email address", ErrInvalidEmail)
	}
	return nil
}

// NormalizeEmail produces the uniqueness key for user lookups: NFC
// normalized, trimmed and lowercased. Visually identical addresses with
// differing Unicode encodings map to the same key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// MaskEmail redacts an address for log output, keeping the first two
// characters and the domain.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local := email[:at]
	if len(local) <= 2 {
		return local + "***" + email[at:]
	}
	return local[:2] + "***" + email[at:]
}

// hashEmailKey derives the rate-limit key fragment for an email address.
// Only a truncated SHA-256 of the normalized address ever reaches the
// counter store.
func hashEmailKey(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])[:16]
}
