package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. Records embed the iteration count, so these can be
// raised without invalidating stored hashes.
const (
	hashIterations = 100_000
	saltLength     = 16
	hashKeyLength  = 64
)

const (
	passwordMinLength = 8
	passwordMaxLength = 128
)

// HashPassword derives a PBKDF2-HMAC-SHA256 hash with a fresh random salt
// and returns a self-describing record: iterations:base64(salt):base64(hash).
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, hashIterations, hashKeyLength, sha256.New)
	return fmt.Sprintf("%d:%s:%s",
		hashIterations,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword re-derives the key with the record's own parameters and
// compares in constant time. Malformed records fail closed: the result is
// false, never an error.
func VerifyPassword(password, record string) bool {
	parts := strings.Split(record, ":")
	if len(parts) != 3 {
		return false
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	stored, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(stored) == 0 {
		return false
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, len(stored), sha256.New)
	return subtle.ConstantTimeCompare(derived, stored) == 1
}

// ValidatePasswordStrength enforces the signup password policy: 8 to 128
// characters with at least 2 of the 4 character classes present.
func ValidatePasswordStrength(password string) error {
	if len(password) < passwordMinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidPassword, passwordMinLength)
	}
	if len(password) > passwordMaxLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidPassword, passwordMaxLength)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}
	if classes < 2 {
		return fmt.Errorf("%w: must mix at least 2 of lowercase, uppercase, digits and symbols", ErrInvalidPassword)
	}
	return nil
}
