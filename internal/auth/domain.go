package auth

import (
	"errors"
	"time"
)

// User represents an account in the users table.
type User struct {
	ID              string
	Email           string
	EmailNormalized string
	PasswordHash    string
	Verified        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identity is the verified caller attached to the request context by the
// auth middleware.
type Identity struct {
	UserID string
	Email  string
}

// Sentinel errors returned by the service layer. Handlers translate these
// into the JSON error envelope; wording stays generic where enumeration
// resistance matters.
var (
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrMissingCredentials  = errors.New("missing credentials")
	ErrRateLimited         = errors.New("rate limited")
	ErrUserExists          = errors.New("user already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNotVerified         = errors.New("email not verified")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Error codes exposed in the JSON error envelope.
const (
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeInvalidPassword     = "INVALID_PASSWORD"
	CodeMissingCredentials  = "MISSING_CREDENTIALS"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUserExists          = "USER_EXISTS"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeNotVerified         = "NOT_VERIFIED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeMissingRefreshToken = "MISSING_REFRESH_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeAlreadyVerified     = "ALREADY_VERIFIED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeServerError         = "SERVER_ERROR"
)
