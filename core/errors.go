package core

import (
	"errors"
	"fmt"
)

var (
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid or expired token")
	ErrTokenRevoked       = errors.New("token has been blacklisted")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOTP         = errors.New("invalid one-time code")
	ErrInvalidChallenge   = errors.New("invalid or expired two-factor challenge")
	ErrTwoFactorNotSetup  = errors.New("two-factor setup not started")
	ErrTwoFactorEnabled   = errors.New("two-factor authentication is already enabled")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrNotFound           = errors.New("not found")
)

// ValidationError reports missing or malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthError reports a rejected credential, token or one-time code.
// Reason is one of the sentinel errors above.
type AuthError struct {
	Reason error
}

func (e *AuthError) Error() string {
	return e.Reason.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Reason
}

// NewAuthError wraps a sentinel reason into an AuthError
func NewAuthError(reason error) *AuthError {
	return &AuthError{Reason: reason}
}

// IsValidation reports whether err is, or wraps, a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsAuth reports whether err is, or wraps, an AuthError
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}
