package ports

import "time"

// PasswordHasher hashes and compares password secrets
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns core.ErrInvalidCredentials when the password does not match
	Compare(hash, password string) error
}

// OTPProvider enrolls and validates time-based one-time codes
type OTPProvider interface {
	// Generate creates a new shared secret and its provisioning URL
	Generate(accountName string) (secret string, url string, err error)
	Validate(code, secret string, at time.Time) bool
}
