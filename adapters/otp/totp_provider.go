package otp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPProvider implements the OTPProvider interface with RFC 6238 codes
type TOTPProvider struct {
	issuer string
	opts   totp.ValidateOpts
}

// NewTOTPProvider creates a provider issuing secrets under the given issuer name
func NewTOTPProvider(issuer string) *TOTPProvider {
	return &TOTPProvider{
		issuer: issuer,
		opts: totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// Generate creates a new secret for accountName
func (p *TOTPProvider) Generate(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountName,
		Period:      p.opts.Period,
		Digits:      p.opts.Digits,
		Algorithm:   p.opts.Algorithm,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate checks code against secret at the given time
func (p *TOTPProvider) Validate(code, secret string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, p.opts)
	return err == nil && valid
}

// Code returns the code for secret at the given time
func (p *TOTPProvider) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, p.opts)
}
