package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthErrorUnwrapsToReason(t *testing.T) {
	err := fmt.Errorf("login: %w", NewAuthError(ErrInvalidCredentials))

	assert.True(t, IsAuth(err))
	assert.False(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, ErrTokenRevoked)
	assert.Equal(t, "login: invalid credentials", err.Error())
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "password: password is required", NewValidationError("password", "password is required").Error())
	assert.Equal(t, "bad input", (&ValidationError{Message: "bad input"}).Error())

	var target *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", NewValidationError("email", "x")), &target))
	assert.Equal(t, "email", target.Field)
	assert.False(t, IsAuth(target))
}

func TestCredentialProfileOmitsSecrets(t *testing.T) {
	cred := &Credential{ID: "u1", Name: "Ana", Email: "ana@x.com", PasswordHash: "hash", TwoFactorSecret: "SECRET"}
	assert.Equal(t, Profile{ID: "u1", Name: "Ana", Email: "ana@x.com"}, cred.Profile())
}
