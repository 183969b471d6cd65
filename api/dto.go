// Package api holds the JSON request and response schemas shared by the
// HTTP transport and the client.
package api

import "github.com/layer-3/panadero/core"

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyTwoFactorRequest struct {
	OTP       string `json:"otp"`
	TempToken string `json:"tempToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type VerifyTokenRequest struct {
	Token string `json:"token"`
}

type OTPRequest struct {
	OTP string `json:"otp"`
}

// LoginResponse is either a pending second-factor challenge or a token pair with the profile
type LoginResponse struct {
	RequiresTwoFactor bool   `json:"requires2FA,omitempty"`
	TempToken         string `json:"tempToken,omitempty"`

	AccessToken  string        `json:"accessToken,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	TokenType    string        `json:"tokenType,omitempty"`
	ExpiresIn    int64         `json:"expiresIn,omitempty"`
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Email        string        `json:"email,omitempty"`
	User         *core.Profile `json:"user,omitempty"`
}

// Tokens extracts the token pair of a completed login
func (r LoginResponse) Tokens() core.TokenPair {
	return core.TokenPair{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
	}
}

type TokenResponse = core.TokenPair

type VerifyTokenResponse struct {
	User TokenUser `json:"user"`
}

// TokenUser is the decoded subject of an access token
type TokenUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Exp   int64  `json:"exp"`
}

type TwoFactorSetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
