package core

import "time"

// Credential is the stored account record used for password login
type Credential struct {
	ID               string    // Synthetic identifier (uuid)
	Name             string    // Display name
	Email            string    // Unique, compared exactly as stored
	PasswordHash     string    // One-way salted hash, never the plaintext
	TwoFactorEnabled bool      // Login requires a TOTP code when set
	TwoFactorSecret  string    // TOTP shared secret, pending until TwoFactorEnabled
	CreatedAt        time.Time // When the account was registered
}

// Profile is the public projection of a Credential
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Profile strips the secret fields from the credential
func (c *Credential) Profile() Profile {
	return Profile{ID: c.ID, Name: c.Name, Email: c.Email}
}

// Challenge represents the pending second-factor step of a login
type Challenge struct {
	ID        string    // Unique identifier, consumed once
	Subject   string    // Credential ID awaiting the second factor
	Email     string    // Email of the credential
	IssuedAt  time.Time // When the password check succeeded
	ExpiresAt time.Time // When the challenge expires
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier (access token jti)
	Subject       string    // Credential ID of the user
	Email         string    // Email of the user
	Name          string    // Display name of the user
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
	RefreshExpiry time.Time // When the refresh capability expires
}

// Revocation is an entry of the revocation set
type Revocation struct {
	Key       string    // Hash of the revoked token or jti
	RevokedAt time.Time // When the entry was added
	ExpiresAt time.Time // After this the token would be rejected anyway
}

// TokenPair is what a completed login or refresh hands to the client
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}
