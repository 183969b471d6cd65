package tokenizer

import "github.com/golang-jwt/jwt/v5"

// ChallengeClaims identify a login that still owes its second factor
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims carry the identity needed to mint the next pair
type RefreshClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
