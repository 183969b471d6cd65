package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/panadero/core"
)

const AudienceChallenge = "session:challenge"
const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	issuer  string
	now     func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithIssuer sets the iss claim and requires it on parse
func WithIssuer(issuer string) Option {
	return func(j *JWTTokenizer) { j.issuer = issuer }
}

// WithClock replaces the time source used to validate expiry
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, opts ...Option) *JWTTokenizer {
	j := &JWTTokenizer{signKey: signKey, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ParseSigningKey decodes a PEM encoded EC private key
func ParseSigningKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}

// ChallengeToToken converts a Challenge to a JWT token
func (j *JWTTokenizer) ChallengeToToken(challenge *core.Challenge) (string, error) {
	claims := ChallengeClaims{
		RegisteredClaims: j.registered(challenge.Subject, challenge.ID, AudienceChallenge, challenge.IssuedAt, challenge.ExpiresAt),
		Email:            challenge.Email,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}
	return signedToken, nil
}

// TokenToChallenge converts a JWT token to a Challenge
func (j *JWTTokenizer) TokenToChallenge(tokenStr string) (*core.Challenge, error) {
	claims := &ChallengeClaims{}
	if err := j.parse(tokenStr, claims, AudienceChallenge); err != nil {
		return nil, err
	}

	return &core.Challenge{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: j.registered(session.Subject, session.ID, AudienceAccess, session.IssuedAt, session.AccessExpiry),
		Email:            session.Email,
		Name:             session.Name,
		RefreshID:        session.RefreshID,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signedToken, nil
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	// RefreshID is the JWT ID of the refresh token
	claims := RefreshClaims{
		RegisteredClaims: j.registered(session.Subject, session.RefreshID, AudienceRefresh, session.IssuedAt, session.RefreshExpiry),
		Email:            session.Email,
		Name:             session.Name,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signedToken, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}

	return &core.Session{
		ID:           claims.ID,
		Subject:      claims.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		IssuedAt:     claims.IssuedAt.Time,
		AccessExpiry: claims.ExpiresAt.Time,
		RefreshID:    claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}

	// Refresh tokens carry no access expiry
	return &core.Session{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		IssuedAt:      claims.IssuedAt.Time,
		RefreshExpiry: claims.ExpiresAt.Time,
		RefreshID:     claims.ID,
	}, nil
}

func (j *JWTTokenizer) registered(subject, id, audience string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   subject,
		ID:        id,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		Audience:  jwt.ClaimStrings{audience},
	}
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(j.signKey)
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	opts := []jwt.ParserOption{
		jwt.WithAudience(audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	// Validate token
	if !token.Valid {
		return core.ErrInvalidToken
	}

	return nil
}
