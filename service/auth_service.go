package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/panadero/core"
	"github.com/layer-3/panadero/metrics"
	"github.com/layer-3/panadero/ports"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultAccessTTL    = time.Hour
	DefaultRefreshTTL   = 7 * 24 * time.Hour
)

// LoginResult is the outcome of a password or second-factor login.
// Either RequiresTwoFactor is set with a TempToken, or Tokens and Profile are filled.
type LoginResult struct {
	RequiresTwoFactor bool
	TempToken         string
	Tokens            core.TokenPair
	Profile           core.Profile
}

// TwoFactorSetup is returned when a user starts TOTP enrollment
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer   ports.Tokenizer
	store       ports.Store
	credentials ports.CredentialStore
	hasher      ports.PasswordHasher
	otp         ports.OTPProvider
	eventPub    ports.EventPublisher
	logger      *zap.Logger

	challengeTTL time.Duration
	accessTTL    time.Duration
	refreshTTL   time.Duration
	now          func() time.Time
}

// Option configures an AuthService
type Option func(*AuthService)

// WithTTLs overrides token lifetimes; zero values keep the defaults
func WithTTLs(access, refresh, challenge time.Duration) Option {
	return func(s *AuthService) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
		if challenge > 0 {
			s.challengeTTL = challenge
		}
	}
}

// WithClock replaces the time source; the tokenizer must share it
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithLogger sets the logger used for auth outcomes
func WithLogger(logger *zap.Logger) Option {
	return func(s *AuthService) { s.logger = logger }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	credentials ports.CredentialStore,
	hasher ports.PasswordHasher,
	otp ports.OTPProvider,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		tokenizer:    tokenizer,
		store:        store,
		credentials:  credentials,
		hasher:       hasher,
		otp:          otp,
		eventPub:     eventPub,
		logger:       zap.NewNop(),
		challengeTTL: DefaultChallengeTTL,
		accessTTL:    DefaultAccessTTL,
		refreshTTL:   DefaultRefreshTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register stores a new credential and returns its public profile
func (s *AuthService) Register(ctx context.Context, name, email, password string) (core.Profile, error) {
	if email == "" {
		return core.Profile{}, core.NewValidationError("email", "email is required")
	}
	if password == "" {
		return core.Profile{}, core.NewValidationError("password", "password is required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, core.ErrPasswordTooLong) {
			return core.Profile{}, core.NewValidationError("password", core.ErrPasswordTooLong.Error())
		}
		return core.Profile{}, err
	}

	cred := &core.Credential{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.credentials.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			return core.Profile{}, core.NewValidationError("email", core.ErrEmailTaken.Error())
		}
		return core.Profile{}, fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.Info("auth.register", zap.String("subject", cred.ID))
	return cred.Profile(), nil
}

// Login authenticates a user by email and password
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" {
		return LoginResult{}, core.NewValidationError("email", "email is required")
	}
	if password == "" {
		return LoginResult{}, core.NewValidationError("password", "password is required")
	}

	cred, err := s.credentials.GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.loginFailed("unknown email")
			return LoginResult{}, core.NewAuthError(core.ErrInvalidCredentials)
		}
		return LoginResult{}, fmt.Errorf("failed to load credential: %w", err)
	}

	if err := s.hasher.Compare(cred.PasswordHash, password); err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			s.loginFailed("password mismatch")
			return LoginResult{}, core.NewAuthError(core.ErrInvalidCredentials)
		}
		return LoginResult{}, err
	}

	if cred.TwoFactorEnabled {
		tempToken, err := s.createChallenge(cred)
		if err != nil {
			return LoginResult{}, err
		}
		s.logger.Info("auth.login.challenge", zap.String("subject", cred.ID))
		return LoginResult{RequiresTwoFactor: true, TempToken: tempToken}, nil
	}

	tokens, err := s.issueTokens(cred)
	if err != nil {
		return LoginResult{}, err
	}

	metrics.RecordAuthEvent("login", true)
	s.logger.Info("auth.login.success", zap.String("subject", cred.ID))
	return LoginResult{Tokens: tokens, Profile: cred.Profile()}, nil
}

// VerifyTwoFactor completes a login that is waiting for its one-time code
func (s *AuthService) VerifyTwoFactor(ctx context.Context, code, tempToken string) (LoginResult, error) {
	if tempToken == "" {
		return LoginResult{}, core.NewValidationError("tempToken", "temporary token is required")
	}
	if code == "" {
		return LoginResult{}, core.NewValidationError("otp", "one-time code is required")
	}

	challenge, err := s.tokenizer.TokenToChallenge(tempToken)
	if err != nil {
		metrics.RecordAuthEvent("verify_2fa", false)
		return LoginResult{}, core.NewAuthError(core.ErrInvalidChallenge)
	}

	consumed, err := s.store.IsTokenInvalidated(ctx, jtiKey(challenge.ID))
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to check challenge: %w", err)
	}
	if consumed {
		metrics.RecordAuthEvent("verify_2fa", false)
		return LoginResult{}, core.NewAuthError(core.ErrInvalidChallenge)
	}

	cred, err := s.credentials.GetCredential(ctx, challenge.Subject)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return LoginResult{}, core.NewAuthError(core.ErrInvalidChallenge)
		}
		return LoginResult{}, fmt.Errorf("failed to load credential: %w", err)
	}
	if !cred.TwoFactorEnabled {
		return LoginResult{}, core.NewAuthError(core.ErrInvalidChallenge)
	}

	if !s.otp.Validate(code, cred.TwoFactorSecret, s.now()) {
		metrics.RecordAuthEvent("verify_2fa", false)
		s.logger.Info("auth.2fa.failed", zap.String("subject", cred.ID))
		return LoginResult{}, core.NewAuthError(core.ErrInvalidOTP)
	}

	// The temporary token is single use; only one concurrent caller consumes it
	won, err := s.store.ConsumeToken(ctx, jtiKey(challenge.ID), challenge.ExpiresAt.Sub(s.now()))
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !won {
		metrics.RecordAuthEvent("verify_2fa", false)
		return LoginResult{}, core.NewAuthError(core.ErrInvalidChallenge)
	}

	tokens, err := s.issueTokens(cred)
	if err != nil {
		return LoginResult{}, err
	}

	metrics.RecordAuthEvent("verify_2fa", true)
	s.logger.Info("auth.login.success", zap.String("subject", cred.ID), zap.Bool("two_factor", true))
	return LoginResult{Tokens: tokens, Profile: cred.Profile()}, nil
}

// VerifyToken checks revocation and signature of an access token and returns its claims
func (s *AuthService) VerifyToken(ctx context.Context, accessToken string) (*core.Session, error) {
	if accessToken == "" {
		return nil, core.NewValidationError("token", "no token provided")
	}

	revoked, err := s.store.IsTokenInvalidated(ctx, tokenKey(accessToken))
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if revoked {
		return nil, core.NewAuthError(core.ErrTokenRevoked)
	}

	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, core.NewAuthError(core.ErrTokenInvalid)
	}

	// Revoking a refresh token also retires the access tokens minted with it
	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, jtiKey(session.RefreshID))
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.NewAuthError(core.ErrTokenRevoked)
		}
	}

	return session, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	if refreshToken == "" {
		return core.TokenPair{}, core.NewValidationError("refreshToken", "refresh token is required")
	}

	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		metrics.RecordAuthEvent("refresh", false)
		return core.TokenPair{}, core.NewAuthError(core.ErrTokenInvalid)
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, jtiKey(session.RefreshID))
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		metrics.RecordAuthEvent("refresh", false)
		return core.TokenPair{}, core.NewAuthError(core.ErrTokenRevoked)
	}

	cred, err := s.credentials.GetCredential(ctx, session.Subject)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.TokenPair{}, core.NewAuthError(core.ErrTokenInvalid)
		}
		return core.TokenPair{}, fmt.Errorf("failed to load credential: %w", err)
	}

	// Invalidate the old refresh token for the rest of its lifetime
	remainingTime := session.RefreshExpiry.Sub(s.now())
	won, err := s.store.ConsumeToken(ctx, jtiKey(session.RefreshID), remainingTime)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to invalidate old token: %w", err)
	}
	if !won {
		metrics.RecordAuthEvent("refresh", false)
		return core.TokenPair{}, core.NewAuthError(core.ErrTokenRevoked)
	}

	tokens, err := s.issueTokens(cred)
	if err != nil {
		return core.TokenPair{}, err
	}

	metrics.RecordAuthEvent("refresh", true)
	return tokens, nil
}

// Logout adds the access token, and the refresh tokens tied to it, to the revocation set.
// Revoking an already revoked token is not an error.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return core.NewValidationError("token", "no token provided")
	}

	now := s.now()
	var (
		subject string
		revoked []core.Revocation
	)

	// An undecodable or expired token is still recorded, for the longest time it could have lived
	accessExpiry := now.Add(s.accessTTL)
	if session, err := s.tokenizer.AccessTokenToSession(accessToken); err == nil {
		subject = session.Subject
		accessExpiry = session.AccessExpiry
		if session.RefreshID != "" {
			revoked = append(revoked, core.Revocation{
				Key:       jtiKey(session.RefreshID),
				RevokedAt: now,
				ExpiresAt: session.IssuedAt.Add(s.refreshTTL),
			})
		}
	}
	revoked = append(revoked, core.Revocation{Key: tokenKey(accessToken), RevokedAt: now, ExpiresAt: accessExpiry})

	if refreshToken != "" {
		if session, err := s.tokenizer.RefreshTokenToSession(refreshToken); err == nil {
			if subject == "" {
				subject = session.Subject
			}
			revoked = append(revoked, core.Revocation{
				Key:       jtiKey(session.RefreshID),
				RevokedAt: now,
				ExpiresAt: session.RefreshExpiry,
			})
		}
	}

	for _, r := range revoked {
		if err := s.store.InvalidateToken(ctx, r.Key, r.ExpiresAt.Sub(now)); err != nil {
			return fmt.Errorf("failed to invalidate token: %w", err)
		}
	}

	// Other instances are notified; the store already holds the revocation
	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, subject, revoked); err != nil {
			s.logger.Warn("failed to publish logout event", zap.String("subject", subject), zap.Error(err))
		}
	}

	metrics.RecordAuthEvent("logout", true)
	s.logger.Info("auth.logout", zap.String("subject", subject))
	return nil
}

// ApplyRemoteRevocations records revocations announced by another instance
func (s *AuthService) ApplyRemoteRevocations(ctx context.Context, revoked []core.Revocation) error {
	now := s.now()
	for _, r := range revoked {
		ttl := r.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := s.store.InvalidateToken(ctx, r.Key, ttl); err != nil {
			return fmt.Errorf("failed to apply revocation: %w", err)
		}
	}
	return nil
}

// Profile returns the public profile of a subject
func (s *AuthService) Profile(ctx context.Context, subject string) (core.Profile, error) {
	cred, err := s.credentials.GetCredential(ctx, subject)
	if err != nil {
		return core.Profile{}, err
	}
	return cred.Profile(), nil
}

// BeginTwoFactorSetup generates a pending TOTP secret for the subject
func (s *AuthService) BeginTwoFactorSetup(ctx context.Context, subject string) (TwoFactorSetup, error) {
	cred, err := s.credentials.GetCredential(ctx, subject)
	if err != nil {
		return TwoFactorSetup{}, err
	}
	if cred.TwoFactorEnabled {
		return TwoFactorSetup{}, core.ErrTwoFactorEnabled
	}

	secret, url, err := s.otp.Generate(cred.Email)
	if err != nil {
		return TwoFactorSetup{}, err
	}
	if err := s.credentials.UpdateTwoFactor(ctx, cred.ID, false, secret); err != nil {
		return TwoFactorSetup{}, fmt.Errorf("failed to save two-factor secret: %w", err)
	}

	return TwoFactorSetup{Secret: secret, URL: url}, nil
}

// EnableTwoFactor confirms the pending secret with a valid code
func (s *AuthService) EnableTwoFactor(ctx context.Context, subject, code string) error {
	if code == "" {
		return core.NewValidationError("otp", "one-time code is required")
	}

	cred, err := s.credentials.GetCredential(ctx, subject)
	if err != nil {
		return err
	}
	if cred.TwoFactorEnabled {
		return core.ErrTwoFactorEnabled
	}
	if cred.TwoFactorSecret == "" {
		return core.NewValidationError("otp", core.ErrTwoFactorNotSetup.Error())
	}
	if !s.otp.Validate(code, cred.TwoFactorSecret, s.now()) {
		return core.NewAuthError(core.ErrInvalidOTP)
	}

	if err := s.credentials.UpdateTwoFactor(ctx, cred.ID, true, cred.TwoFactorSecret); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}
	s.logger.Info("auth.2fa.enabled", zap.String("subject", cred.ID))
	return nil
}

// DisableTwoFactor turns the second factor off after checking a current code
func (s *AuthService) DisableTwoFactor(ctx context.Context, subject, code string) error {
	if code == "" {
		return core.NewValidationError("otp", "one-time code is required")
	}

	cred, err := s.credentials.GetCredential(ctx, subject)
	if err != nil {
		return err
	}
	if !cred.TwoFactorEnabled {
		return core.NewValidationError("otp", "two-factor authentication is not enabled")
	}
	if !s.otp.Validate(code, cred.TwoFactorSecret, s.now()) {
		return core.NewAuthError(core.ErrInvalidOTP)
	}

	if err := s.credentials.UpdateTwoFactor(ctx, cred.ID, false, ""); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	s.logger.Info("auth.2fa.disabled", zap.String("subject", cred.ID))
	return nil
}

func (s *AuthService) createChallenge(cred *core.Credential) (string, error) {
	now := s.now()
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Subject:   cred.ID,
		Email:     cred.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	token, err := s.tokenizer.ChallengeToToken(challenge)
	if err != nil {
		return "", fmt.Errorf("failed to create challenge token: %w", err)
	}
	return token, nil
}

func (s *AuthService) issueTokens(cred *core.Credential) (core.TokenPair, error) {
	now := s.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		Subject:       cred.ID,
		Email:         cred.Email,
		Name:          cred.Name,
		IssuedAt:      now,
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
		RefreshExpiry: now.Add(s.refreshTTL),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return core.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *AuthService) loginFailed(reason string) {
	metrics.RecordAuthEvent("login", false)
	s.logger.Info("auth.login.failed", zap.String("reason", reason))
}

// tokenKey indexes a literal token in the revocation set without storing it
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:])
}

func jtiKey(id string) string {
	return "jti:" + id
}
