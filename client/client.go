// Package client talks to the panadero API on behalf of a Session. Requests
// carry the session's bearer token and recover from an expired access token
// by refreshing once and replaying the request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/panadero/api"
	"github.com/layer-3/panadero/core"
)

// APIError is returned when the server sends a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client wraps HTTP calls to the panadero API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
	logger     *zap.Logger

	// refreshMu lets one refresh run at a time; late arrivals reuse its result
	refreshMu sync.Mutex
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for refresh and logout events
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for baseURL (e.g. http://localhost:9000)
func New(baseURL string, session *Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		session:    session,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the client acts for
func (c *Client) Session() *Session {
	return c.session
}

// Do sends a JSON request through the pipeline and decodes the response into out.
// A 401 triggers one refresh and one replay; when the refresh fails the session
// is logged out and the original error is returned.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	token := c.session.AccessToken()
	err = c.send(ctx, method, path, payload, token, out)
	if !IsUnauthorized(err) {
		return err
	}

	if c.session.RefreshToken() == "" {
		// The server rejected the token and nothing can renew it
		if token != "" {
			c.clearSession()
		}
		return err
	}

	if refreshErr := c.refreshAfter(ctx, token); refreshErr != nil {
		c.logger.Info("refresh failed, logging out", zap.Error(refreshErr))
		c.clearSession()
		return err
	}

	return c.send(ctx, method, path, payload, c.session.AccessToken(), out)
}

func (c *Client) clearSession() {
	if err := c.session.Logout(); err != nil {
		c.logger.Warn("failed to clear session", zap.Error(err))
	}
}

// Get sends a GET through the pipeline
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends a POST with a JSON body through the pipeline
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Register creates an account; it does not log in
func (c *Client) Register(ctx context.Context, name, email, password string) (core.Profile, error) {
	var profile core.Profile
	err := c.call(ctx, "/auth/register", api.RegisterRequest{Name: name, Email: email, Password: password}, "", &profile)
	return profile, err
}

// Login checks the password and moves the session to Authenticated, or to
// PendingTwoFactor when the account has a second factor
func (c *Client) Login(ctx context.Context, email, password string) (api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.call(ctx, "/auth/login", api.LoginRequest{Email: email, Password: password}, "", &resp); err != nil {
		return resp, err
	}

	if resp.RequiresTwoFactor {
		return resp, c.session.BeginTwoFactor(resp.TempToken)
	}
	return resp, c.session.Authenticate(resp.Tokens(), profileOf(resp))
}

// VerifyTwoFactor completes a pending login. A wrong code leaves the session pending.
func (c *Client) VerifyTwoFactor(ctx context.Context, otp string) (api.LoginResponse, error) {
	var resp api.LoginResponse
	if c.session.State() != PendingTwoFactor {
		return resp, fmt.Errorf("no two-factor challenge pending")
	}

	req := api.VerifyTwoFactorRequest{OTP: otp, TempToken: c.session.TempToken()}
	if err := c.call(ctx, "/auth/verify-2fa", req, "", &resp); err != nil {
		return resp, err
	}
	return resp, c.session.Authenticate(resp.Tokens(), profileOf(resp))
}

// VerifyToken asks the server to decode token
func (c *Client) VerifyToken(ctx context.Context, token string) (api.TokenUser, error) {
	var resp api.VerifyTokenResponse
	err := c.call(ctx, "/auth/verify-token", api.VerifyTokenRequest{Token: token}, "", &resp)
	return resp.User, err
}

// Refresh exchanges the refresh token for a new pair. Any failure logs the session out.
func (c *Client) Refresh(ctx context.Context) (core.TokenPair, error) {
	tokens, err := c.refresh(ctx)
	if err != nil {
		c.clearSession()
		return core.TokenPair{}, err
	}
	return tokens, nil
}

// Logout revokes the tokens on the server and always clears the session.
// The server error, if any, is returned after the local teardown.
func (c *Client) Logout(ctx context.Context) error {
	var err error
	if token := c.session.AccessToken(); token != "" {
		var resp api.MessageResponse
		err = c.call(ctx, "/auth/logout", api.LogoutRequest{RefreshToken: c.session.RefreshToken()}, token, &resp)
	}

	if logoutErr := c.session.Logout(); logoutErr != nil {
		return logoutErr
	}
	return err
}

// Me returns the profile of the authenticated user
func (c *Client) Me(ctx context.Context) (core.Profile, error) {
	var profile core.Profile
	err := c.Get(ctx, "/api/me", &profile)
	return profile, err
}

// TwoFactorSetup starts TOTP enrollment for the authenticated user
func (c *Client) TwoFactorSetup(ctx context.Context) (api.TwoFactorSetupResponse, error) {
	var resp api.TwoFactorSetupResponse
	err := c.Post(ctx, "/api/2fa/setup", nil, &resp)
	return resp, err
}

// TwoFactorEnable confirms TOTP enrollment with a current code
func (c *Client) TwoFactorEnable(ctx context.Context, otp string) error {
	return c.Post(ctx, "/api/2fa/enable", api.OTPRequest{OTP: otp}, nil)
}

// TwoFactorDisable turns TOTP off with a current code
func (c *Client) TwoFactorDisable(ctx context.Context, otp string) error {
	return c.Post(ctx, "/api/2fa/disable", api.OTPRequest{OTP: otp}, nil)
}

// refreshAfter refreshes unless another request already replaced failedToken
func (c *Client) refreshAfter(ctx context.Context, failedToken string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.session.AccessToken(); current != "" && current != failedToken {
		return nil
	}
	_, err := c.refreshLocked(ctx)
	return err
}

func (c *Client) refresh(ctx context.Context) (core.TokenPair, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshLocked bypasses the pipeline so a rejected refresh is never retried
func (c *Client) refreshLocked(ctx context.Context) (core.TokenPair, error) {
	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		return core.TokenPair{}, fmt.Errorf("no refresh token")
	}

	var tokens api.TokenResponse
	if err := c.call(ctx, "/auth/refresh", api.RefreshRequest{RefreshToken: refreshToken}, "", &tokens); err != nil {
		return core.TokenPair{}, err
	}
	if err := c.session.UpdateTokens(tokens); err != nil {
		return core.TokenPair{}, err
	}
	c.logger.Debug("access token refreshed")
	return tokens, nil
}

// call posts to an auth endpoint without the refresh-and-replay step
func (c *Client) call(ctx context.Context, path string, body interface{}, token string, out interface{}) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, path, payload, token, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func encodeBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return data, nil
}

func profileOf(resp api.LoginResponse) core.Profile {
	if resp.User != nil {
		return *resp.User
	}
	return core.Profile{ID: resp.ID, Name: resp.Name, Email: resp.Email}
}
