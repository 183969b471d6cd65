package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/panadero/adapters/hasher"
	"github.com/layer-3/panadero/adapters/otp"
	"github.com/layer-3/panadero/adapters/store"
	"github.com/layer-3/panadero/adapters/tokenizer"
	"github.com/layer-3/panadero/api"
	"github.com/layer-3/panadero/core"
	"github.com/layer-3/panadero/service"
)

type testAPI struct {
	router *gin.Engine
	auth   *service.AuthService
	otp    *otp.TOTPProvider
}

func newTestAPI(t *testing.T, cfg RouterConfig) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	memStore := store.NewMemoryStore()
	totp := otp.NewTOTPProvider("Panadero")
	auth := service.NewAuthService(
		tokenizer.NewJWTTokenizer(key),
		memStore,
		memStore,
		hasher.NewBcryptHasher(4),
		totp,
		nil,
	)
	return &testAPI{router: SetupRouter(auth, nil, cfg), auth: auth, otp: totp}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) registerAndLogin(t *testing.T) api.LoginResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/auth/register", "", api.RegisterRequest{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/auth/login", "", api.LoginRequest{Email: "ana@x.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestRegister(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})

	w := a.do(t, http.MethodPost, "/auth/register", "", api.RegisterRequest{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var profile core.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "ana@x.com", profile.Email)
	assert.NotEmpty(t, profile.ID)
	assert.NotContains(t, w.Body.String(), "secret1")

	w = a.do(t, http.MethodPost, "/auth/register", "", api.RegisterRequest{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "email already registered")

	w = a.do(t, http.MethodPost, "/auth/register", "", api.RegisterRequest{Name: "Bo", Email: "bo@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterOverlongPassword(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})

	w := a.do(t, http.MethodPost, "/auth/register", "", api.RegisterRequest{Name: "Ana", Email: "long@x.com", Password: strings.Repeat("a", 73)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password: password must be at most 72 bytes", decodeError(t, w))
}

func TestLogin(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})
	resp := a.registerAndLogin(t)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "ana@x.com", resp.Email)
	assert.Equal(t, "Ana", resp.Name)
	require.NotNil(t, resp.User)
	assert.Equal(t, resp.ID, resp.User.ID)

	w := a.do(t, http.MethodPost, "/auth/login", "", api.LoginRequest{Email: "unknown@x.com", Password: "anything"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, w))

	w = a.do(t, http.MethodPost, "/auth/login", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyTokenAndLogout(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})
	resp := a.registerAndLogin(t)

	w := a.do(t, http.MethodPost, "/auth/verify-token", "", api.VerifyTokenRequest{Token: resp.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	var verified api.VerifyTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.Equal(t, resp.ID, verified.User.ID)
	assert.Equal(t, "ana@x.com", verified.User.Email)

	w = a.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/auth/logout", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Logging out twice is fine
	w = a.do(t, http.MethodPost, "/auth/logout", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/auth/verify-token", "", api.VerifyTokenRequest{Token: resp.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token has been blacklisted", decodeError(t, w))

	w = a.do(t, http.MethodGet, "/api/me", resp.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/auth/verify-token", "", api.VerifyTokenRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefresh(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})
	resp := a.registerAndLogin(t)

	w := a.do(t, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{RefreshToken: resp.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokens api.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEqual(t, resp.RefreshToken, tokens.RefreshToken)

	w = a.do(t, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{RefreshToken: resp.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{RefreshToken: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})
	resp := a.registerAndLogin(t)

	w := a.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/api/me", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile core.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, resp.ID, profile.ID)
}

func TestTwoFactorFlow(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})
	resp := a.registerAndLogin(t)

	w := a.do(t, http.MethodPost, "/api/2fa/setup", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var setup api.TwoFactorSetupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &setup))

	code, err := a.otp.Code(setup.Secret, time.Now())
	require.NoError(t, err)

	w = a.do(t, http.MethodPost, "/api/2fa/enable", resp.AccessToken, api.OTPRequest{OTP: code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/2fa/setup", resp.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/auth/login", "", api.LoginRequest{Email: "ana@x.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	var pending api.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.True(t, pending.RequiresTwoFactor)
	assert.Empty(t, pending.AccessToken)

	// The temporary token is not a bearer credential
	w = a.do(t, http.MethodGet, "/api/me", pending.TempToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/auth/verify-2fa", "", api.VerifyTwoFactorRequest{OTP: flip(code), TempToken: pending.TempToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/auth/verify-2fa", "", api.VerifyTwoFactorRequest{TempToken: pending.TempToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/auth/verify-2fa", "", api.VerifyTwoFactorRequest{OTP: code, TempToken: pending.TempToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var verified api.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.NotEmpty(t, verified.AccessToken)
	require.NotNil(t, verified.User)
	assert.Equal(t, "ana@x.com", verified.User.Email)

	w = a.do(t, http.MethodPost, "/api/2fa/disable", verified.AccessToken, api.OTPRequest{OTP: code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuthAliasGroup(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})

	w := a.do(t, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/api/auth/login", "", api.LoginRequest{Email: "ana@x.com", Password: "secret1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})

	w := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "panadero_http_requests_total")
}

func TestRateLimiter(t *testing.T) {
	a := newTestAPI(t, RouterConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})

	body := api.LoginRequest{Email: "nobody@x.com", Password: "x"}
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/auth/login", "", body).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/auth/login", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodPost, "/auth/login", "", body).Code)

	// Health checks are not throttled
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestCORS(t *testing.T) {
	a := newTestAPI(t, RouterConfig{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Equal(t, "abc", bearerToken("abc"))
	assert.Equal(t, "", bearerToken(""))
}

func TestRevokedTokenIsRejectedByMiddleware(t *testing.T) {
	a := newTestAPI(t, RouterConfig{})
	resp := a.registerAndLogin(t)

	// Logging out through the service is enough for the middleware to refuse the token
	require.NoError(t, a.auth.Logout(context.Background(), resp.AccessToken, ""))
	w := a.do(t, http.MethodGet, "/api/me", resp.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decodeError(t, w), "blacklisted")
}

// flip shifts every digit so the result never equals code
func flip(code string) string {
	out := []byte(code)
	for i, d := range out {
		out[i] = '0' + (d-'0'+5)%10
	}
	return string(out)
}
