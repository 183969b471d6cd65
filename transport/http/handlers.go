package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/panadero/api"
	"github.com/layer-3/panadero/core"
	"github.com/layer-3/panadero/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// Register handles account registration
func (h *AuthHandlers) Register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	profile, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Bad credentials are reported as a bad request
		h.fail(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, loginResponse(result))
}

// VerifyTwoFactor completes a login with the one-time code
func (h *AuthHandlers) VerifyTwoFactor(c *gin.Context) {
	var req api.VerifyTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	result, err := h.authService.VerifyTwoFactor(c.Request.Context(), req.OTP, req.TempToken)
	if err != nil {
		h.fail(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, loginResponse(result))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req api.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Logout revokes the bearer token and, when given, the refresh token
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req api.LogoutRequest
	// The body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	token := bearerToken(c.GetHeader("Authorization"))
	if err := h.authService.Logout(c.Request.Context(), token, req.RefreshToken); err != nil {
		h.fail(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "Logged out successfully"})
}

// VerifyToken decodes a token posted in the body
func (h *AuthHandlers) VerifyToken(c *gin.Context) {
	var req api.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	session, err := h.authService.VerifyToken(c.Request.Context(), req.Token)
	if err != nil {
		h.fail(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, api.VerifyTokenResponse{User: tokenUser(session)})
}

// Me returns the profile of the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "user not found in context"})
		return
	}

	profile, err := h.authService.Profile(c.Request.Context(), session.Subject)
	if err != nil {
		h.fail(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// TwoFactorSetup starts TOTP enrollment for the authenticated user
func (h *AuthHandlers) TwoFactorSetup(c *gin.Context) {
	session, ok := SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "user not found in context"})
		return
	}

	setup, err := h.authService.BeginTwoFactorSetup(c.Request.Context(), session.Subject)
	if err != nil {
		h.fail(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, api.TwoFactorSetupResponse{Secret: setup.Secret, URL: setup.URL})
}

// TwoFactorEnable confirms TOTP enrollment
func (h *AuthHandlers) TwoFactorEnable(c *gin.Context) {
	h.twoFactorToggle(c, h.authService.EnableTwoFactor, "Two-factor authentication enabled")
}

// TwoFactorDisable turns TOTP off
func (h *AuthHandlers) TwoFactorDisable(c *gin.Context) {
	h.twoFactorToggle(c, h.authService.DisableTwoFactor, "Two-factor authentication disabled")
}

func (h *AuthHandlers) twoFactorToggle(c *gin.Context, apply func(ctx context.Context, subject, code string) error, message string) {
	session, ok := SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "user not found in context"})
		return
	}

	var req api.OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	if err := apply(c.Request.Context(), session.Subject, req.OTP); err != nil {
		h.fail(c, err, http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: message})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps service errors to status codes; authStatus is used for AuthError
func (h *AuthHandlers) fail(c *gin.Context, err error, authStatus int) {
	switch {
	case core.IsValidation(err):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case core.IsAuth(err):
		c.JSON(authStatus, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrTwoFactorEnabled):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "not found"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal server error"})
	}
}

func loginResponse(result service.LoginResult) api.LoginResponse {
	if result.RequiresTwoFactor {
		return api.LoginResponse{RequiresTwoFactor: true, TempToken: result.TempToken}
	}
	profile := result.Profile
	return api.LoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    result.Tokens.TokenType,
		ExpiresIn:    result.Tokens.ExpiresIn,
		ID:           profile.ID,
		Name:         profile.Name,
		Email:        profile.Email,
		User:         &profile,
	}
}

func tokenUser(session *core.Session) api.TokenUser {
	return api.TokenUser{
		ID:    session.Subject,
		Email: session.Email,
		Name:  session.Name,
		Exp:   session.AccessExpiry.Unix(),
	}
}

// bearerToken strips the Bearer scheme; a bare token is accepted as is
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
