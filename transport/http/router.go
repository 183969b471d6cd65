package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/panadero/metrics"
	"github.com/layer-3/panadero/service"
)

// RouterConfig holds the transport settings that come from configuration
type RouterConfig struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), Metrics())
	if len(cfg.CORSOrigins) > 0 {
		router.Use(CORS(cfg.CORSOrigins))
	}

	handlers := NewAuthHandlers(authService, logger)
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Auth routes, also served under /api/auth
	for _, prefix := range []string{"/auth", "/api/auth"} {
		auth := router.Group(prefix)
		auth.Use(limiter.Handler())
		{
			auth.POST("/register", handlers.Register)
			auth.POST("/login", handlers.Login)
			auth.POST("/verify-2fa", handlers.VerifyTwoFactor)
			auth.POST("/refresh", handlers.Refresh)
			auth.POST("/logout", handlers.Logout)
			auth.POST("/verify-token", handlers.VerifyToken)
		}
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/me", handlers.Me)
		api.POST("/2fa/setup", handlers.TwoFactorSetup)
		api.POST("/2fa/enable", handlers.TwoFactorEnable)
		api.POST("/2fa/disable", handlers.TwoFactorDisable)
	}

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}
