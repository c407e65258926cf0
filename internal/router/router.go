package router

import (
	"net/http"
	"strconv"
	"strings"

	"transfer-backend/internal/config"
	"transfer-backend/internal/handlers"
	"transfer-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, " + handlers.ChainHeader
)

// Handlers everything the route table binds
type Handlers struct {
	Auth         *handlers.AuthHandler
	AdminAuth    *handlers.AdminAuthHandler
	AdminMetrics *handlers.AdminMetricsHandler
	Health       *handlers.HealthHandler
	Chains       *handlers.ChainConfigHandler
	Transfers    *handlers.TransferHandler
	Transactions *handlers.TransactionHandler
	Recipients   *handlers.RecipientHandler
	WebSocket    *handlers.WebSocketHandler
}

// OriginAllowed reports whether origin passes the CORS list. An empty list or "*" allows all.
func OriginAllowed(cfg config.CORSConfig, origin string) bool {
	if len(cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// OriginChecker websocket upgrade origin check backed by the CORS list
func OriginChecker(cfg config.CORSConfig) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || OriginAllowed(cfg, origin)
	}
}

// corsMiddleware CORS middleware
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}
	allowAll := len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && OriginAllowed(cfg, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case origin != "":
			logrus.WithFields(logrus.Fields{
				"request_origin":  origin,
				"allowed_origins": cfg.AllowedOrigins,
				"path":            c.Request.URL.Path,
				"remote_addr":     c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// SetupRouter builds the gin engine and the route table
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(corsMiddleware(cfg.CORS))

	logger := logrus.StandardLogger()
	authMW := middleware.NewAuthMiddleware(logger, h.Auth)
	adminMW := middleware.NewAdminAuthMiddleware(logger, h.AdminAuth)
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Server.MetricsAllowedIPs)

	// ============ Check ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", h.Health.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", localhostOnly.Restrict(), gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// ============ Auth ============
	auth := api.Group("/auth", limiter.Limit())
	{
		auth.POST("/nonce", h.Auth.GenerateNonceHandler)
		auth.POST("/login", h.Auth.AuthenticateHandler)
	}

	// ============ WebSocket (token in query) ============
	api.GET("/ws", h.WebSocket.HandleWebSocket)

	// ============ Authenticated ============
	user := api.Group("", authMW.RequireAuth(), limiter.Limit())
	{
		user.GET("/chains", h.Chains.ListChainsHandler)
		user.GET("/tokens", h.Chains.ListTokensHandler)

		user.POST("/transfers", h.Transfers.SubmitTransferHandler)
		user.POST("/transactions/track", h.Transfers.TrackTransactionHandler)
		user.GET("/transactions", h.Transactions.ListTransactionsHandler)
		user.GET("/transactions/stats", h.Transactions.StatsHandler)

		user.GET("/recipients", h.Recipients.ListRecipientsHandler)
		user.POST("/recipients", h.Recipients.AddRecipientHandler)
		user.DELETE("/recipients/:id", h.Recipients.RemoveRecipientHandler)
	}

	// ============ Admin ============
	api.POST("/admin/login", limiter.Limit(), h.AdminAuth.AdminLoginHandler)
	api.POST("/admin/totp/setup", localhostOnly.Restrict(), h.AdminAuth.GenerateTOTPSecretHandler)
	admin := api.Group("/admin", adminMW.RequireAdminAuth())
	{
		admin.GET("/watchers", h.AdminMetrics.ListWatchersHandler)
		admin.DELETE("/watchers/sessions/:id", h.AdminMetrics.CancelSessionWatchersHandler)
		admin.GET("/stats", h.AdminMetrics.StatsHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message": "API endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// requestLogger logrus access log
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("🌐 request")
		} else {
			entry.Debug("🌐 request")
		}
	}
}
