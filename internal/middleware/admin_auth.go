package middleware

import (
	"net/http"

	"transfer-backend/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminTokenValidator verifies admin tokens
type AdminTokenValidator interface {
	ValidateAdminJWTToken(tokenString string) (*dto.AdminJWTClaims, error)
}

// AdminAuthMiddleware 管理员认证中间件
type AdminAuthMiddleware struct {
	logger *logrus.Logger
	tokens AdminTokenValidator
}

// NewAdminAuthMiddleware 创建管理员认证中间件
func NewAdminAuthMiddleware(logger *logrus.Logger, tokens AdminTokenValidator) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{logger: logger, tokens: tokens}
}

// RequireAdminAuth 要求管理员认证
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{"path": c.Request.URL.Path, "method": c.Request.Method, "ip": c.ClientIP()}

		token, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(fields).WithField("code", code).Warn("Admin auth failed")
			abortUnauthorized(c, "Authentication required", "admin bearer token required", code)
			return
		}

		claims, err := a.tokens.ValidateAdminJWTToken(token)
		if err != nil {
			a.logger.WithFields(fields).WithError(err).Warn("Admin auth failed - invalid token")
			abortUnauthorized(c, "Invalid or expired token", "admin token rejected", "INVALID_TOKEN")
			return
		}

		if claims.Role != "admin" {
			a.logger.WithFields(fields).WithField("role", claims.Role).Warn("Admin auth failed - insufficient permissions")
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Insufficient permissions",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}
