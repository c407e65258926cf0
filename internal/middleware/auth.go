package middleware

import (
	"net/http"
	"strings"

	"transfer-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware JWT session authentication
type AuthMiddleware struct {
	logger *logrus.Logger
	tokens handlers.TokenValidator
}

// NewAuthMiddleware creates the middleware
func NewAuthMiddleware(logger *logrus.Logger, tokens handlers.TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{logger: logger, tokens: tokens}
}

func abortUnauthorized(c *gin.Context, errMsg, message, code string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
		"code":    code,
	})
	c.Abort()
}

// bearerToken returns the token and a failure code when the header is unusable
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	switch {
	case authHeader == "":
		return "", "MISSING_AUTH_HEADER"
	case !strings.HasPrefix(authHeader, "Bearer "):
		return "", "INVALID_AUTH_FORMAT"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "EMPTY_TOKEN"
	}
	return token, ""
}

// RequireAuth rejects requests without a valid session token and stores
// the user address and chain id in the gin context.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{"path": c.Request.URL.Path, "method": c.Request.Method}

		token, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(fields).WithField("code", code).Warn("JWT auth failed")
			abortUnauthorized(c, "Authentication required", "Authorization header must be in format: Bearer <token>", code)
			return
		}

		claims, err := a.tokens.ValidateJWTToken(token)
		if err != nil {
			a.logger.WithFields(fields).WithError(err).Warn("JWT auth failed - invalid token")
			abortUnauthorized(c, "Invalid or expired token", err.Error(), "INVALID_TOKEN")
			return
		}

		c.Set(handlers.ContextUserAddress, strings.ToLower(claims.UserAddress))
		c.Set(handlers.ContextChainID, claims.ChainID)

		a.logger.WithFields(fields).WithFields(logrus.Fields{
			"user_address": claims.UserAddress,
			"chain_id":     claims.ChainID,
		}).Debug("JWT auth success")

		c.Next()
	}
}
