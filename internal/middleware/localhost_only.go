package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly middleware - only allow localhost or whitelisted IPs access
type LocalhostOnly struct {
	logger     *logrus.Logger
	allowedIPs []string // IP addresses or CIDR ranges
}

// NewLocalhostOnly creates the middleware
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	return &LocalhostOnly{logger: logger, allowedIPs: allowedIPs}
}

// Restrict restrict access to localhost and the allowed list
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if l.isAllowedIP(clientIP) {
			c.Next()
			return
		}

		// direct local connection behind a misconfigured proxy list
		remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		if remoteIP != clientIP && isLocalhost(remoteIP) {
			c.Next()
			return
		}

		l.logger.WithFields(logrus.Fields{
			"client_ip": clientIP,
			"remote_ip": remoteIP,
			"path":      c.Request.URL.Path,
		}).Warn("Reject non-whitelisted access to restricted endpoint")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "This endpoint is only accessible from allowed IP addresses",
			"code":    "IP_NOT_ALLOWED",
		})
	}
}

// isLocalhost Check if IP is localhost
func isLocalhost(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ip == "localhost"
	}
	return parsedIP.IsLoopback()
}

// isAllowedIP Check if IP is in the whitelist (supports CIDR)
func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	if isLocalhost(ip) {
		return true
	}
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, allowed := range l.allowedIPs {
		allowed = strings.TrimSpace(allowed)
		if strings.Contains(allowed, "/") {
			_, ipNet, err := net.ParseCIDR(allowed)
			if err != nil {
				l.logger.WithField("allowed", allowed).WithError(err).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			if ipNet.Contains(parsedIP) {
				return true
			}
		} else if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(parsedIP) {
			return true
		}
	}
	return false
}
