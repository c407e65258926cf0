package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/dto"
	"transfer-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockTokens struct {
	validateFunc func(token string) (*dto.JWTClaims, error)
}

func (m *mockTokens) ValidateJWTToken(token string) (*dto.JWTClaims, error) {
	return m.validateFunc(token)
}

type mockAdminTokens struct {
	validateFunc func(token string) (*dto.AdminJWTClaims, error)
}

func (m *mockAdminTokens) ValidateAdminJWTToken(token string) (*dto.AdminJWTClaims, error) {
	return m.validateFunc(token)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func serve(r *gin.Engine, method, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestRequireAuth(t *testing.T) {
	tokens := &mockTokens{validateFunc: func(token string) (*dto.JWTClaims, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return &dto.JWTClaims{UserAddress: "0xAAAA000000000000000000000000000000000001", ChainID: 8453}, nil
	}}

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(quietLogger(), tokens).RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":  c.GetString(handlers.ContextUserAddress),
			"chain": c.GetUint64(handlers.ContextChainID),
		})
	})

	rec := serve(r, http.MethodGet, "/me", bearer("good"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"0xaaaa000000000000000000000000000000000001","chain":8453}`, rec.Body.String())

	for name, mutate := range map[string]func(*http.Request){
		"missing header": nil,
		"basic auth":     func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
		"empty bearer":   func(r *http.Request) { r.Header.Set("Authorization", "Bearer  ") },
		"invalid token":  bearer("forged"),
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(r, http.MethodGet, "/me", mutate)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAdminAuth(t *testing.T) {
	tokens := &mockAdminTokens{validateFunc: func(token string) (*dto.AdminJWTClaims, error) {
		switch token {
		case "admin":
			return &dto.AdminJWTClaims{Username: "ops", Role: "admin"}, nil
		case "viewer":
			return &dto.AdminJWTClaims{Username: "someone", Role: "viewer"}, nil
		}
		return nil, errors.New("bad token")
	}}

	r := gin.New()
	r.GET("/admin", NewAdminAuthMiddleware(quietLogger(), tokens).RequireAdminAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("admin_username"))
	})

	rec := serve(r, http.MethodGet, "/admin", bearer("admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", bearer("viewer")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", bearer("x")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", nil).Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(handlers.ContextUserAddress, user)
		}
		c.Next()
	})
	r.GET("/x", limiter.Limit(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	as := func(user string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Test-User", user) }
	}

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/x", as("a")).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/x", as("a")).Code)
	rec := serve(r, http.MethodGet, "/x", as("a"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	// separate buckets per user and for anonymous callers
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/x", as("b")).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/x", nil).Code)
}

func TestLocalhostOnly(t *testing.T) {
	r := gin.New()
	r.GET("/metrics", NewLocalhostOnly(quietLogger(), []string{"10.0.0.0/8", "192.168.1.7", "bogus/99"}).Restrict(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	from := func(addr string) func(*http.Request) {
		return func(r *http.Request) { r.RemoteAddr = addr }
	}

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", from("127.0.0.1:5000")).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", from("[::1]:5000")).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", from("10.2.3.4:5000")).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", from("192.168.1.7:5000")).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/metrics", from("192.168.1.8:5000")).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/metrics", from("8.8.8.8:5000")).Code)
}
