package handlers

import (
	"net/http"
	"testing"
	"time"

	"transfer-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminFixture(t *testing.T) (*AdminAuthHandler, *gin.Engine, string) {
	key, err := GenerateTOTPKey("admin")
	require.NoError(t, err)
	hash, err := HashAdminPassword("correct horse")
	require.NoError(t, err)

	h := NewAdminAuthHandler(config.AdminConfig{
		Username:     "admin",
		PasswordHash: hash,
		TOTPSecret:   key.Secret(),
		JWTSecret:    "admin-secret",
	})
	r := gin.New()
	r.POST("/api/admin/login", h.AdminLoginHandler)
	r.POST("/api/admin/totp/setup", h.GenerateTOTPSecretHandler)
	return h, r, key.Secret()
}

func TestAdminLogin(t *testing.T) {
	h, r, secret := newAdminFixture(t)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	rec, body := doJSON(t, r, http.MethodPost, "/api/admin/login", map[string]string{
		"username": "admin", "password": "correct horse", "totp_code": code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	claims, err := h.ValidateAdminJWTToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, adminRole, claims.Role)

}

func TestAdminLoginRejections(t *testing.T) {
	_, r, secret := newAdminFixture(t)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	for name, req := range map[string]map[string]string{
		"wrong password": {"username": "admin", "password": "nope", "totp_code": code},
		"wrong user":     {"username": "root", "password": "correct horse", "totp_code": code},
		"wrong code":     {"username": "admin", "password": "correct horse", "totp_code": "000000"},
	} {
		t.Run(name, func(t *testing.T) {
			rec, body := doJSON(t, r, http.MethodPost, "/api/admin/login", req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, false, body["success"])
		})
	}

	// setup is closed once a secret exists
	rec, _ := doJSON(t, r, http.MethodPost, "/api/admin/totp/setup", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminLoginDisabledWithoutSecrets(t *testing.T) {
	h := NewAdminAuthHandler(config.AdminConfig{Username: "admin"})
	r := gin.New()
	r.POST("/api/admin/login", h.AdminLoginHandler)
	r.POST("/api/admin/totp/setup", h.GenerateTOTPSecretHandler)

	rec, _ := doJSON(t, r, http.MethodPost, "/api/admin/login", map[string]string{
		"username": "admin", "password": "x", "totp_code": "123456",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body := doJSON(t, r, http.MethodPost, "/api/admin/totp/setup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["secret"])
	assert.Contains(t, body["url"], "otpauth://totp/")
}
