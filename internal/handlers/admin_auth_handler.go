package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminRole     = "admin"
	adminTokenTTL = 12 * time.Hour
	adminIssuer   = "transfer-backend-admin"
)

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminAuthHandler 管理员认证处理器
type AdminAuthHandler struct {
	cfg       config.AdminConfig
	jwtSecret []byte
	now       func() time.Time
}

// NewAdminAuthHandler 创建管理员认证处理器
func NewAdminAuthHandler(cfg config.AdminConfig) *AdminAuthHandler {
	if cfg.TOTPSecret == "" || cfg.PasswordHash == "" {
		logrus.Warn("⚠️ [AdminAuth] ADMIN_TOTP_SECRET or ADMIN_PASSWORD_HASH not set, admin login is disabled")
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generate admin jwt secret: %v", err))
		}
		logrus.Warn("⚠️ [AdminAuth] ADMIN_JWT_SECRET not set, using a random per-process secret")
	}

	return &AdminAuthHandler{cfg: cfg, jwtSecret: secret, now: time.Now}
}

// AdminLoginHandler 管理员登录处理
// POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.cfg.TOTPSecret == "" || h.cfg.PasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, AdminLoginResponse{
			Success: false,
			Message: "admin login is not configured",
		})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// same message for unknown user and bad password
	if req.Username != h.cfg.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(req.Password)) != nil {
		logrus.WithFields(logrus.Fields{"username": req.Username, "ip": c.ClientIP()}).Warn("🔒 [AdminAuth] invalid credentials")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	if !totp.Validate(req.TOTPCode, h.cfg.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Success: false, Message: "Invalid TOTP code"})
		return
	}

	token, err := h.generateAdminJWTToken(req.Username)
	if err != nil {
		logError("admin.login", err)
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{Success: false, Message: "Failed to generate token"})
		return
	}

	logrus.WithField("username", req.Username).Info("✅ [AdminAuth] admin signed in")
	c.JSON(http.StatusOK, AdminLoginResponse{Success: true, Token: token, Message: "Login successful"})
}

// GenerateTOTPSecretHandler 生成 TOTP secret（仅用于初始化）
// Only available while no secret is configured.
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.cfg.TOTPSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	key, err := GenerateTOTPKey(h.cfg.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret to ADMIN_TOTP_SECRET and restart the server.",
	})
}

// GenerateTOTPKey creates a new authenticator key for account
func GenerateTOTPKey(account string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      "Transfer Backend Admin",
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}

// HashAdminPassword bcrypt hash for admin.password_hash
func HashAdminPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *AdminAuthHandler) generateAdminJWTToken(username string) (string, error) {
	now := h.now()
	claims := dto.AdminJWTClaims{
		Username: username,
		Role:     adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
			Subject:   username,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken 验证管理员 JWT token
func (h *AdminAuthHandler) ValidateAdminJWTToken(tokenString string) (*dto.AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &dto.AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	}, jwt.WithIssuer(adminIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*dto.AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
