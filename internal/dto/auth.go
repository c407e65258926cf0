package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// NonceResponse sign-in message for the wallet to sign
type NonceResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// AuthRequest Authentication request structure
type AuthRequest struct {
	Address   string `json:"address" binding:"required"`   // user wallet address
	Message   string `json:"message" binding:"required"`   // message returned by /auth/nonce
	Signature string `json:"signature" binding:"required"` // personal_sign signature, 0x hex
	ChainID   uint64 `json:"chain_id" binding:"required"`  // EVM chain id the session starts on
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Message   string `json:"message"`
}

// JWTClaims JWT Claims structure
type JWTClaims struct {
	UserAddress string `json:"user_address"` // lower-cased wallet address
	ChainID     uint64 `json:"chain_id"`
	jwt.RegisteredClaims
}

// ==================== Admin DTOs ====================

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminJWTClaims 管理员 JWT Claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
