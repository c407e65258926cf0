package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/dto"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const signInTitle = "Transfer Backend Authentication"

var nonceLine = regexp.MustCompile(`(?m)^Nonce: ([0-9a-f]{32})$`)

// ErrSignatureMismatch the signature does not recover to the claimed address
var ErrSignatureMismatch = errors.New("signature does not match address")

// TokenValidator verifies session tokens
type TokenValidator interface {
	ValidateJWTToken(tokenString string) (*dto.JWTClaims, error)
}

// AuthHandler wallet sign-in and session tokens
type AuthHandler struct {
	secret []byte
	ttl    time.Duration
	issuer string
	chains *utils.ChainRegistry
	nonces *nonceStore
	now    func() time.Time
}

// NewAuthHandler creates the handler. An empty secret gets a random one, so tokens do not outlive the process.
func NewAuthHandler(cfg config.AuthConfig, chains *utils.ChainRegistry) *AuthHandler {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generate jwt secret: %v", err))
		}
		logrus.Warn("⚠️ [Auth] auth.jwt_secret not set, using a random per-process secret")
	}
	return &AuthHandler{
		secret: secret,
		ttl:    time.Duration(cfg.TokenTTLMinutes) * time.Minute,
		issuer: cfg.Issuer,
		chains: chains,
		nonces: newNonceStore(),
		now:    time.Now,
	}
}

// GenerateNonceHandler issues a one-time sign-in message
// POST /api/auth/nonce
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		respondWithError(c, http.StatusInternalServerError, "NonceFailed", "failed to generate nonce", nil)
		return
	}

	nonceStr := hex.EncodeToString(nonce)
	issuedAt := h.now()
	h.nonces.add(nonceStr, issuedAt)

	c.JSON(http.StatusOK, dto.NonceResponse{
		Success:   true,
		Nonce:     nonceStr,
		Message:   fmt.Sprintf("%s\nNonce: %s\nTimestamp: %d", signInTitle, nonceStr, issuedAt.Unix()),
		Timestamp: issuedAt.Unix(),
	})
}

// AuthenticateHandler verifies a signed nonce message and returns a session JWT
// POST /api/auth/login
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	if !utils.IsEvmAddress(req.Address) {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: "address must be a 0x-prefixed 20 byte hex address"})
		return
	}
	if _, ok := h.chains.Get(req.ChainID); !ok {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: fmt.Sprintf("unsupported chain %d", req.ChainID)})
		return
	}

	m := nonceLine.FindStringSubmatch(req.Message)
	if m == nil || !strings.HasPrefix(req.Message, signInTitle) || !h.nonces.redeem(m[1]) {
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: "unknown or expired nonce"})
		return
	}

	if err := VerifyPersonalSignature(req.Address, req.Message, req.Signature); err != nil {
		logrus.WithFields(logrus.Fields{"address": req.Address, "chain_id": req.ChainID}).WithError(err).Warn("🔐 [Auth] signature rejected")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: "signature verification failed"})
		return
	}

	token, expiresAt, err := h.GenerateJWTToken(req.Address, req.ChainID)
	if err != nil {
		logError("auth.login", err)
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "failed to issue token"})
		return
	}

	logrus.WithFields(logrus.Fields{"address": strings.ToLower(req.Address), "chain_id": req.ChainID}).Info("✅ [Auth] user signed in")
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		Message:   "success",
	})
}

// VerifyPersonalSignature checks an EIP-191 personal_sign signature against address
func VerifyPersonalSignature(address, message, signature string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return ErrSignatureMismatch
	}
	return nil
}

// GenerateJWTToken issues a session token for address on chainID
func (h *AuthHandler) GenerateJWTToken(address string, chainID uint64) (string, time.Time, error) {
	now := h.now()
	expiresAt := now.Add(h.ttl)
	address = strings.ToLower(address)
	claims := dto.JWTClaims{
		UserAddress: address,
		ChainID:     chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    h.issuer,
			Subject:   address,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateJWTToken parses and verifies a session token
func (h *AuthHandler) ValidateJWTToken(tokenString string) (*dto.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &dto.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.secret, nil
	}, jwt.WithIssuer(h.issuer))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*dto.JWTClaims)
	if !ok || !token.Valid || !utils.IsEvmAddress(claims.UserAddress) {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
