// Package handlers provides the gin HTTP handlers
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"transfer-backend/internal/services"
	"transfer-backend/internal/session"
	"transfer-backend/internal/utils"
	"transfer-backend/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context keys set by the auth middleware
const (
	ContextUserAddress = "user_address"
	ContextChainID     = "chain_id"
	ContextSessionID   = "session_id"
)

// ChainHeader overrides the JWT chain for a single request
const ChainHeader = "X-Chain-ID"

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// respondWithDomainError maps service errors to status codes
func respondWithDomainError(c *gin.Context, operation string, err error) {
	var verr *validator.Error
	var terr *services.TransferError

	switch {
	case errors.As(err, &verr):
		respondWithError(c, http.StatusBadRequest, string(verr.Code), verr.Message, gin.H{"field": verr.Field})
	case errors.As(err, &terr):
		status := http.StatusInternalServerError
		switch terr.Code {
		case services.CodeTokenUnavailableOnChain:
			status = http.StatusUnprocessableEntity
		case services.CodeSubmissionFailed:
			status = http.StatusBadGateway
		case services.CodeMalformedHash:
			status = http.StatusBadRequest
		}
		respondWithError(c, status, string(terr.Code), terr.Error(), nil)
	case errors.Is(err, services.ErrSignerMismatch):
		respondWithError(c, http.StatusForbidden, "SignerMismatch", err.Error(), nil)
	case errors.Is(err, services.ErrRecipientNotFound):
		respondWithError(c, http.StatusNotFound, "NotFound", err.Error(), nil)
	default:
		logError(operation, err)
		respondWithError(c, http.StatusInternalServerError, "InternalError", "internal error", nil)
	}
}

// sessionFromContext builds the request's session from the auth middleware values.
// The X-Chain-ID header selects another chain for this request only.
func sessionFromContext(c *gin.Context, chains *utils.ChainRegistry) (*session.Session, bool) {
	user := c.GetString(ContextUserAddress)
	if user == "" {
		respondWithError(c, http.StatusUnauthorized, "Unauthorized", "authentication required", nil)
		return nil, false
	}

	chainID := c.GetUint64(ContextChainID)
	if raw := strings.TrimSpace(c.GetHeader(ChainHeader)); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, "InvalidChain", "X-Chain-ID must be a decimal chain id", nil)
			return nil, false
		}
		chainID = id
	}

	// unknown chains yield a session without a chain; operations reject it with NoNetwork
	chain, _ := chains.Get(chainID)
	sess := session.New(user, chain)
	c.Set(ContextSessionID, sess.ID)
	return sess, true
}

// parseLimit reads ?limit=, returning def when absent
func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondWithError(c, http.StatusBadRequest, "InvalidLimit", "limit must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}

// validateRequestBinding unified request binding validation function
func validateRequestBinding(c *gin.Context, req interface{}, operation string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logrus.WithError(err).WithField("operation", operation).Debug("request parameter validation failed")
		respondWithError(c, http.StatusBadRequest, "Invalid request parameters", err.Error(), nil)
		return false
	}
	return true
}

// logError unified error logging function
func logError(operation string, err error) {
	logrus.WithError(err).WithField("operation", operation).Error("❌ request failed")
}
