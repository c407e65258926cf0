package handlers

import (
	"net/http"

	"transfer-backend/internal/dto"
	"transfer-backend/internal/services"
	"transfer-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// RecipientHandler recipient directory endpoints
type RecipientHandler struct {
	query      *services.QueryService
	recipients *services.RecipientService
	chains     *utils.ChainRegistry
}

// NewRecipientHandler creates the handler
func NewRecipientHandler(query *services.QueryService, recipients *services.RecipientService, chains *utils.ChainRegistry) *RecipientHandler {
	return &RecipientHandler{query: query, recipients: recipients, chains: chains}
}

// ListRecipientsHandler most recently used first; limit=4 is the quick-transfer view
// GET /api/recipients?limit=
func (h *RecipientHandler) ListRecipientsHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, services.DefaultRecipientLimit)
	if !ok {
		return
	}

	recs, err := h.query.ListRecipients(c.Request.Context(), sess, limit)
	if err != nil {
		respondWithDomainError(c, "recipients.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recipients": recs, "count": len(recs)})
}

// AddRecipientHandler POST /api/recipients
func (h *RecipientHandler) AddRecipientHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	var req dto.AddRecipientRequest
	if !validateRequestBinding(c, &req, "recipients.add") {
		return
	}

	rec, err := h.recipients.AddRecipient(c.Request.Context(), sess, req.Address, req.Nickname)
	if err != nil {
		respondWithDomainError(c, "recipients.add", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recipient": rec})
}

// RemoveRecipientHandler DELETE /api/recipients/:id
func (h *RecipientHandler) RemoveRecipientHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	if err := h.recipients.RemoveRecipient(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondWithDomainError(c, "recipients.remove", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
