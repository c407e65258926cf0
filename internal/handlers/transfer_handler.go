package handlers

import (
	"net/http"

	"transfer-backend/internal/dto"
	"transfer-backend/internal/services"
	"transfer-backend/internal/utils"
	"transfer-backend/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TransferHandler submission endpoints
type TransferHandler struct {
	transfers *services.TransferService
	chains    *utils.ChainRegistry
}

// NewTransferHandler creates the handler
func NewTransferHandler(transfers *services.TransferService, chains *utils.ChainRegistry) *TransferHandler {
	return &TransferHandler{transfers: transfers, chains: chains}
}

// SubmitTransferHandler validates, signs and sends a transfer with the chain's server-side signer
// POST /api/transfers
func (h *TransferHandler) SubmitTransferHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	var req dto.TransferRequest
	if !validateRequestBinding(c, &req, "transfer.submit") {
		return
	}

	sub, err := h.transfers.Submit(c.Request.Context(), sess, validator.TransferDraft{
		To:      req.To,
		Amount:  req.Amount,
		Token:   req.Token,
		ChainID: req.ChainID,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user":  sess.UserAddress,
			"chain": sess.ChainID(),
			"token": req.Token,
		}).WithError(err).Info("[TransferHandler] submission rejected")
		respondWithDomainError(c, "transfer.submit", err)
		return
	}

	c.JSON(http.StatusAccepted, h.response(sub, true))
}

// TrackTransactionHandler watches a transfer the wallet already broadcast
// POST /api/transactions/track
func (h *TransferHandler) TrackTransactionHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	var req services.TrackRequest
	if !validateRequestBinding(c, &req, "transfer.track") {
		return
	}

	res, err := h.transfers.Track(c.Request.Context(), sess, req)
	if err != nil {
		respondWithDomainError(c, "transfer.track", err)
		return
	}

	c.JSON(http.StatusAccepted, h.response(res.Submission, res.Watching))
}

func (h *TransferHandler) response(sub *services.Submission, watching bool) dto.TransferResponse {
	resp := dto.TransferResponse{
		Success:  true,
		Hash:     sub.HashHex(),
		ChainID:  sub.ChainID,
		From:     sub.From,
		To:       sub.To,
		Amount:   sub.Amount,
		Token:    sub.Token,
		Status:   "pending",
		Watching: watching,
	}
	if chain, ok := h.chains.Get(sub.ChainID); ok {
		resp.ExplorerURL = chain.TxURL(sub.HashHex())
	}
	return resp
}
