package handlers

import (
	"net/http"

	"transfer-backend/internal/services"
	"transfer-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// TransactionHandler ledger reads
type TransactionHandler struct {
	query  *services.QueryService
	chains *utils.ChainRegistry
}

// NewTransactionHandler creates the handler
func NewTransactionHandler(query *services.QueryService, chains *utils.ChainRegistry) *TransactionHandler {
	return &TransactionHandler{query: query, chains: chains}
}

// ListTransactionsHandler newest first, with explorer links
// GET /api/transactions?scope=involving|own&limit=
func (h *TransactionHandler) ListTransactionsHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, services.DefaultTransactionLimit)
	if !ok {
		return
	}

	scope := services.TransactionScope(c.DefaultQuery("scope", string(services.ScopeInvolving)))
	if scope != services.ScopeInvolving && scope != services.ScopeOwn {
		respondWithError(c, http.StatusBadRequest, "InvalidScope", "scope must be involving or own", nil)
		return
	}

	txs, err := h.query.ListTransactions(c.Request.Context(), sess, services.TransactionFilter{Scope: scope, Limit: limit})
	if err != nil {
		respondWithDomainError(c, "transactions.list", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": services.NewTransactionViews(txs, h.chains),
		"count":        len(txs),
	})
}

// StatsHandler aggregates over every transaction involving the user
// GET /api/transactions/stats
func (h *TransactionHandler) StatsHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}
	stats, err := h.query.Stats(c.Request.Context(), sess)
	if err != nil {
		respondWithDomainError(c, "transactions.stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
