package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"transfer-backend/internal/services"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// ChainView public chain catalog entry; RPC endpoints are not exposed
type ChainView struct {
	ChainID      uint64 `json:"chain_id"`
	Name         string `json:"name"`
	Key          string `json:"key"`
	NativeSymbol string `json:"native_symbol"`
	ExplorerURL  string `json:"explorer_url"`
	Testnet      bool   `json:"testnet"`
	Signer       string `json:"signer,omitempty"` // server-side signer address, when configured
}

// ChainConfigHandler chain catalog and token registry reads
type ChainConfigHandler struct {
	chains   *utils.ChainRegistry
	registry *tokens.Registry
	signers  services.ChainProvider
}

// NewChainConfigHandler creates the handler; signers may be nil
func NewChainConfigHandler(chains *utils.ChainRegistry, registry *tokens.Registry, signers services.ChainProvider) *ChainConfigHandler {
	return &ChainConfigHandler{chains: chains, registry: registry, signers: signers}
}

// ListChainsHandler catalog plus the session's active chain
// GET /api/chains
func (h *ChainConfigHandler) ListChainsHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}

	all := h.chains.GetAllChains()
	views := make([]ChainView, 0, len(all))
	for _, info := range all {
		v := ChainView{
			ChainID:      info.ChainID,
			Name:         info.Name,
			Key:          info.Key,
			NativeSymbol: info.NativeSymbol,
			ExplorerURL:  info.ExplorerURL,
			Testnet:      info.Testnet,
		}
		if h.signers != nil {
			if signer, err := h.signers.ChainFor(info.ChainID); err == nil {
				v.Signer = strings.ToLower(signer.ActiveAddress().Hex())
			}
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"chains":       views,
		"total":        len(views),
		"active_chain": sess.ChainID(),
	})
}

// ListTokensHandler tokens usable on a chain, the session chain by default
// GET /api/tokens?chain_id=
func (h *ChainConfigHandler) ListTokensHandler(c *gin.Context) {
	sess, ok := sessionFromContext(c, h.chains)
	if !ok {
		return
	}

	chainID := sess.ChainID()
	if raw := c.Query("chain_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, "InvalidChain", "chain_id must be a decimal chain id", nil)
			return
		}
		chainID = id
	}
	if _, ok := h.chains.Get(chainID); !ok {
		respondWithError(c, http.StatusNotFound, "UnknownChain", "chain is not in the catalog", gin.H{"chain_id": chainID})
		return
	}

	list := h.registry.ListForChain(chainID)
	c.JSON(http.StatusOK, gin.H{
		"chain_id": chainID,
		"tokens":   list,
		"total":    len(list),
	})
}
