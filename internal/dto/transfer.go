package dto

// ==================== Transfer DTOs ====================

// TransferRequest POST /api/transfers
type TransferRequest struct {
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Token   string `json:"token"`
	ChainID uint64 `json:"chain_id,omitempty"`
}

// TransferResponse accepted submission; the outcome arrives over the websocket
type TransferResponse struct {
	Success     bool   `json:"success"`
	Hash        string `json:"transaction_hash"`
	ChainID     uint64 `json:"chain_id"`
	From        string `json:"from_address,omitempty"`
	To          string `json:"to_address"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	Status      string `json:"status"`
	Watching    bool   `json:"watching"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// ==================== Recipient DTOs ====================

// AddRecipientRequest POST /api/recipients
type AddRecipientRequest struct {
	Address  string  `json:"address"`
	Nickname *string `json:"nickname,omitempty"`
}
