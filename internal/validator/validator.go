// Package validator checks transfer drafts before anything is sent to a chain.
package validator

import (
	"fmt"
	"math/big"
	"strings"

	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// Code classified rejection reason
type Code string

const (
	CodeMissingField        Code = "MissingField"
	CodeMalformedAddress    Code = "MalformedAddress"
	CodeInvalidAmount       Code = "InvalidAmount"
	CodeAmountTooSmall      Code = "AmountTooSmall"
	CodeInsufficientBalance Code = "InsufficientBalance"
	CodeNoNetwork           Code = "NoNetwork"
	CodeInvalidField        Code = "InvalidField"
)

// Error validation rejection
type Error struct {
	Code    Code   `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrInvalidAmount) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrMissingField        = &Error{Code: CodeMissingField}
	ErrMalformedAddress    = &Error{Code: CodeMalformedAddress}
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount}
	ErrAmountTooSmall      = &Error{Code: CodeAmountTooSmall}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance}
	ErrNoNetwork           = &Error{Code: CodeNoNetwork}
	ErrInvalidField        = &Error{Code: CodeInvalidField}
)

// DustThreshold minimum transferable amount in the token's human unit
var DustThreshold = big.NewRat(1, 1_000_000)

// TransferDraft raw user input
type TransferDraft struct {
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Token   string `json:"token"`
	ChainID uint64 `json:"chain_id,omitempty"` // optional; must match the active chain when set
}

// Environment what the validator knows about the session at call time
type Environment struct {
	Chain *utils.ChainInfo
	// NativeBalance spendable balance in wei; nil when unknown
	NativeBalance *big.Int
}

// TransferRequest validated transfer
type TransferRequest struct {
	To     common.Address
	Amount string   // trimmed human decimal
	Value  *big.Rat // exact value of Amount
	Token  string
	Chain  *utils.ChainInfo
	Native bool
}

// ToAddress lower-cased hex form of To
func (r *TransferRequest) ToAddress() string {
	return strings.ToLower(r.To.Hex())
}

func reject(code Code, field, format string, args ...interface{}) *Error {
	return &Error{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate runs the checks in order and returns the first failure.
func Validate(draft TransferDraft, env Environment) (*TransferRequest, error) {
	to := strings.TrimSpace(draft.To)
	amount := strings.TrimSpace(draft.Amount)
	token := strings.TrimSpace(draft.Token)

	switch {
	case to == "":
		return nil, reject(CodeMissingField, "to", "recipient address is required")
	case amount == "":
		return nil, reject(CodeMissingField, "amount", "amount is required")
	case token == "":
		return nil, reject(CodeMissingField, "token", "token is required")
	}

	if !utils.IsEvmAddress(to) {
		return nil, reject(CodeMalformedAddress, "to", "%q is not a 0x-prefixed 40 hex character address", to)
	}

	value, err := utils.ParseDecimal(amount)
	if err != nil || value.Sign() <= 0 {
		return nil, reject(CodeInvalidAmount, "amount", "%q is not a positive decimal number", amount)
	}

	if value.Cmp(DustThreshold) < 0 {
		return nil, reject(CodeAmountTooSmall, "amount", "minimum amount is %s", DustThreshold.FloatString(6))
	}

	native := env.Chain != nil && env.Chain.NativeSymbol == token
	if native && env.NativeBalance != nil {
		balance := new(big.Rat).SetFrac(env.NativeBalance, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
		if value.Cmp(balance) > 0 {
			return nil, reject(CodeInsufficientBalance, "amount", "amount %s exceeds balance %s %s",
				amount, utils.FormatUnits(env.NativeBalance, 18), token)
		}
	}

	if env.Chain == nil {
		return nil, reject(CodeNoNetwork, "chain_id", "no active network")
	}
	if draft.ChainID != 0 && draft.ChainID != env.Chain.ChainID {
		return nil, reject(CodeNoNetwork, "chain_id", "active network is %d, request targets %d", env.Chain.ChainID, draft.ChainID)
	}

	return &TransferRequest{
		To:     common.HexToAddress(to),
		Amount: amount,
		Value:  value,
		Token:  token,
		Chain:  env.Chain,
		Native: native,
	}, nil
}
