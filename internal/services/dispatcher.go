package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/metrics"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/utils"
	"transfer-backend/internal/validator"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

// Submission paths
const (
	PathNative   = "native"
	PathContract = "contract"
	PathTracked  = "tracked"
)

// TransferErrorCode submission-stage rejection
type TransferErrorCode string

const (
	CodeTokenUnavailableOnChain TransferErrorCode = "TokenUnavailableOnChain"
	CodeSubmissionFailed        TransferErrorCode = "SubmissionFailed"
)

// TransferError submission-stage error; no ledger record exists for it
type TransferError struct {
	Code    TransferErrorCode
	Message string
	Err     error
}

func (e *TransferError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Is matches on code so errors.Is(err, ErrSubmissionFailed) works
func (e *TransferError) Is(target error) bool {
	t, ok := target.(*TransferError)
	return ok && t.Code == e.Code
}

var (
	ErrTokenUnavailableOnChain = &TransferError{Code: CodeTokenUnavailableOnChain}
	ErrSubmissionFailed        = &TransferError{Code: CodeSubmissionFailed}
)

// Submission a transfer accepted by the network, owned by the receipt watcher until resolved
type Submission struct {
	Hash        common.Hash
	ChainID     uint64
	ChainName   string
	From        string // lower-cased signer, may be empty for tracked hashes
	To          string // lower-cased
	Amount      string // human units
	Token       string
	Units       *big.Int
	Contract    common.Address // token contract; zero for native transfers
	Path        string
	SubmittedAt time.Time
}

// HashHex lower-case 0x hash
func (s *Submission) HashHex() string { return strings.ToLower(s.Hash.Hex()) }

// Dispatcher turns a validated request into exactly one on-chain submission
type Dispatcher struct {
	registry *tokens.Registry
	erc20    abi.ABI
	now      func() time.Time
}

// NewDispatcher creates a dispatcher over the token registry
func NewDispatcher(registry *tokens.Registry) (*Dispatcher, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Dispatcher{registry: registry, erc20: parsed, now: time.Now}, nil
}

// Dispatch submits req through signer and returns without waiting for inclusion
func (d *Dispatcher) Dispatch(ctx context.Context, signer clients.Chain, req *validator.TransferRequest) (*Submission, error) {
	chain := signer.ActiveChain()
	if chain == nil || req.Chain == nil || chain.ChainID != req.Chain.ChainID {
		return nil, &validator.Error{Code: validator.CodeNoNetwork, Message: "signer is not connected to the requested chain"}
	}

	log := logrus.WithFields(logrus.Fields{
		"chain_id": chain.ChainID,
		"token":    req.Token,
		"to":       req.ToAddress(),
		"amount":   req.Amount,
	})

	sub := &Submission{
		ChainID:   chain.ChainID,
		ChainName: chain.Name,
		From:      strings.ToLower(signer.ActiveAddress().Hex()),
		To:        req.ToAddress(),
		Amount:    req.Amount,
		Token:     req.Token,
	}

	var (
		hash common.Hash
		err  error
	)
	if d.registry.IsNative(req.Token, chain.ChainID) {
		sub.Path = PathNative
		sub.Units, err = scale(req.Amount, tokens.NativeDecimals)
		if err != nil {
			return nil, err
		}
		hash, err = signer.SubmitNativeTransfer(ctx, req.To, sub.Units)
	} else {
		sub.Path = PathContract
		desc, rerr := d.registry.Resolve(req.Token, chain.ChainID)
		if rerr != nil {
			if errors.Is(rerr, tokens.ErrNotAvailable) {
				metrics.TransferSubmissions.WithLabelValues(PathContract, "unavailable").Inc()
				log.Warn("[Dispatcher] token not available on chain")
				return nil, &TransferError{
					Code:    CodeTokenUnavailableOnChain,
					Message: fmt.Sprintf("%s is not available on %s", req.Token, chain.Name),
					Err:     rerr,
				}
			}
			return nil, rerr
		}
		sub.Units, err = scale(req.Amount, desc.Decimals)
		if err != nil {
			return nil, err
		}
		sub.Contract = desc.Address
		data, perr := d.erc20.Pack("transfer", req.To, sub.Units)
		if perr != nil {
			return nil, fmt.Errorf("pack transfer call: %w", perr)
		}
		hash, err = signer.SubmitContractCall(ctx, desc.Address, data)
	}

	if err != nil {
		metrics.TransferSubmissions.WithLabelValues(sub.Path, "failed").Inc()
		log.WithError(err).Error("❌ [Dispatcher] submission failed")
		return nil, &TransferError{Code: CodeSubmissionFailed, Message: err.Error(), Err: err}
	}

	sub.Hash = hash
	sub.SubmittedAt = d.now().UTC()
	metrics.TransferSubmissions.WithLabelValues(sub.Path, "submitted").Inc()
	log.WithFields(logrus.Fields{"tx_hash": sub.HashHex(), "path": sub.Path}).Info("✅ [Dispatcher] transfer submitted")
	return sub, nil
}

// scale converts human units exactly; too many fractional digits is an invalid amount
func scale(amount string, decimals uint8) (*big.Int, error) {
	units, err := utils.ParseUnits(amount, decimals)
	if err != nil {
		return nil, &validator.Error{Code: validator.CodeInvalidAmount, Field: "amount", Message: err.Error()}
	}
	return units, nil
}
