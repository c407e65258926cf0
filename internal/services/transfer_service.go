package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/session"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/validator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const balanceLookupTimeout = 5 * time.Second

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// CodeMalformedHash tracked hash is not a 32-byte hex value
const CodeMalformedHash TransferErrorCode = "MalformedHash"

// ErrSignerMismatch the session user does not own the server-side signer
var ErrSignerMismatch = errors.New("session address does not match the signer for this chain")

// Watcher accepts submissions for confirmation tracking
type Watcher interface {
	Watch(sess *session.Session, sub *Submission) bool
}

// TrackRequest a transfer the user's wallet already broadcast
type TrackRequest struct {
	Hash    string `json:"hash" binding:"required"`
	To      string `json:"to" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Token   string `json:"token" binding:"required"`
	ChainID uint64 `json:"chain_id"`
}

// TrackResult Watching is false when the hash was already being watched or resolved
type TrackResult struct {
	Submission *Submission
	Watching   bool
}

// TransferService validate -> dispatch -> watch
type TransferService struct {
	chains     ChainProvider
	registry   *tokens.Registry
	dispatcher *Dispatcher
	watcher    Watcher
	now        func() time.Time
}

// NewTransferService creates the orchestration service
func NewTransferService(chains ChainProvider, registry *tokens.Registry, dispatcher *Dispatcher, watcher Watcher) *TransferService {
	return &TransferService{
		chains:     chains,
		registry:   registry,
		dispatcher: dispatcher,
		watcher:    watcher,
		now:        time.Now,
	}
}

// Submit sends draft with the session chain's signer and hands the hash to the watcher.
// It returns as soon as the network accepted the transaction.
func (s *TransferService) Submit(ctx context.Context, sess *session.Session, draft validator.TransferDraft) (*Submission, error) {
	if sess == nil {
		return nil, &validator.Error{Code: validator.CodeNoNetwork, Message: "no active session"}
	}

	var (
		signer   clients.Chain
		chainErr error
		balance  *big.Int
	)
	if sess.Chain != nil {
		signer, chainErr = s.chains.ChainFor(sess.ChainID())
	}
	if signer != nil && s.registry.IsNative(strings.TrimSpace(draft.Token), sess.ChainID()) {
		balance = s.lookupBalance(ctx, signer)
	}

	req, err := validator.Validate(draft, validator.Environment{Chain: sess.Chain, NativeBalance: balance})
	if err != nil {
		return nil, err
	}

	if chainErr != nil {
		return nil, &TransferError{Code: CodeSubmissionFailed, Message: chainErr.Error(), Err: chainErr}
	}
	if !strings.EqualFold(signer.ActiveAddress().Hex(), sess.UserAddress) {
		return nil, ErrSignerMismatch
	}

	sub, err := s.dispatcher.Dispatch(ctx, signer, req)
	if err != nil {
		return nil, err
	}
	s.watcher.Watch(sess, sub)
	return sub, nil
}

// Track watches a hash the user's wallet submitted on its own
func (s *TransferService) Track(ctx context.Context, sess *session.Session, req TrackRequest) (*TrackResult, error) {
	if sess == nil {
		return nil, &validator.Error{Code: validator.CodeNoNetwork, Message: "no active session"}
	}
	hash := strings.TrimSpace(req.Hash)
	if !txHashPattern.MatchString(hash) {
		return nil, &TransferError{Code: CodeMalformedHash, Message: "hash must be 0x followed by 64 hex characters"}
	}

	valid, err := validator.Validate(validator.TransferDraft{
		To:      req.To,
		Amount:  req.Amount,
		Token:   req.Token,
		ChainID: req.ChainID,
	}, validator.Environment{Chain: sess.Chain})
	if err != nil {
		return nil, err
	}

	// the watcher checks the chain transaction against these units, so the token must resolve
	desc, err := s.registry.Resolve(valid.Token, valid.Chain.ChainID)
	if err != nil {
		if errors.Is(err, tokens.ErrNotAvailable) {
			return nil, &TransferError{
				Code:    CodeTokenUnavailableOnChain,
				Message: fmt.Sprintf("%s is not available on %s", valid.Token, valid.Chain.Name),
				Err:     err,
			}
		}
		return nil, err
	}
	units, err := scale(valid.Amount, desc.Decimals)
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		Hash:        common.HexToHash(hash),
		ChainID:     valid.Chain.ChainID,
		ChainName:   valid.Chain.Name,
		From:        sess.UserAddress,
		To:          valid.ToAddress(),
		Amount:      valid.Amount,
		Token:       valid.Token,
		Units:       units,
		Path:        PathTracked,
		SubmittedAt: s.now().UTC(),
	}
	if !desc.Native {
		sub.Contract = desc.Address
	}

	watching := s.watcher.Watch(sess, sub)
	logrus.WithFields(logrus.Fields{
		"user":     sess.UserAddress,
		"tx_hash":  sub.HashHex(),
		"chain":    sub.ChainID,
		"watching": watching,
	}).Info("[TransferService] tracking wallet submission")
	return &TrackResult{Submission: sub, Watching: watching}, nil
}

// lookupBalance nil on error; the validator then skips the balance check
func (s *TransferService) lookupBalance(ctx context.Context, signer clients.Chain) *big.Int {
	ctx, cancel := context.WithTimeout(ctx, balanceLookupTimeout)
	defer cancel()
	bal, err := signer.Balance(ctx)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ [TransferService] balance unavailable, skipping balance check")
		return nil
	}
	return bal
}
