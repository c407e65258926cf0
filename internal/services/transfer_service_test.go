package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/session"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/utils"
	"transfer-backend/internal/validator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type watchLog struct {
	mu   sync.Mutex
	subs []*Submission
	seen map[string]bool
}

func (w *watchLog) Watch(sess *session.Session, sub *Submission) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = map[string]bool{}
	}
	key := sess.UserAddress + sub.HashHex()
	if w.seen[key] {
		return false
	}
	w.seen[key] = true
	w.subs = append(w.subs, sub)
	return true
}

type transferFixture struct {
	chain   *clients.MockChain
	watcher *watchLog
	svc     *TransferService
	native  int
	calls   int
}

func newTransferFixture(t *testing.T) *transferFixture {
	registry, err := tokens.NewRegistry(utils.GlobalChainRegistry, nil)
	require.NoError(t, err)
	dispatcher, err := NewDispatcher(registry)
	require.NoError(t, err)

	f := &transferFixture{watcher: &watchLog{}}
	f.chain = &clients.MockChain{
		Address: common.HexToAddress(alice),
		Info:    testChain,
		BalanceFunc: func(ctx context.Context) (*big.Int, error) {
			return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), nil // 1 ETH
		},
		SubmitNativeTransferFunc: func(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
			f.native++
			return common.HexToHash("0xabc1"), nil
		},
		SubmitContractCallFunc: func(ctx context.Context, contract common.Address, data []byte) (common.Hash, error) {
			f.calls++
			return common.HexToHash("0xabc2"), nil
		},
	}
	f.svc = NewTransferService(StaticChains{1: f.chain}, registry, dispatcher, f.watcher)
	return f
}

func TestSubmitNativeTransferIsWatched(t *testing.T) {
	f := newTransferFixture(t)
	sub, err := f.svc.Submit(context.Background(), newSession(alice), validator.TransferDraft{To: bob, Amount: "0.25", Token: "ETH"})
	require.NoError(t, err)

	assert.Equal(t, PathNative, sub.Path)
	assert.Equal(t, "250000000000000000", sub.Units.String())
	assert.Equal(t, 1, f.native)
	require.Len(t, f.watcher.subs, 1)
	assert.Equal(t, sub.Hash, f.watcher.subs[0].Hash)
}

// native transfer of 2.0 with a balance of 1.0
func TestSubmitInsufficientBalance(t *testing.T) {
	f := newTransferFixture(t)
	_, err := f.svc.Submit(context.Background(), newSession(alice), validator.TransferDraft{To: bob, Amount: "2.0", Token: "ETH"})
	assert.ErrorIs(t, err, validator.ErrInsufficientBalance)
	assert.Zero(t, f.native)
	assert.Empty(t, f.watcher.subs)
}

func TestSubmitBalanceErrorSkipsCheck(t *testing.T) {
	f := newTransferFixture(t)
	f.chain.BalanceFunc = func(ctx context.Context) (*big.Int, error) { return nil, errors.New("rpc down") }
	_, err := f.svc.Submit(context.Background(), newSession(alice), validator.TransferDraft{To: bob, Amount: "2.0", Token: "ETH"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.native)
}

func TestSubmitUnavailableTokenSubmitsNothing(t *testing.T) {
	f := newTransferFixture(t)
	_, err := f.svc.Submit(context.Background(), newSession(alice), validator.TransferDraft{To: bob, Amount: "1", Token: "cUSD"})
	assert.ErrorIs(t, err, ErrTokenUnavailableOnChain)
	assert.Zero(t, f.calls)
	assert.Empty(t, f.watcher.subs)
}

func TestSubmitZeroAmountRejected(t *testing.T) {
	f := newTransferFixture(t)
	_, err := f.svc.Submit(context.Background(), newSession(alice), validator.TransferDraft{To: "0xABCDEF0123456789abcdef0123456789ABCDEF01", Amount: "0", Token: "ETH"})
	assert.ErrorIs(t, err, validator.ErrInvalidAmount)
	assert.Zero(t, f.native)
}

func TestSubmitSignerMismatch(t *testing.T) {
	f := newTransferFixture(t)
	_, err := f.svc.Submit(context.Background(), newSession(carol), validator.TransferDraft{To: bob, Amount: "1", Token: "USDC"})
	assert.ErrorIs(t, err, ErrSignerMismatch)
	assert.Zero(t, f.calls)
}

func TestSubmitWithoutChain(t *testing.T) {
	f := newTransferFixture(t)
	_, err := f.svc.Submit(context.Background(), session.New(alice, nil), validator.TransferDraft{To: bob, Amount: "1", Token: "ETH"})
	assert.ErrorIs(t, err, validator.ErrNoNetwork)
}

func TestSubmitNoSignerForChain(t *testing.T) {
	f := newTransferFixture(t)
	base, _ := utils.GlobalChainRegistry.Get(8453)
	_, err := f.svc.Submit(context.Background(), session.New(alice, base), validator.TransferDraft{To: bob, Amount: "1", Token: "USDC"})
	assert.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestTrackWalletSubmission(t *testing.T) {
	f := newTransferFixture(t)
	hash := common.HexToHash("0xab01").Hex()
	req := TrackRequest{Hash: hash, To: bob, Amount: "12.5", Token: "USDC", ChainID: 1}

	res, err := f.svc.Track(context.Background(), newSession(carol), req)
	require.NoError(t, err)
	assert.True(t, res.Watching)
	assert.Equal(t, PathTracked, res.Submission.Path)
	assert.Equal(t, carol, res.Submission.From)
	assert.Equal(t, "12500000", res.Submission.Units.String())
	assert.NotEqual(t, common.Address{}, res.Submission.Contract)

	res, err = f.svc.Track(context.Background(), newSession(carol), req)
	require.NoError(t, err)
	assert.False(t, res.Watching)
}

func TestTrackRejectsBadInput(t *testing.T) {
	f := newTransferFixture(t)
	_, err := f.svc.Track(context.Background(), newSession(alice), TrackRequest{Hash: "0x1234", To: bob, Amount: "1", Token: "ETH"})
	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeMalformedHash, terr.Code)

	hash := common.HexToHash("0x01").Hex()
	_, err = f.svc.Track(context.Background(), newSession(alice), TrackRequest{Hash: hash, To: bob, Amount: "1", Token: "ETH", ChainID: 8453})
	assert.ErrorIs(t, err, validator.ErrNoNetwork)

	_, err = f.svc.Track(context.Background(), newSession(alice), TrackRequest{Hash: hash, To: bob, Amount: "1", Token: "cUSD", ChainID: 1})
	assert.ErrorIs(t, err, ErrTokenUnavailableOnChain)
	assert.Empty(t, f.watcher.subs)
}
