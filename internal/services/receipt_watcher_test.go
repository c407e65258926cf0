package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/config"
	"transfer-backend/internal/feed"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hashD = "0xd000000000000000000000000000000000000000000000000000000000000001"

func watcherConfig(timeoutSeconds int) config.WatcherConfig {
	return config.WatcherConfig{ReceiptTimeout: timeoutSeconds, ResolvedCache: 16}
}

func successReceipt() *clients.Receipt {
	return &clients.Receipt{
		Status:            1,
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1e9),
		BlockNumber:       123,
		From:              common.HexToAddress(alice),
	}
}

func TestWatcherRecordsSuccessWithGasFee(t *testing.T) {
	chain := &clients.MockChain{
		Info: testChain,
		WaitForReceiptFunc: func(ctx context.Context, hash common.Hash) (*clients.Receipt, error) {
			return successReceipt(), nil
		},
	}
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))

	require.True(t, w.Watch(newSession(alice), newSubmission(hashD, bob)))
	w.Wait()

	outcomes := log.all()
	require.Len(t, outcomes, 1)
	o := outcomes[0]
	assert.Equal(t, models.TransactionStatusSuccess, o.Status)
	assert.Equal(t, "21000000000000", o.GasFee.String())
	assert.Equal(t, uint64(123), o.BlockNumber)
	assert.Equal(t, alice, o.From)
	assert.Empty(t, w.InFlight())
}

func TestWatcherRevertedReceiptIsFailure(t *testing.T) {
	chain := &clients.MockChain{
		Info: testChain,
		WaitForReceiptFunc: func(ctx context.Context, hash common.Hash) (*clients.Receipt, error) {
			r := successReceipt()
			r.Status = 0
			return r, nil
		},
	}
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))
	w.Watch(newSession(alice), newSubmission(hashD, bob))
	w.Wait()

	require.Len(t, log.all(), 1)
	o := log.all()[0]
	assert.Equal(t, models.TransactionStatusFailed, o.Status)
	assert.Equal(t, "0", o.GasFee.String())
	assert.Zero(t, o.BlockNumber)
}

func TestWatcherWaitErrorIsFailure(t *testing.T) {
	chain := &clients.MockChain{
		Info: testChain,
		WaitForReceiptFunc: func(ctx context.Context, hash common.Hash) (*clients.Receipt, error) {
			return nil, errors.New("rpc unavailable")
		},
	}
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))
	w.Watch(newSession(alice), newSubmission(hashD, bob))
	w.Wait()

	require.Len(t, log.all(), 1)
	assert.Equal(t, models.TransactionStatusFailed, log.all()[0].Status)
	assert.EqualError(t, log.all()[0].Err, "rpc unavailable")
}

func TestWatcherTimeoutIsFailure(t *testing.T) {
	chain := &clients.MockChain{Info: testChain} // never returns a receipt
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))
	w.timeout = 20 * time.Millisecond

	w.Watch(newSession(alice), newSubmission(hashD, bob))
	w.Wait()

	require.Len(t, log.all(), 1)
	assert.Equal(t, models.TransactionStatusFailed, log.all()[0].Status)
	assert.ErrorIs(t, log.all()[0].Err, ErrReceiptTimeout)
}

func TestWatcherUnknownChainIsFailure(t *testing.T) {
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{}, &log, watcherConfig(5))
	w.Watch(newSession(alice), newSubmission(hashD, bob))
	w.Wait()

	require.Len(t, log.all(), 1)
	assert.Equal(t, models.TransactionStatusFailed, log.all()[0].Status)
}

func TestWatcherDuplicateWatchIsNoop(t *testing.T) {
	chain := &clients.MockChain{Info: testChain}
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))
	sess := newSession(alice)

	require.True(t, w.Watch(sess, newSubmission(hashD, bob)))
	assert.False(t, w.Watch(sess, newSubmission(hashD, bob)))
	require.Len(t, w.InFlight(), 1)

	require.True(t, w.Deliver(common.HexToHash(hashD), successReceipt()))
	w.Wait()

	// resolved hashes are remembered
	assert.False(t, w.Watch(sess, newSubmission(hashD, bob)))
	assert.False(t, w.Deliver(common.HexToHash(hashD), successReceipt()))
	assert.Len(t, log.all(), 1)
	assert.Equal(t, int64(1), w.Recorded())
}

func TestWatcherSameHashDifferentUsers(t *testing.T) {
	chain := &clients.MockChain{Info: testChain}
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))

	require.True(t, w.Watch(newSession(alice), newSubmission(hashD, bob)))
	require.True(t, w.Watch(newSession(bob), newSubmission(hashD, bob)))
	require.True(t, w.Deliver(common.HexToHash(hashD), successReceipt()))
	w.Wait()

	assert.Len(t, log.all(), 2)
}

func TestWatcherCancelSessionRecordsNothing(t *testing.T) {
	chain := &clients.MockChain{Info: testChain}
	var log outcomeLog
	w := NewReceiptWatcher(StaticChains{1: chain}, &log, watcherConfig(5))
	sess := newSession(alice)
	other := newSession(bob)

	w.Watch(sess, newSubmission(hashD, bob))
	w.Watch(other, newSubmission("0xd2", carol))
	assert.Equal(t, 1, w.CancelSession(sess.ID))

	require.Eventually(t, func() bool { return len(w.InFlight()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, other.UserAddress, w.InFlight()[0].UserAddress)

	w.Shutdown()
	assert.Empty(t, log.all())
	assert.Empty(t, w.InFlight())
}

// duplicate confirmations end up as exactly one ledger row
func TestWatcherDuplicateDeliveryOneLedgerRow(t *testing.T) {
	gdb := newTestDB(t)
	transactions := repository.NewTransactionRepository(gdb)
	recipients := repository.NewRecipientRepository(gdb)
	writer := NewLedgerWriter(transactions, recipients, feed.NewMemoryBroker())

	chain := &clients.MockChain{Info: testChain}
	w := NewReceiptWatcher(StaticChains{1: chain}, writer, watcherConfig(5))
	sess := newSession(alice)
	sub := newSubmission(hashD, bob)

	require.True(t, w.Watch(sess, sub))
	w.Deliver(sub.Hash, successReceipt())
	w.Deliver(sub.Hash, successReceipt())
	w.Wait()

	// a second writer call with the same outcome is also absorbed
	require.NoError(t, writer.Record(context.Background(), Outcome{Session: sess, Submission: sub, Status: models.TransactionStatusSuccess, GasFee: big.NewInt(1)}))

	count, err := transactions.CountByUser(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	tx, err := transactions.GetByHash(context.Background(), alice, sub.HashHex())
	require.NoError(t, err)
	assert.Equal(t, "21000000000000", tx.GasFee)
	assert.Equal(t, models.TransactionStatusSuccess, tx.Status)

	rec, err := recipients.GetByAddress(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.TransactionCount)
}

func TestGasFeeNilPrice(t *testing.T) {
	assert.Equal(t, "0", GasFee(&clients.Receipt{GasUsed: 21000}).String())
	assert.Equal(t, "0", GasFee(nil).String())
}

func TestWatcherDefaultTimeoutMatchesConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("server:\n  port: 8080\n"))
	require.NoError(t, err)

	fromConfig := NewReceiptWatcher(StaticChains{}, &outcomeLog{}, cfg.Watcher)
	unset := NewReceiptWatcher(StaticChains{}, &outcomeLog{}, config.WatcherConfig{})
	assert.Equal(t, 10*time.Minute, fromConfig.timeout)
	assert.Equal(t, fromConfig.timeout, unset.timeout)
}
