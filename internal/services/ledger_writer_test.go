package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"transfer-backend/internal/feed"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRecipients struct {
	repository.RecipientRepository
	err error
}

func (f failingRecipients) TouchFromTransfer(ctx context.Context, userAddress, recipientAddress string, at time.Time) error {
	return f.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, feed.Notification) error {
	return errors.New("broker down")
}

type ledgerFixture struct {
	transactions repository.TransactionRepository
	recipients   repository.RecipientRepository
	broker       *feed.MemoryBroker
	writer       *LedgerWriter
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	gdb := newTestDB(t)
	f := &ledgerFixture{
		transactions: repository.NewTransactionRepository(gdb),
		recipients:   repository.NewRecipientRepository(gdb),
		broker:       feed.NewMemoryBroker(),
	}
	f.writer = NewLedgerWriter(f.transactions, f.recipients, f.broker)
	return f
}

func successOutcome(user, hash, to string) Outcome {
	return Outcome{
		Session:     newSession(user),
		Submission:  newSubmission(hash, to),
		Status:      models.TransactionStatusSuccess,
		GasFee:      big.NewInt(21000000000),
		BlockNumber: 77,
		From:        user,
		ResolvedAt:  time.Now(),
	}
}

func TestLedgerWriterSuccessWritesBothCollections(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	txSub, err := f.broker.Subscribe(ctx, models.CollectionTransactions, alice)
	require.NoError(t, err)
	defer txSub.Close()
	recSub, err := f.broker.Subscribe(ctx, models.CollectionRecipients, alice)
	require.NoError(t, err)
	defer recSub.Close()

	require.NoError(t, f.writer.Record(ctx, successOutcome(alice, "0xa1", bob)))

	tx, err := f.transactions.GetByHash(ctx, alice, newSubmission("0xa1", bob).HashHex())
	require.NoError(t, err)
	assert.Equal(t, "21000000000", tx.GasFee)
	assert.Equal(t, uint64(77), tx.BlockNumber)
	assert.Equal(t, bob, tx.ToAddress)
	assert.Equal(t, "0.5", tx.Amount)

	rec, err := f.recipients.GetByAddress(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.TransactionCount)

	select {
	case sig := <-txSub.Signals():
		assert.Equal(t, feed.OpInsert, sig.Op)
	case <-time.After(time.Second):
		t.Fatal("no transactions signal")
	}
	select {
	case sig := <-recSub.Signals():
		assert.Equal(t, models.CollectionRecipients, sig.Collection)
	case <-time.After(time.Second):
		t.Fatal("no recipients signal")
	}
}

func TestLedgerWriterFailureSkipsDirectory(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	o := successOutcome(alice, "0xb1", bob)
	o.Status = models.TransactionStatusFailed
	o.From = carol // ignored for failures
	require.NoError(t, f.writer.Record(ctx, o))

	tx, err := f.transactions.GetByHash(ctx, alice, o.Submission.HashHex())
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, tx.Status)
	assert.Equal(t, "0", tx.GasFee)
	assert.Zero(t, tx.BlockNumber)
	assert.Equal(t, alice, tx.FromAddress)

	n, err := f.recipients.CountByUser(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedgerWriterDuplicateSkipsRecipientBump(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	o := successOutcome(alice, "0xc1", bob)

	require.NoError(t, f.writer.Record(ctx, o))
	require.NoError(t, f.writer.Record(ctx, o))

	n, err := f.transactions.CountByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := f.recipients.GetByAddress(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.TransactionCount)
}

func TestLedgerWriterRecipientErrorKeepsTransaction(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	writer := NewLedgerWriter(f.transactions, failingRecipients{RecipientRepository: f.recipients, err: errors.New("disk full")}, nil)

	o := successOutcome(alice, "0xd1", bob)
	err := writer.Record(ctx, o)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, o.Submission.HashHex(), perr.Hash)
	assert.Contains(t, err.Error(), "disk full")

	_, err = f.transactions.GetByHash(ctx, alice, o.Submission.HashHex())
	assert.NoError(t, err)
}

func TestLedgerWriterPublishFailureIsNotAnError(t *testing.T) {
	f := newLedgerFixture(t)
	writer := NewLedgerWriter(f.transactions, f.recipients, failingPublisher{})
	assert.NoError(t, writer.Record(context.Background(), successOutcome(alice, "0xe1", bob)))
}

func TestLedgerWriterRejectsIncompleteOutcome(t *testing.T) {
	f := newLedgerFixture(t)
	assert.Error(t, f.writer.Record(context.Background(), Outcome{}))

	o := successOutcome(alice, "0xf1", bob)
	o.Status = "pending"
	assert.Error(t, f.writer.Record(context.Background(), o))
}

func TestLedgerWriterFeedsStatsCollector(t *testing.T) {
	f := newLedgerFixture(t)
	stats := NewLedgerStatsCollector()
	f.writer.SetStatsCollector(stats)
	ctx := context.Background()

	require.NoError(t, f.writer.Record(ctx, successOutcome(alice, "0x01", bob)))
	require.NoError(t, f.writer.Record(ctx, successOutcome(alice, "0x02", carol)))
	require.NoError(t, f.writer.Record(ctx, successOutcome(alice, "0x02", carol))) // duplicate

	snap := stats.Snapshot()
	assert.Equal(t, uint64(2), snap.Recorded)
	assert.Equal(t, uint64(2), snap.UniqueCounterparties)
	assert.Equal(t, uint64(1), snap.UniqueUsers)
	assert.Equal(t, uint64(2), snap.PerChain[testChain.ChainID])
}
