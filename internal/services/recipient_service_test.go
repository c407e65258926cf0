package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"transfer-backend/internal/feed"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipientServiceAddAndRemove(t *testing.T) {
	gdb := newTestDB(t)
	transactions := repository.NewTransactionRepository(gdb)
	recipients := repository.NewRecipientRepository(gdb)
	broker := feed.NewMemoryBroker()
	svc := NewRecipientService(recipients, broker)
	ctx := context.Background()
	sess := newSession(alice)

	sub, err := broker.Subscribe(ctx, models.CollectionRecipients, alice)
	require.NoError(t, err)
	defer sub.Close()

	name := "  Bob  "
	rec, err := svc.AddRecipient(ctx, sess, " "+bob+" ", &name)
	require.NoError(t, err)
	assert.Equal(t, bob, rec.RecipientAddress)
	require.NotNil(t, rec.Nickname)
	assert.Equal(t, "Bob", *rec.Nickname)

	select {
	case sig := <-sub.Signals():
		assert.Equal(t, feed.OpUpdate, sig.Op)
	case <-time.After(time.Second):
		t.Fatal("no signal for add")
	}

	// re-adding without a nickname keeps the stored one and the id
	again, err := svc.AddRecipient(ctx, sess, bob, nil)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	require.NotNil(t, again.Nickname)
	assert.Equal(t, "Bob", *again.Nickname)

	// other users cannot remove it
	assert.ErrorIs(t, svc.RemoveRecipient(ctx, newSession(carol), rec.ID), ErrRecipientNotFound)

	writer := NewLedgerWriter(transactions, recipients, nil)
	require.NoError(t, writer.Record(ctx, successOutcome(alice, "0x99", bob)))

	require.NoError(t, svc.RemoveRecipient(ctx, sess, rec.ID))
	_, err = recipients.GetByAddress(ctx, alice, bob)
	assert.Error(t, err)

	// history survives
	n, err := transactions.CountByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecipientServiceValidation(t *testing.T) {
	svc := NewRecipientService(repository.NewRecipientRepository(newTestDB(t)), nil)
	ctx := context.Background()

	_, err := svc.AddRecipient(ctx, newSession(alice), "", nil)
	assert.ErrorIs(t, err, validator.ErrMissingField)

	_, err = svc.AddRecipient(ctx, newSession(alice), "0x123", nil)
	assert.ErrorIs(t, err, validator.ErrMalformedAddress)

	long := strings.Repeat("n", 65)
	_, err = svc.AddRecipient(ctx, newSession(alice), bob, &long)
	assert.ErrorIs(t, err, validator.ErrInvalidField)
}
