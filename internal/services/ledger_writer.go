package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"transfer-backend/internal/feed"
	"transfer-backend/internal/metrics"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/session"

	"github.com/sirupsen/logrus"
)

// Outcome terminal result of a submission, handed to the ledger exactly once
type Outcome struct {
	Session     *session.Session
	Submission  *Submission
	Status      models.TransactionStatus
	GasFee      *big.Int // wei; zero for failures
	BlockNumber uint64
	From        string // receipt sender, lower-cased; empty when unknown
	ResolvedAt  time.Time
	Err         error // why a failure was synthesized
}

// OutcomeRecorder consumer of terminal outcomes
type OutcomeRecorder interface {
	Record(ctx context.Context, o Outcome) error
}

// PersistenceError ledger write failure. The on-chain result stands; callers log it and move on.
type PersistenceError struct {
	Hash string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger write for %s incomplete: %v", e.Hash, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LedgerWriter persists outcomes and announces the change on the feed
type LedgerWriter struct {
	transactions repository.TransactionRepository
	recipients   repository.RecipientRepository
	publisher    feed.Publisher
	stats        *LedgerStatsCollector
	now          func() time.Time
}

// NewLedgerWriter creates a writer; publisher may be nil
func NewLedgerWriter(transactions repository.TransactionRepository, recipients repository.RecipientRepository, publisher feed.Publisher) *LedgerWriter {
	if publisher == nil {
		publisher = feed.NopPublisher{}
	}
	return &LedgerWriter{
		transactions: transactions,
		recipients:   recipients,
		publisher:    publisher,
		now:          time.Now,
	}
}

// SetStatsCollector attaches the counterparty estimator
func (w *LedgerWriter) SetStatsCollector(c *LedgerStatsCollector) {
	w.stats = c
}

// Record writes the transaction row, then (on success) the recipient upsert.
// The two writes are independent: a recipient failure does not undo the transaction row.
func (w *LedgerWriter) Record(ctx context.Context, o Outcome) error {
	if o.Session == nil || o.Submission == nil {
		return fmt.Errorf("outcome without session or submission")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("outcome with non-terminal status %q", o.Status)
	}

	sub := o.Submission
	user := o.Session.UserAddress
	now := w.now().UTC()
	log := logrus.WithFields(logrus.Fields{
		"user":    user,
		"tx_hash": sub.HashHex(),
		"status":  o.Status,
		"chain":   sub.ChainID,
	})

	// failures are attributed to the session user; successes to the chain-reported sender
	from := user
	if o.Status == models.TransactionStatusSuccess && o.From != "" {
		from = o.From
	}
	gasFee := "0"
	if o.Status == models.TransactionStatusSuccess && o.GasFee != nil {
		gasFee = o.GasFee.String()
	}
	block := uint64(0)
	if o.Status == models.TransactionStatusSuccess {
		block = o.BlockNumber
	}

	tx := &models.Transaction{
		UserAddress: user,
		Hash:        sub.HashHex(),
		FromAddress: from,
		ToAddress:   sub.To,
		Amount:      sub.Amount,
		TokenSymbol: sub.Token,
		ChainID:     sub.ChainID,
		ChainName:   sub.ChainName,
		Status:      o.Status,
		GasFee:      gasFee,
		BlockNumber: block,
		CreatedAt:   now,
	}

	var errs []error

	// Step 1: transaction row
	start := time.Now()
	inserted, err := w.transactions.InsertIfAbsent(ctx, tx)
	metrics.DBQueryDuration.WithLabelValues("insert_transaction").Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.LedgerWrites.WithLabelValues(models.CollectionTransactions, "error").Inc()
		log.WithError(err).Error("❌ [LedgerWriter] failed to insert transaction")
		errs = append(errs, fmt.Errorf("insert transaction: %w", err))
	case !inserted:
		metrics.LedgerWrites.WithLabelValues(models.CollectionTransactions, "duplicate").Inc()
		log.Debug("[LedgerWriter] duplicate outcome ignored")
		return nil
	default:
		metrics.LedgerWrites.WithLabelValues(models.CollectionTransactions, "inserted").Inc()
		log.Info("✅ [LedgerWriter] transaction recorded")
		if w.stats != nil {
			w.stats.Observe(tx)
		}
		w.publish(ctx, models.CollectionTransactions, user, feed.OpInsert)
	}

	// Step 2: recipient directory, successful transfers only
	if o.Status == models.TransactionStatusSuccess {
		start = time.Now()
		err := w.recipients.TouchFromTransfer(ctx, user, sub.To, now)
		metrics.DBQueryDuration.WithLabelValues("upsert_recipient").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.LedgerWrites.WithLabelValues(models.CollectionRecipients, "error").Inc()
			log.WithError(err).Warn("⚠️ [LedgerWriter] failed to upsert recipient, transaction row kept")
			errs = append(errs, fmt.Errorf("upsert recipient: %w", err))
		} else {
			metrics.LedgerWrites.WithLabelValues(models.CollectionRecipients, "upserted").Inc()
			w.publish(ctx, models.CollectionRecipients, user, feed.OpUpdate)
		}
	}

	if len(errs) > 0 {
		return &PersistenceError{Hash: sub.HashHex(), Err: errors.Join(errs...)}
	}
	return nil
}

// publish announces a change; failures only cost observers a refresh
func (w *LedgerWriter) publish(ctx context.Context, collection, user string, op feed.Op) {
	n := feed.Notification{Collection: collection, UserAddress: user, Op: op, At: w.now().UTC()}
	if err := w.publisher.Publish(ctx, n); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"collection": collection,
			"user":       user,
		}).Warn("[LedgerWriter] failed to publish change notification")
	}
}
