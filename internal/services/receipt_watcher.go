package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/config"
	"transfer-backend/internal/metrics"
	"transfer-backend/internal/models"
	"transfer-backend/internal/session"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	defaultReceiptTimeout = config.DefaultReceiptTimeout * time.Second
	defaultResolvedCache  = 4096
	recordTimeout         = 15 * time.Second
)

// ErrReceiptTimeout no receipt arrived within the watch window
var ErrReceiptTimeout = errors.New("timed out waiting for receipt")

// ErrTrackedMismatch the chain transaction behind a tracked hash is not the transfer the user claimed
var ErrTrackedMismatch = errors.New("tracked transaction does not match the claimed transfer")

var erc20Transfer = func() abi.Method {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(err)
	}
	return parsed.Methods["transfer"]
}()

// ChainProvider chain context lookup by chain id
type ChainProvider interface {
	ChainFor(chainID uint64) (clients.Chain, error)
}

// StaticChains fixed chain contexts, keyed by chain id
type StaticChains map[uint64]clients.Chain

// ChainFor implements ChainProvider
func (s StaticChains) ChainFor(chainID uint64) (clients.Chain, error) {
	c, ok := s[chainID]
	if !ok || c == nil {
		return nil, fmt.Errorf("no chain context for chain %d", chainID)
	}
	return c, nil
}

// WatchedSubmission admin view of an in-flight task
type WatchedSubmission struct {
	SessionID   string    `json:"session_id"`
	UserAddress string    `json:"user_address"`
	Hash        string    `json:"transaction_hash"`
	ChainID     uint64    `json:"chain_id"`
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	Token       string    `json:"token"`
	Path        string    `json:"path"`
	StartedAt   time.Time `json:"started_at"`
}

type watchTask struct {
	key       string
	sess      *session.Session
	sub       *Submission
	cancel    context.CancelFunc
	delivered chan *clients.Receipt
	abandoned *atomic.Bool
	startedAt time.Time
}

// ReceiptWatcher owns submissions from dispatch until their outcome is recorded
type ReceiptWatcher struct {
	chains   ChainProvider
	recorder OutcomeRecorder
	timeout  time.Duration

	mu       sync.Mutex
	tasks    map[string]*watchTask
	resolved *lru.Cache

	inFlight *atomic.Int64
	recorded *atomic.Int64
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewReceiptWatcher creates a watcher
func NewReceiptWatcher(chains ChainProvider, recorder OutcomeRecorder, cfg config.WatcherConfig) *ReceiptWatcher {
	timeout := cfg.ReceiptTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}
	size := cfg.ResolvedCache
	if size <= 0 {
		size = defaultResolvedCache
	}
	return &ReceiptWatcher{
		chains:   chains,
		recorder: recorder,
		timeout:  timeout,
		tasks:    make(map[string]*watchTask),
		resolved: lru.New(size),
		inFlight: atomic.NewInt64(0),
		recorded: atomic.NewInt64(0),
		now:      time.Now,
	}
}

func watchKey(user, hash string) string {
	return strings.ToLower(user) + ":" + strings.ToLower(hash)
}

// Watch starts waiting for sub on behalf of sess. Returns false when the
// hash is already being watched or was resolved for this user.
func (w *ReceiptWatcher) Watch(sess *session.Session, sub *Submission) bool {
	if sess == nil || sub == nil {
		return false
	}
	key := watchKey(sess.UserAddress, sub.HashHex())

	w.mu.Lock()
	if _, ok := w.tasks[key]; ok {
		w.mu.Unlock()
		return false
	}
	if _, ok := w.resolved.Get(key); ok {
		w.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	t := &watchTask{
		key:       key,
		sess:      sess,
		sub:       sub,
		cancel:    cancel,
		delivered: make(chan *clients.Receipt, 1),
		abandoned: atomic.NewBool(false),
		startedAt: w.now(),
	}
	w.tasks[key] = t
	w.wg.Add(1)
	w.mu.Unlock()

	w.inFlight.Inc()
	metrics.WatcherInFlight.Inc()
	logrus.WithFields(logrus.Fields{
		"user":    sess.UserAddress,
		"tx_hash": sub.HashHex(),
		"chain":   sub.ChainID,
		"timeout": w.timeout.String(),
	}).Info("👀 [ReceiptWatcher] watching submission")

	go w.run(ctx, t)
	return true
}

// Deliver hands an externally observed receipt to every task waiting on hash.
// Unknown or already resolved hashes are ignored.
func (w *ReceiptWatcher) Deliver(hash common.Hash, receipt *clients.Receipt) bool {
	if receipt == nil {
		return false
	}
	suffix := ":" + strings.ToLower(hash.Hex())

	w.mu.Lock()
	defer w.mu.Unlock()
	delivered := false
	for key, t := range w.tasks {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		select {
		case t.delivered <- receipt:
			delivered = true
		default:
			// a confirmation is already queued
		}
	}
	return delivered
}

// CancelSession abandons every in-flight task owned by the session; nothing is recorded for them
func (w *ReceiptWatcher) CancelSession(sessionID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, t := range w.tasks {
		if t.sess.ID != sessionID {
			continue
		}
		t.abandoned.Store(true)
		t.cancel()
		n++
	}
	if n > 0 {
		logrus.WithFields(logrus.Fields{"session_id": sessionID, "tasks": n}).Warn("[ReceiptWatcher] session cancelled")
	}
	return n
}

// Shutdown abandons all in-flight tasks and waits for their goroutines
func (w *ReceiptWatcher) Shutdown() {
	w.mu.Lock()
	for _, t := range w.tasks {
		t.abandoned.Store(true)
		t.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
	logrus.Info("🛑 [ReceiptWatcher] stopped")
}

// Wait blocks until every started task has finished
func (w *ReceiptWatcher) Wait() {
	w.wg.Wait()
}

// InFlight lists tasks still waiting for a receipt, oldest first
func (w *ReceiptWatcher) InFlight() []WatchedSubmission {
	w.mu.Lock()
	out := make([]WatchedSubmission, 0, len(w.tasks))
	for _, t := range w.tasks {
		out = append(out, WatchedSubmission{
			SessionID:   t.sess.ID,
			UserAddress: t.sess.UserAddress,
			Hash:        t.sub.HashHex(),
			ChainID:     t.sub.ChainID,
			To:          t.sub.To,
			Amount:      t.sub.Amount,
			Token:       t.sub.Token,
			Path:        t.sub.Path,
			StartedAt:   t.startedAt,
		})
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Recorded number of outcomes handed to the recorder
func (w *ReceiptWatcher) Recorded() int64 {
	return w.recorded.Load()
}

func (w *ReceiptWatcher) run(ctx context.Context, t *watchTask) {
	defer w.wg.Done()
	defer t.cancel()

	receipt, waitErr := w.wait(ctx, t)

	w.mu.Lock()
	delete(w.tasks, t.key)
	abandoned := t.abandoned.Load()
	if !abandoned {
		w.resolved.Add(t.key, struct{}{})
	}
	w.mu.Unlock()

	w.inFlight.Dec()
	metrics.WatcherInFlight.Dec()

	log := logrus.WithFields(logrus.Fields{
		"user":    t.sess.UserAddress,
		"tx_hash": t.sub.HashHex(),
		"chain":   t.sub.ChainID,
	})
	if abandoned {
		metrics.WatcherOutcomes.WithLabelValues("abandoned").Inc()
		log.Warn("[ReceiptWatcher] watch abandoned, no outcome recorded")
		return
	}

	metrics.WatcherWaitDuration.Observe(time.Since(t.startedAt).Seconds())
	if t.sub.Path == PathTracked {
		if err := verifyTracked(t.sess, t.sub, receipt); err != nil {
			metrics.WatcherOutcomes.WithLabelValues("rejected").Inc()
			log.WithError(err).Warn("🚫 [ReceiptWatcher] tracked hash rejected, no outcome recorded")
			return
		}
	}
	outcome := buildOutcome(t.sess, t.sub, receipt, waitErr, w.now().UTC())
	metrics.WatcherOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status == models.TransactionStatusSuccess {
		log.WithFields(logrus.Fields{"block": outcome.BlockNumber, "gas_fee": outcome.GasFee.String()}).Info("✅ [ReceiptWatcher] transfer confirmed")
	} else {
		log.WithError(outcome.Err).Warn("❌ [ReceiptWatcher] transfer failed")
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	w.recorded.Inc()
	if err := w.recorder.Record(recordCtx, outcome); err != nil {
		log.WithError(err).Error("⚠️ [ReceiptWatcher] outcome not fully persisted")
	}
}

// wait returns the first of: chain receipt, delivered receipt, context end
func (w *ReceiptWatcher) wait(ctx context.Context, t *watchTask) (*clients.Receipt, error) {
	chain, err := w.chains.ChainFor(t.sub.ChainID)
	if err != nil {
		return nil, err
	}

	type result struct {
		receipt *clients.Receipt
		err     error
	}
	results := make(chan result, 1)
	go func() {
		r, err := chain.WaitForReceipt(ctx, t.sub.Hash)
		results <- result{r, err}
	}()

	select {
	case r := <-results:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrReceiptTimeout
		}
		return r.receipt, r.err
	case r := <-t.delivered:
		return r, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrReceiptTimeout
		}
		return nil, ctx.Err()
	}
}

func buildOutcome(sess *session.Session, sub *Submission, receipt *clients.Receipt, waitErr error, at time.Time) Outcome {
	o := Outcome{
		Session:    sess,
		Submission: sub,
		Status:     models.TransactionStatusFailed,
		GasFee:     big.NewInt(0),
		ResolvedAt: at,
	}
	switch {
	case waitErr != nil:
		o.Err = waitErr
	case receipt == nil:
		o.Err = errors.New("no receipt")
	case !receipt.Succeeded():
		o.Err = errors.New("transaction reverted")
	default:
		o.Status = models.TransactionStatusSuccess
		o.GasFee = GasFee(receipt)
		o.BlockNumber = receipt.BlockNumber
		if receipt.From != (common.Address{}) {
			o.From = strings.ToLower(receipt.From.Hex())
		}
	}
	return o
}

// verifyTracked checks a wallet-submitted hash against the chain before anything is recorded.
// Any receipt must come from the session user; a success must also carry the claimed
// recipient and amount. A missing receipt is left to buildOutcome.
func verifyTracked(sess *session.Session, sub *Submission, r *clients.Receipt) error {
	if r == nil {
		return nil
	}
	if r.From == (common.Address{}) {
		return fmt.Errorf("%w: sender unknown", ErrTrackedMismatch)
	}
	if !strings.EqualFold(r.From.Hex(), sess.UserAddress) {
		return fmt.Errorf("%w: sent by %s", ErrTrackedMismatch, strings.ToLower(r.From.Hex()))
	}
	if !r.Succeeded() {
		return nil
	}
	if r.To == nil || sub.Units == nil {
		return fmt.Errorf("%w: transaction body unavailable", ErrTrackedMismatch)
	}

	to, value := *r.To, r.Value
	if sub.Contract != (common.Address{}) {
		if to != sub.Contract {
			return fmt.Errorf("%w: called %s, not the %s contract", ErrTrackedMismatch, strings.ToLower(to.Hex()), sub.Token)
		}
		if len(r.Input) < 4 || !bytes.Equal(r.Input[:4], erc20Transfer.ID) {
			return fmt.Errorf("%w: not a token transfer call", ErrTrackedMismatch)
		}
		args, err := erc20Transfer.Inputs.Unpack(r.Input[4:])
		if err != nil || len(args) != 2 {
			return fmt.Errorf("%w: undecodable transfer input", ErrTrackedMismatch)
		}
		var ok bool
		if to, ok = args[0].(common.Address); !ok {
			return fmt.Errorf("%w: undecodable transfer input", ErrTrackedMismatch)
		}
		if value, ok = args[1].(*big.Int); !ok {
			return fmt.Errorf("%w: undecodable transfer input", ErrTrackedMismatch)
		}
	}

	if !strings.EqualFold(to.Hex(), sub.To) {
		return fmt.Errorf("%w: recipient is %s", ErrTrackedMismatch, strings.ToLower(to.Hex()))
	}
	if value == nil || value.Cmp(sub.Units) != 0 {
		return fmt.Errorf("%w: amount differs", ErrTrackedMismatch)
	}
	return nil
}

// GasFee gasUsed × effectiveGasPrice in wei; a missing price counts as zero
func GasFee(r *clients.Receipt) *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
