package services

import (
	"context"
	"math/big"
	"strings"
	"time"

	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/session"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/utils"
)

const (
	DefaultRecipientLimit     = 10
	QuickTransferLimit        = 4
	DefaultTransactionLimit   = 50
	MaxListLimit              = 500
	activityDays              = 7
	gasFeeDisplayPrecision    = 18
	statsTransactionScanLimit = 0 // whole history
)

// TransactionScope which rows a transaction listing covers
type TransactionScope string

const (
	// ScopeOwn rows recorded by the user
	ScopeOwn TransactionScope = "own"
	// ScopeInvolving rows where the address is sender or recipient
	ScopeInvolving TransactionScope = "involving"
)

// TransactionFilter listing options
type TransactionFilter struct {
	Scope TransactionScope
	Limit int
}

// TokenTotals exact per-token sums in human units
type TokenTotals map[string]string

// DailyActivity one UTC day of the activity series
type DailyActivity struct {
	Day   string      `json:"day"` // YYYY-MM-DD
	Count int         `json:"count"`
	Sent  TokenTotals `json:"sent"`
}

// Stats aggregate view over a transaction set
type Stats struct {
	TotalTransactions    int             `json:"total_transactions"`
	SentCount            int             `json:"sent_count"`
	ReceivedCount        int             `json:"received_count"`
	SuccessCount         int             `json:"success_count"`
	FailedCount          int             `json:"failed_count"`
	TotalSent            TokenTotals     `json:"total_sent"`
	TotalReceived        TokenTotals     `json:"total_received"`
	AvgGasFee            string          `json:"avg_gas_fee"` // native units
	UniqueCounterparties int             `json:"unique_counterparties"`
	Activity             []DailyActivity `json:"activity"`
}

// QueryService read-only projections over the ledger
type QueryService struct {
	transactions repository.TransactionRepository
	recipients   repository.RecipientRepository
	now          func() time.Time
}

// NewQueryService creates the query facade
func NewQueryService(transactions repository.TransactionRepository, recipients repository.RecipientRepository) *QueryService {
	return &QueryService{transactions: transactions, recipients: recipients, now: time.Now}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return utils.Min(limit, MaxListLimit)
}

// ListRecipients most recently active first
func (q *QueryService) ListRecipients(ctx context.Context, sess *session.Session, limit int) ([]*models.Recipient, error) {
	recs, err := q.recipients.ListByUser(ctx, sess.UserAddress, clampLimit(limit, DefaultRecipientLimit))
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*models.Recipient{}
	}
	return recs, nil
}

// ListTransactions most recent first
func (q *QueryService) ListTransactions(ctx context.Context, sess *session.Session, filter TransactionFilter) ([]*models.Transaction, error) {
	limit := clampLimit(filter.Limit, DefaultTransactionLimit)
	var (
		txs []*models.Transaction
		err error
	)
	if filter.Scope == ScopeInvolving {
		txs, err = q.transactions.ListInvolving(ctx, sess.UserAddress, limit)
	} else {
		txs, err = q.transactions.ListByUser(ctx, sess.UserAddress, limit)
	}
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	return txs, nil
}

// Stats loads every transaction involving the session address and aggregates it
func (q *QueryService) Stats(ctx context.Context, sess *session.Session) (Stats, error) {
	txs, err := q.transactions.ListInvolving(ctx, sess.UserAddress, statsTransactionScanLimit)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(txs, sess.UserAddress, q.now()), nil
}

// ComputeStats aggregates txs from address's point of view. An empty set yields zeros.
func ComputeStats(txs []*models.Transaction, address string, now time.Time) Stats {
	address = strings.ToLower(address)
	stats := Stats{
		TotalTransactions: len(txs),
		TotalSent:         TokenTotals{},
		TotalReceived:     TokenTotals{},
		AvgGasFee:         "0",
	}

	sent := map[string]*big.Rat{}
	received := map[string]*big.Rat{}
	gasTotal := new(big.Int)
	counterparties := map[string]struct{}{}

	today := now.UTC().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(activityDays - 1))
	days := make([]DailyActivity, activityDays)
	daySent := make([]map[string]*big.Rat, activityDays)
	for i := range days {
		days[i] = DailyActivity{Day: first.AddDate(0, 0, i).Format("2006-01-02"), Sent: TokenTotals{}}
		daySent[i] = map[string]*big.Rat{}
	}

	for _, tx := range txs {
		from := strings.ToLower(tx.FromAddress)
		to := strings.ToLower(tx.ToAddress)
		amount, err := utils.ParseDecimal(tx.Amount)
		if err != nil {
			amount = new(big.Rat)
		}

		switch tx.Status {
		case models.TransactionStatusSuccess:
			stats.SuccessCount++
		case models.TransactionStatusFailed:
			stats.FailedCount++
		}

		isSender := from == address
		if isSender {
			stats.SentCount++
			addTo(sent, tx.TokenSymbol, amount)
			counterparties[to] = struct{}{}
		}
		if to == address {
			stats.ReceivedCount++
			addTo(received, tx.TokenSymbol, amount)
			counterparties[from] = struct{}{}
		}

		if fee, ok := new(big.Int).SetString(tx.GasFee, 10); ok {
			gasTotal.Add(gasTotal, fee)
		}

		day := tx.CreatedAt.UTC().Truncate(24 * time.Hour)
		if idx := int(day.Sub(first).Hours() / 24); !day.Before(first) && idx < activityDays {
			days[idx].Count++
			if isSender {
				addTo(daySent[idx], tx.TokenSymbol, amount)
			}
		}
	}
	delete(counterparties, address)

	stats.TotalSent = totals(sent)
	stats.TotalReceived = totals(received)
	for i := range days {
		days[i].Sent = totals(daySent[i])
	}
	stats.Activity = days
	stats.UniqueCounterparties = len(counterparties)

	if len(txs) > 0 {
		avg := new(big.Rat).SetFrac(gasTotal, new(big.Int).Mul(big.NewInt(int64(len(txs))), weiPerNative()))
		stats.AvgGasFee = utils.RatString(avg, gasFeeDisplayPrecision)
	}
	return stats
}

func addTo(m map[string]*big.Rat, token string, amount *big.Rat) {
	cur, ok := m[token]
	if !ok {
		cur = new(big.Rat)
		m[token] = cur
	}
	cur.Add(cur, amount)
}

func totals(m map[string]*big.Rat) TokenTotals {
	out := make(TokenTotals, len(m))
	for token, sum := range m {
		out[token] = utils.RatString(sum, gasFeeDisplayPrecision)
	}
	return out
}

func weiPerNative() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokens.NativeDecimals)), nil)
}

// TransactionView ledger row plus its block explorer link
type TransactionView struct {
	*models.Transaction
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// NewTransactionViews attaches explorer links using each row's own chain
func NewTransactionViews(txs []*models.Transaction, chains *utils.ChainRegistry) []TransactionView {
	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		v := TransactionView{Transaction: tx}
		if chains != nil {
			if chain, ok := chains.Get(tx.ChainID); ok {
				v.ExplorerURL = chain.TxURL(tx.Hash)
			}
		}
		views = append(views, v)
	}
	return views
}
