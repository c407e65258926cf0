package services

import (
	"strings"
	"sync"

	"transfer-backend/internal/metrics"
	"transfer-backend/internal/models"

	"github.com/axiomhq/hyperloglog"
)

// LedgerStatsCollector process-wide counters over recorded transactions.
// Distinct counterparties are estimated with HyperLogLog sketches.
type LedgerStatsCollector struct {
	mu sync.Mutex

	globalCounterpartiesHLL *hyperloglog.Sketch
	globalUsersHLL          *hyperloglog.Sketch
	chainCounterpartiesHLL  map[uint64]*hyperloglog.Sketch

	recorded uint64
	failed   uint64
	perChain map[uint64]uint64
}

// LedgerStatsSnapshot point-in-time view for the admin API
type LedgerStatsSnapshot struct {
	Recorded             uint64            `json:"recorded"`
	Failed               uint64            `json:"failed"`
	UniqueCounterparties uint64            `json:"unique_counterparties"`
	UniqueUsers          uint64            `json:"unique_users"`
	PerChain             map[uint64]uint64 `json:"per_chain"`
	ChainCounterparties  map[uint64]uint64 `json:"chain_counterparties"`
}

// NewLedgerStatsCollector creates an empty collector
func NewLedgerStatsCollector() *LedgerStatsCollector {
	return &LedgerStatsCollector{
		globalCounterpartiesHLL: hyperloglog.New16(),
		globalUsersHLL:          hyperloglog.New16(),
		chainCounterpartiesHLL:  make(map[uint64]*hyperloglog.Sketch),
		perChain:                make(map[uint64]uint64),
	}
}

// Observe counts one newly inserted transaction row
func (c *LedgerStatsCollector) Observe(tx *models.Transaction) {
	counterparty := []byte(strings.ToLower(tx.ToAddress))
	user := []byte(strings.ToLower(tx.UserAddress))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.recorded++
	if tx.Status == models.TransactionStatusFailed {
		c.failed++
	}
	c.perChain[tx.ChainID]++

	c.globalCounterpartiesHLL.Insert(counterparty)
	c.globalUsersHLL.Insert(user)

	sketch, ok := c.chainCounterpartiesHLL[tx.ChainID]
	if !ok {
		sketch = hyperloglog.New14()
		c.chainCounterpartiesHLL[tx.ChainID] = sketch
	}
	sketch.Insert(counterparty)

	metrics.UniqueCounterparties.Set(float64(c.globalCounterpartiesHLL.Estimate()))
}

// Snapshot copies the current counters
func (c *LedgerStatsCollector) Snapshot() LedgerStatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := LedgerStatsSnapshot{
		Recorded:             c.recorded,
		Failed:               c.failed,
		UniqueCounterparties: c.globalCounterpartiesHLL.Estimate(),
		UniqueUsers:          c.globalUsersHLL.Estimate(),
		PerChain:             make(map[uint64]uint64, len(c.perChain)),
		ChainCounterparties:  make(map[uint64]uint64, len(c.chainCounterpartiesHLL)),
	}
	for id, n := range c.perChain {
		snap.PerChain[id] = n
	}
	for id, sketch := range c.chainCounterpartiesHLL {
		snap.ChainCounterparties[id] = sketch.Estimate()
	}
	return snap
}
