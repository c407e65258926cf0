package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"transfer-backend/internal/metrics"
	"transfer-backend/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const balanceTimeout = 10 * time.Second

// MonitoringService refreshes database pool and signer balance gauges on a timer
type MonitoringService struct {
	db      *gorm.DB
	signers StaticChains

	dbInterval      time.Duration
	balanceInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitoringService creates the monitor; Start launches its loops
func NewMonitoringService(db *gorm.DB, signers StaticChains) *MonitoringService {
	return &MonitoringService{
		db:              db,
		signers:         signers,
		dbInterval:      10 * time.Second,
		balanceInterval: 60 * time.Second,
		stopCh:          make(chan struct{}),
	}
}

// SetIntervals overrides the refresh periods; zero keeps the current value
func (m *MonitoringService) SetIntervals(db, balance time.Duration) {
	if db > 0 {
		m.dbInterval = db
	}
	if balance > 0 {
		m.balanceInterval = balance
	}
}

// Start launches both refresh loops
func (m *MonitoringService) Start() {
	logrus.Info("🚀 [Monitoring] starting")

	m.wg.Add(2)
	go m.loop(m.dbInterval, m.UpdateDatabaseMetrics)
	go m.loop(m.balanceInterval, func() { m.UpdateBalances(context.Background()) })
}

// Stop ends the loops and waits for them; safe to call twice
func (m *MonitoringService) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	logrus.Info("✅ [Monitoring] stopped")
}

func (m *MonitoringService) loop(every time.Duration, tick func()) {
	defer m.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	tick()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// UpdateDatabaseMetrics publishes pool stats and a ping result
func (m *MonitoringService) UpdateDatabaseMetrics() {
	if m.db == nil {
		return
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	if err := sqlDB.Ping(); err != nil {
		logrus.WithError(err).Warn("⚠️ [Monitoring] database ping failed")
		metrics.DBConnectionStatus.Set(0)
		return
	}
	metrics.DBConnectionStatus.Set(1)
}

// UpdateBalances reads every signer's native balance into SignerBalance.
// A failing chain keeps its last value.
func (m *MonitoringService) UpdateBalances(ctx context.Context) {
	for chainID, chain := range m.signers {
		info := chain.ActiveChain()
		address := strings.ToLower(chain.ActiveAddress().Hex())

		bctx, cancel := context.WithTimeout(ctx, balanceTimeout)
		balance, err := chain.Balance(bctx)
		cancel()
		if err != nil {
			logrus.WithError(err).WithField("chain_id", chainID).Warn("⚠️ [Monitoring] balance read failed")
			continue
		}

		value, err := strconv.ParseFloat(utils.FormatUnits(balance, 18), 64)
		if err != nil {
			continue
		}
		label := strconv.FormatUint(chainID, 10)
		if info != nil && info.Key != "" {
			label = info.Key
		}
		metrics.SignerBalance.WithLabelValues(label, address).Set(value)
	}
}
