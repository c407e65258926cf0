package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitoringUpdatesBalances(t *testing.T) {
	ok := &clients.MockChain{
		Address: common.HexToAddress(alice),
		Info:    testChain,
		BalanceFunc: func(ctx context.Context) (*big.Int, error) {
			return new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)), nil
		},
	}
	down := &clients.MockChain{
		Address: common.HexToAddress(bob),
		BalanceFunc: func(ctx context.Context) (*big.Int, error) {
			return nil, errors.New("rpc unavailable")
		},
	}

	m := NewMonitoringService(nil, StaticChains{1: ok, 99: down})
	m.UpdateBalances(context.Background())

	gauge := metrics.SignerBalance.WithLabelValues("mainnet", strings.ToLower(alice))
	assert.InDelta(t, 1.5, testutil.ToFloat64(gauge), 1e-9)
}

func TestMonitoringDatabaseMetrics(t *testing.T) {
	gdb := newTestDB(t)
	m := NewMonitoringService(gdb, nil)
	m.UpdateDatabaseMetrics()

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DBConnectionStatus))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DBConnectionPoolSize))

	sqlDB, _ := gdb.DB()
	_ = sqlDB.Close()
	m.UpdateDatabaseMetrics()
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.DBConnectionStatus))
}

func TestMonitoringStartStop(t *testing.T) {
	reads := make(chan struct{}, 8)
	chain := &clients.MockChain{
		Address: common.HexToAddress(carol),
		Info:    testChain,
		BalanceFunc: func(ctx context.Context) (*big.Int, error) {
			select {
			case reads <- struct{}{}:
			default:
			}
			return big.NewInt(0), nil
		},
	}
	m := NewMonitoringService(nil, StaticChains{1: chain})
	m.SetIntervals(time.Millisecond, 5*time.Millisecond)
	m.Start()

	select {
	case <-reads:
	case <-time.After(2 * time.Second):
		t.Fatal("balance never read")
	}
	m.Stop()
	m.Stop()
}
