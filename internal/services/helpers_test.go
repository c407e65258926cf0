package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"transfer-backend/internal/db"
	"transfer-backend/internal/session"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

var testChain = &utils.ChainInfo{ChainID: 1, Name: "Ethereum", Key: "mainnet", NativeSymbol: "ETH", ExplorerURL: "https://etherscan.io"}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newSession(user string) *session.Session {
	return session.New(user, testChain)
}

func newSubmission(hash string, to string) *Submission {
	return &Submission{
		Hash:        common.HexToHash(hash),
		ChainID:     testChain.ChainID,
		ChainName:   testChain.Name,
		To:          to,
		Amount:      "0.5",
		Token:       "ETH",
		Units:       big.NewInt(5e17),
		Path:        PathNative,
		SubmittedAt: time.Now().UTC(),
	}
}

// outcomeLog OutcomeRecorder that keeps everything it is given
type outcomeLog struct {
	mu       sync.Mutex
	outcomes []Outcome
	err      error
}

func (l *outcomeLog) Record(ctx context.Context, o Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
	return l.err
}

func (l *outcomeLog) all() []Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Outcome(nil), l.outcomes...)
}
