package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"transfer-backend/internal/db"
	"transfer-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

// NewTestDB opens a private in-memory sqlite database with the ledger schema.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type RepositorySuite struct {
	suite.Suite
	ctx          context.Context
	transactions TransactionRepository
	recipients   RecipientRepository
	base         time.Time
}

func (s *RepositorySuite) SetupTest() {
	gdb := NewTestDB(s.T())
	s.ctx = context.Background()
	s.transactions = NewTransactionRepository(gdb)
	s.recipients = NewRecipientRepository(gdb)
	s.base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *RepositorySuite) newTx(user, from, to, hash string, at time.Time) *models.Transaction {
	return &models.Transaction{
		UserAddress: user,
		Hash:        hash,
		FromAddress: from,
		ToAddress:   to,
		Amount:      "1.5",
		TokenSymbol: "ETH",
		ChainID:     8453,
		ChainName:   "Base",
		Status:      models.TransactionStatusSuccess,
		GasFee:      "21000000000",
		CreatedAt:   at,
	}
}

func (s *RepositorySuite) TestInsertIfAbsentIsIdempotent() {
	tx := s.newTx(alice, alice, bob, "0xaaa", s.base)

	inserted, err := s.transactions.InsertIfAbsent(s.ctx, tx)
	s.Require().NoError(err)
	s.True(inserted)

	dup := s.newTx(alice, alice, bob, "0xaaa", s.base.Add(time.Minute))
	dup.Amount = "9"
	inserted, err = s.transactions.InsertIfAbsent(s.ctx, dup)
	s.Require().NoError(err)
	s.False(inserted)

	count, err := s.transactions.CountByUser(s.ctx, alice)
	s.Require().NoError(err)
	s.EqualValues(1, count)

	stored, err := s.transactions.GetByHash(s.ctx, alice, "0xaaa")
	s.Require().NoError(err)
	s.Equal("1.5", stored.Amount)
}

func (s *RepositorySuite) TestSameHashDifferentUsers() {
	_, err := s.transactions.InsertIfAbsent(s.ctx, s.newTx(alice, alice, bob, "0xbbb", s.base))
	s.Require().NoError(err)
	inserted, err := s.transactions.InsertIfAbsent(s.ctx, s.newTx(bob, alice, bob, "0xbbb", s.base))
	s.Require().NoError(err)
	s.True(inserted)
}

func (s *RepositorySuite) TestAddressesAreLowerCased() {
	upper := "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD"
	_, err := s.transactions.InsertIfAbsent(s.ctx, s.newTx(upper, upper, bob, "0xccc", s.base))
	s.Require().NoError(err)

	txs, err := s.transactions.ListByUser(s.ctx, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", 0)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", txs[0].FromAddress)
}

func (s *RepositorySuite) TestListOrdering() {
	for i, hash := range []string{"0x01", "0x02", "0x03"} {
		_, err := s.transactions.InsertIfAbsent(s.ctx, s.newTx(alice, alice, bob, hash, s.base.Add(time.Duration(i)*time.Hour)))
		s.Require().NoError(err)
	}
	txs, err := s.transactions.ListByUser(s.ctx, alice, 2)
	s.Require().NoError(err)
	s.Require().Len(txs, 2)
	s.Equal("0x03", txs[0].Hash)
	s.Equal("0x02", txs[1].Hash)
}

func (s *RepositorySuite) TestListInvolving() {
	_, err := s.transactions.InsertIfAbsent(s.ctx, s.newTx(alice, alice, bob, "0x10", s.base))
	s.Require().NoError(err)
	_, err = s.transactions.InsertIfAbsent(s.ctx, s.newTx(carol, carol, alice, "0x11", s.base.Add(time.Hour)))
	s.Require().NoError(err)
	_, err = s.transactions.InsertIfAbsent(s.ctx, s.newTx(carol, carol, bob, "0x12", s.base.Add(2*time.Hour)))
	s.Require().NoError(err)

	txs, err := s.transactions.ListInvolving(s.ctx, alice, 0)
	s.Require().NoError(err)
	s.Require().Len(txs, 2)
	s.Equal("0x11", txs[0].Hash)
	s.Equal("0x10", txs[1].Hash)
}

func (s *RepositorySuite) TestTouchFromTransferKeepsCreatedAt() {
	s.Require().NoError(s.recipients.TouchFromTransfer(s.ctx, alice, bob, s.base))
	s.Require().NoError(s.recipients.TouchFromTransfer(s.ctx, alice, bob, s.base.Add(time.Hour)))

	rec, err := s.recipients.GetByAddress(s.ctx, alice, bob)
	s.Require().NoError(err)
	s.EqualValues(2, rec.TransactionCount)
	s.True(rec.CreatedAt.Equal(s.base), "created_at must survive upserts")
	s.True(rec.LastTransactionAt.Equal(s.base.Add(time.Hour)))

	count, err := s.recipients.CountByUser(s.ctx, alice)
	s.Require().NoError(err)
	s.EqualValues(1, count)
}

func (s *RepositorySuite) TestSaveNickname() {
	nick := "Bob"
	rec, err := s.recipients.Save(s.ctx, alice, bob, &nick, s.base)
	s.Require().NoError(err)
	s.Require().NotNil(rec.Nickname)
	s.Equal("Bob", *rec.Nickname)
	firstID := rec.ID

	again, err := s.recipients.Save(s.ctx, alice, bob, nil, s.base.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(firstID, again.ID)
	s.Require().NotNil(again.Nickname)
	s.Equal("Bob", *again.Nickname)
	s.True(again.CreatedAt.Equal(s.base))
	s.True(again.LastTransactionAt.Equal(s.base.Add(time.Hour)))
}

func (s *RepositorySuite) TestListRecipientsByRecency() {
	s.Require().NoError(s.recipients.TouchFromTransfer(s.ctx, alice, bob, s.base))
	s.Require().NoError(s.recipients.TouchFromTransfer(s.ctx, alice, carol, s.base.Add(time.Hour)))
	s.Require().NoError(s.recipients.TouchFromTransfer(s.ctx, bob, carol, s.base.Add(2*time.Hour)))

	recs, err := s.recipients.ListByUser(s.ctx, alice, 10)
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(carol, recs[0].RecipientAddress)
	s.Equal(bob, recs[1].RecipientAddress)
}

func (s *RepositorySuite) TestDeleteIsScopedToUser() {
	rec, err := s.recipients.Save(s.ctx, alice, bob, nil, s.base)
	s.Require().NoError(err)

	deleted, err := s.recipients.Delete(s.ctx, carol, rec.ID)
	s.Require().NoError(err)
	s.False(deleted)

	deleted, err = s.recipients.Delete(s.ctx, alice, rec.ID)
	s.Require().NoError(err)
	s.True(deleted)

	_, err = s.recipients.GetByAddress(s.ctx, alice, bob)
	s.ErrorIs(err, gorm.ErrRecordNotFound)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}
