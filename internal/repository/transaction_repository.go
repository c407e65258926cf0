// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"errors"
	"strings"

	"transfer-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepository defines the interface for ledger transaction access
type TransactionRepository interface {
	// InsertIfAbsent inserts tx unless (user_address, hash) already exists.
	// It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, tx *models.Transaction) (bool, error)
	GetByHash(ctx context.Context, userAddress, hash string) (*models.Transaction, error)

	// Query methods
	ListByUser(ctx context.Context, userAddress string, limit int) ([]*models.Transaction, error)
	ListInvolving(ctx context.Context, address string, limit int) ([]*models.Transaction, error)
	CountByUser(ctx context.Context, userAddress string) (int64, error)
}

// transactionRepository implements TransactionRepository
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new TransactionRepository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// InsertIfAbsent inserts a transaction, skipping duplicates on (user_address, transaction_hash)
func (r *transactionRepository) InsertIfAbsent(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.UserAddress = strings.ToLower(tx.UserAddress)
	tx.FromAddress = strings.ToLower(tx.FromAddress)
	tx.ToAddress = strings.ToLower(tx.ToAddress)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_address"}, {Name: "transaction_hash"}},
			DoNothing: true,
		}).
		Create(tx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByHash retrieves a transaction by user and hash
func (r *transactionRepository) GetByHash(ctx context.Context, userAddress, hash string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_address = ? AND transaction_hash = ?", strings.ToLower(userAddress), hash).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByUser lists the user's own ledger rows, newest first
func (r *transactionRepository) ListByUser(ctx context.Context, userAddress string, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	q := r.db.WithContext(ctx).
		Where("user_address = ?", strings.ToLower(userAddress)).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

// ListInvolving lists rows where address is the sender or the recipient, newest first
func (r *transactionRepository) ListInvolving(ctx context.Context, address string, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	addr := strings.ToLower(address)
	q := r.db.WithContext(ctx).
		Where("from_address = ? OR to_address = ?", addr, addr).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

// CountByUser counts the user's ledger rows
func (r *transactionRepository) CountByUser(ctx context.Context, userAddress string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("user_address = ?", strings.ToLower(userAddress)).
		Count(&count).Error
	return count, err
}
