package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"transfer-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecipientRepository defines the interface for recipient directory access.
// Every write is an upsert on (user_address, recipient_address) that keeps created_at.
type RecipientRepository interface {
	// TouchFromTransfer records a successful transfer to recipient at the given time.
	TouchFromTransfer(ctx context.Context, userAddress, recipientAddress string, at time.Time) error
	// Save is the explicit "add recipient" action. A nil nickname keeps the stored one.
	Save(ctx context.Context, userAddress, recipientAddress string, nickname *string, at time.Time) (*models.Recipient, error)
	GetByAddress(ctx context.Context, userAddress, recipientAddress string) (*models.Recipient, error)
	ListByUser(ctx context.Context, userAddress string, limit int) ([]*models.Recipient, error)
	CountByUser(ctx context.Context, userAddress string) (int64, error)
	// Delete removes a recipient by id within the user's scope and reports whether it existed.
	Delete(ctx context.Context, userAddress, id string) (bool, error)
}

// recipientRepository implements RecipientRepository
type recipientRepository struct {
	db *gorm.DB
}

// NewRecipientRepository creates a new RecipientRepository instance
func NewRecipientRepository(db *gorm.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

var recipientConflictColumns = []clause.Column{{Name: "user_address"}, {Name: "recipient_address"}}

// existing returns a reference to the stored value of col inside ON CONFLICT DO UPDATE.
// Postgres needs the table qualifier to disambiguate from EXCLUDED; SQLite does not accept it everywhere.
func (r *recipientRepository) existing(col string) string {
	if r.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("%s.%s", models.Recipient{}.TableName(), col)
	}
	return col
}

// TouchFromTransfer upserts the recipient, bumping last_transaction_at and transaction_count
func (r *recipientRepository) TouchFromTransfer(ctx context.Context, userAddress, recipientAddress string, at time.Time) error {
	rec := &models.Recipient{
		ID:                uuid.New().String(),
		UserAddress:       strings.ToLower(userAddress),
		RecipientAddress:  strings.ToLower(recipientAddress),
		TransactionCount:  1,
		LastTransactionAt: at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: recipientConflictColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_transaction_at": gorm.Expr("excluded.last_transaction_at"),
				"updated_at":          gorm.Expr("excluded.updated_at"),
				"transaction_count":   gorm.Expr(r.existing("transaction_count") + " + 1"),
			}),
		}).
		Create(rec).Error
}

// Save upserts an explicitly added recipient
func (r *recipientRepository) Save(ctx context.Context, userAddress, recipientAddress string, nickname *string, at time.Time) (*models.Recipient, error) {
	rec := &models.Recipient{
		ID:                uuid.New().String(),
		UserAddress:       strings.ToLower(userAddress),
		RecipientAddress:  strings.ToLower(recipientAddress),
		Nickname:          nickname,
		LastTransactionAt: at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: recipientConflictColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"nickname":            gorm.Expr("COALESCE(excluded.nickname, " + r.existing("nickname") + ")"),
				"last_transaction_at": gorm.Expr("excluded.last_transaction_at"),
				"updated_at":          gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(rec).Error
	if err != nil {
		return nil, err
	}
	// the stored row keeps its original id on conflict
	return r.GetByAddress(ctx, userAddress, recipientAddress)
}

// GetByAddress retrieves a recipient by user and recipient address
func (r *recipientRepository) GetByAddress(ctx context.Context, userAddress, recipientAddress string) (*models.Recipient, error) {
	var rec models.Recipient
	err := r.db.WithContext(ctx).
		Where("user_address = ? AND recipient_address = ?", strings.ToLower(userAddress), strings.ToLower(recipientAddress)).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByUser lists recipients, most recently active first
func (r *recipientRepository) ListByUser(ctx context.Context, userAddress string, limit int) ([]*models.Recipient, error) {
	var recs []*models.Recipient
	q := r.db.WithContext(ctx).
		Where("user_address = ?", strings.ToLower(userAddress)).
		Order("last_transaction_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&recs).Error
	return recs, err
}

// CountByUser counts recipients in the user's directory
func (r *recipientRepository) CountByUser(ctx context.Context, userAddress string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Recipient{}).
		Where("user_address = ?", strings.ToLower(userAddress)).
		Count(&count).Error
	return count, err
}

// Delete deletes a recipient owned by userAddress
func (r *recipientRepository) Delete(ctx context.Context, userAddress, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_address = ?", id, strings.ToLower(userAddress)).
		Delete(&models.Recipient{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
