package models

import (
	"time"
)

// TransactionStatus terminal outcome of a submitted transfer
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// Valid reports whether s is a terminal status
func (s TransactionStatus) Valid() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// Collection names used by the change feed
const (
	CollectionTransactions = "transactions"
	CollectionRecipients   = "recipients"
)

// Transaction ledger record. Append-only: written once per (user_address, hash).
type Transaction struct {
	ID          string            `json:"id" gorm:"primaryKey;type:varchar(36)"` // UUID
	UserAddress string            `json:"user_address" gorm:"type:varchar(42);not null;uniqueIndex:idx_transactions_user_hash,priority:1;index:idx_transactions_user_created,priority:1"`
	Hash        string            `json:"transaction_hash" gorm:"column:transaction_hash;type:varchar(66);not null;uniqueIndex:idx_transactions_user_hash,priority:2"`
	FromAddress string            `json:"from_address" gorm:"type:varchar(42);not null;index"`
	ToAddress   string            `json:"to_address" gorm:"type:varchar(42);not null;index"`
	Amount      string            `json:"amount" gorm:"type:varchar(80);not null"` // human decimal units
	TokenSymbol string            `json:"token_symbol" gorm:"type:varchar(16);not null"`
	ChainID     uint64            `json:"chain_id" gorm:"not null"`
	ChainName   string            `json:"chain_name" gorm:"type:varchar(64)"`
	Status      TransactionStatus `json:"status" gorm:"type:varchar(16);not null"`
	GasFee      string            `json:"gas_fee" gorm:"type:varchar(80);not null;default:'0'"` // wei
	BlockNumber uint64            `json:"block_number" gorm:"not null;default:0"`
	CreatedAt   time.Time         `json:"created_at" gorm:"index:idx_transactions_user_created,priority:2"`
}

// TableName table name
func (Transaction) TableName() string {
	return "transactions"
}

// Recipient recipient directory entry, unique per (user_address, recipient_address)
type Recipient struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"` // UUID
	UserAddress       string    `json:"user_address" gorm:"type:varchar(42);not null;uniqueIndex:idx_recipients_user_recipient,priority:1"`
	RecipientAddress  string    `json:"recipient_address" gorm:"type:varchar(42);not null;uniqueIndex:idx_recipients_user_recipient,priority:2"`
	Nickname          *string   `json:"nickname" gorm:"type:varchar(64)"`
	TransactionCount  int64     `json:"transaction_count" gorm:"not null;default:0"`
	LastTransactionAt time.Time `json:"last_transaction_at" gorm:"not null;index"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName table name
func (Recipient) TableName() string {
	return "recipients"
}

// AllModels returns every model managed by AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&Transaction{},
		&Recipient{},
	}
}
