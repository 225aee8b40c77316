package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Transfer struct {
	TransactionHash string          `db:"transaction_hash" json:"transactionHash"`
	FromAddress     string          `db:"from_address" json:"fromAddress"`
	ToAddress       string          `db:"to_address" json:"toAddress"`
	Value           decimal.Decimal `db:"value" json:"value"`
	BlockNumber     uint            `db:"block_number" json:"blockNumber"`
	TransactionDate *time.Time      `db:"transaction_date" json:"transactionDate"`
	CreatedAt       *time.Time      `db:"created_at" json:"createdAt"`
}

type TransfersRepo interface {
	// Ensure inserts the transfer unless a row with the same transaction hash
	// already exists. It reports whether a new row was written.
	Ensure(ctx context.Context, transfer *Transfer) (bool, error)
	GetByTxHash(ctx context.Context, txHash string) (*Transfer, error)
	FindAll(ctx context.Context, offset, limit uint) ([]*Transfer, error)
	Count(ctx context.Context) (uint, error)
	MaxBlockNumber(ctx context.Context) (uint, error)
	FindWithoutDate(ctx context.Context, limit uint) ([]*Transfer, error)
	SetTransactionDate(ctx context.Context, txHash string, date time.Time) error
}
