package entity

import (
	"context"
	"time"
)

// LogsCursor is the historical scan checkpoint: every block up to and
// including LastScannedBlock has been fetched and handed to the event queue.
type LogsCursor struct {
	ChainID          string     `db:"chain_id"`
	Address          string     `db:"address"`
	LastScannedBlock uint       `db:"last_scanned_block"`
	CreatedAt        *time.Time `db:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at"`
}

type LogsCursorsRepo interface {
	Ensure(ctx context.Context, cursor *LogsCursor) error
	GetByChainIDAndAddress(ctx context.Context, chainID string, addr string) (*LogsCursor, error)
}
