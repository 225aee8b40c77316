package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/logging"
)

// CursorStore derives the block the historical scan resumes from. It keeps
// no state in memory, every call goes to the store.
type CursorStore struct {
	logger     logging.Logger
	transfers  entity.TransfersRepo
	cursors    entity.LogsCursorsRepo
	chainID    string
	address    common.Address
	startBlock uint
}

func NewCursorStore(logger logging.Logger, transfers entity.TransfersRepo, cursors entity.LogsCursorsRepo, chainID string, address common.Address, startBlock uint) *CursorStore {
	return &CursorStore{
		logger:     logger,
		transfers:  transfers,
		cursors:    cursors,
		chainID:    chainID,
		address:    address,
		startBlock: startBlock,
	}
}

// StartBlock returns the first block that is not known to be persisted.
// The highest persisted transfer and the scan checkpoint both bound the
// answer, the lower of the two wins.
func (c *CursorStore) StartBlock(ctx context.Context) (uint, error) {
	from := c.startBlock
	found := false

	maxBlock, err := c.transfers.MaxBlockNumber(ctx)
	switch {
	case err == nil:
		from, found = maxBlock+1, true
	case !errors.Is(err, db.ErrNotFound):
		return 0, fmt.Errorf("can't get max persisted block: %w", err)
	}

	cursor, err := c.cursors.GetByChainIDAndAddress(ctx, c.chainID, c.address.String())
	switch {
	case err == nil:
		if !found || cursor.LastScannedBlock+1 < from {
			from = cursor.LastScannedBlock + 1
		}
	case !errors.Is(err, db.ErrNotFound):
		return 0, fmt.Errorf("can't get logs cursor: %w", err)
	}

	if from < c.startBlock {
		from = c.startBlock
	}
	c.logger.WithFields(logrus.Fields{
		"max_persisted_block": maxBlock,
		"has_transfers":       found,
		"start_block":         from,
	}).Info("derived scan start block")
	return from, nil
}

// Checkpoint records that every block up to and including block has been
// handed to the event queue.
func (c *CursorStore) Checkpoint(ctx context.Context, block uint) error {
	err := c.cursors.Ensure(ctx, &entity.LogsCursor{
		ChainID:          c.chainID,
		Address:          c.address.String(),
		LastScannedBlock: block,
	})
	if err != nil {
		return fmt.Errorf("can't save scan checkpoint: %w", err)
	}
	return nil
}
