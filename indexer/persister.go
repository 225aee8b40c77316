package indexer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/queue"
)

// Persister is the queue consumer. It fills in the transfer date and
// writes the record, ignoring transactions that are already stored.
type Persister struct {
	logger   logging.Logger
	repo     entity.TransfersRepo
	resolver *TimestampResolver
}

func NewPersister(logger logging.Logger, repo entity.TransfersRepo, resolver *TimestampResolver) *Persister {
	return &Persister{
		logger:   logger,
		repo:     repo,
		resolver: resolver,
	}
}

// Handle implements queue.Handler. Errors are returned to the queue, which
// owns the retry policy.
func (p *Persister) Handle(ctx context.Context, job *queue.Job) error {
	tj, err := DecodeTransferJob(job.Payload)
	if err != nil {
		return err
	}
	logger := p.logger.WithFields(logrus.Fields{
		"tx_hash":      tj.TransactionHash,
		"block_number": tj.BlockNumber,
	})

	transfer := tj.Transfer()
	if transfer.TransactionDate == nil {
		if ts, ok := p.resolver.Resolve(ctx, tj.BlockNumber); ok {
			transfer.TransactionDate = &ts
		} else {
			logger.Warn("block timestamp is unavailable, saving transfer without date")
		}
	}

	inserted, err := p.repo.Ensure(ctx, transfer)
	if err != nil {
		return fmt.Errorf("can't persist transfer: %w", err)
	}
	if inserted {
		PersistedTransfers.WithLabelValues("inserted").Inc()
		logger.Info("saved new transfer")
	} else {
		PersistedTransfers.WithLabelValues("duplicate").Inc()
		logger.Debug("transfer is already saved, skipping")
	}
	return nil
}
