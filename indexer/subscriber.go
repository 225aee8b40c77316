package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/utils"
)

const defaultLogsChanCap = 200

type SubscriberOptions struct {
	// RetryInterval is the fixed delay between enqueue attempts.
	RetryInterval time.Duration
	// ResubscribeBackoff caps the delay between resubscription attempts.
	ResubscribeBackoff time.Duration
}

// Subscriber follows new Transfer logs over a websocket subscription and
// forwards them to the queue.
type Subscriber struct {
	logger   logging.Logger
	client   ethclient.Client
	erc20    *contract.ERC20Contract
	enqueuer *Enqueuer
	opts     SubscriberOptions
}

func NewSubscriber(logger logging.Logger, client ethclient.Client, erc20 *contract.ERC20Contract, enqueuer *Enqueuer, opts SubscriberOptions) *Subscriber {
	return &Subscriber{
		logger:   logger,
		client:   client,
		erc20:    erc20,
		enqueuer: enqueuer,
		opts:     opts,
	}
}

func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Info("starting live logs subscription")

	logs := make(chan types.Log, defaultLogsChanCap)
	q := s.erc20.TransferFilter(nil, nil)
	sub := event.ResubscribeErr(s.opts.ResubscribeBackoff, func(ctx context.Context, lastErr error) (event.Subscription, error) {
		if lastErr != nil {
			Resubscriptions.WithLabelValues(s.client.ChainID(), s.erc20.Address().String()).Inc()
			s.logger.WithError(lastErr).Warn("live subscription dropped, resubscribing")
		}
		res, err := s.client.SubscribeFilterLogs(ctx, q, logs)
		if err != nil {
			s.logger.WithError(err).Error("can't subscribe to transfer logs")
			return nil, err
		}
		s.logger.Info("subscribed to transfer logs")
		return res, nil
	})
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("live logs subscription stopped")
			return nil
		case log := <-logs:
			s.HandleLog(ctx, &log)
		}
	}
}

// HandleLog validates a single notification and enqueues it. Malformed
// events are logged and dropped.
func (s *Subscriber) HandleLog(ctx context.Context, log *types.Log) {
	logger := s.logger.WithFields(logrus.Fields{
		"block_number": log.BlockNumber,
		"tx_hash":      log.TxHash,
		"log_index":    log.Index,
	})
	if log.Removed {
		DroppedEvents.WithLabelValues("live", "removed").Inc()
		logger.Warn("received removed log due to chain reorg, skipping")
		return
	}
	job, err := NewTransferJob(s.erc20, log)
	if err != nil {
		DroppedEvents.WithLabelValues("live", "malformed").Inc()
		logger.WithError(err).Warn("dropping malformed transfer log")
		return
	}
	err = utils.RetryWithDelay(ctx, s.opts.RetryInterval, func(ctx context.Context) error {
		return s.enqueuer.Enqueue(ctx, job, "live")
	}, func(attempt int, err error) {
		logger.WithError(err).WithField("attempt", attempt).Error("can't enqueue live transfer, retrying")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("live transfer was not enqueued")
	}
}
