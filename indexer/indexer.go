package indexer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/queue"
	"github.com/omni/transfer-indexer/repository"
	"github.com/omni/transfer-indexer/utils"
)

const (
	defaultResubscribeBackoff = 30 * time.Second
	defaultStatsInterval      = 15 * time.Second
)

// Indexer wires the live subscriber, the historical scanner and the queue
// consumers of a single token contract.
type Indexer struct {
	logger       logging.Logger
	startupDelay time.Duration
	subscriber   *Subscriber
	scanner      *Scanner
	worker       *queue.Worker
	stats        *queue.StatsReporter
}

func NewIndexer(logger logging.Logger, cfg *config.Config, repo *repository.Repo, rpcClient, wsClient ethclient.Client, broker queue.Broker) *Indexer {
	erc20 := contract.NewERC20Contract(cfg.Contract.Address)
	logger = logger.WithFields(logrus.Fields{
		"chain_id": rpcClient.ChainID(),
		"address":  erc20.Address(),
	})

	enqueuer := NewEnqueuer(logger.WithField("service", "enqueuer"), broker)
	cursor := NewCursorStore(logger.WithField("service", "cursor"), repo.Transfers, repo.LogsCursors,
		rpcClient.ChainID(), erc20.Address(), cfg.Contract.StartBlock)
	resolver := NewTimestampResolver(logger.WithField("service", "timestamps"), rpcClient, repo.BlockTimestamps)
	persister := NewPersister(logger.WithField("service", "persister"), repo.Transfers, resolver)

	return &Indexer{
		logger:       logger,
		startupDelay: cfg.Scanner.StartupDelay,
		subscriber: NewSubscriber(logger.WithField("service", "subscriber"), wsClient, erc20, enqueuer, SubscriberOptions{
			RetryInterval:      cfg.Scanner.RetryInterval,
			ResubscribeBackoff: defaultResubscribeBackoff,
		}),
		scanner: NewScanner(logger.WithField("service", "scanner"), rpcClient, erc20, enqueuer, cursor, ScannerOptions{
			ChunkSize:          cfg.Scanner.ChunkSize,
			ChunkInterval:      cfg.Scanner.ChunkInterval,
			RetryInterval:      cfg.Scanner.RetryInterval,
			BlockConfirmations: cfg.Contract.BlockConfirmations,
			SafeLogsRequest:    cfg.Chain.SafeLogsRequest,
		}),
		worker: queue.NewWorker(logger.WithField("service", "worker"), broker, persister.Handle,
			cfg.Queue.Workers, cfg.Queue.PollInterval),
		stats: queue.NewStatsReporter(logger.WithField("service", "queue_stats"), broker, defaultStatsInterval),
	}
}

func (i *Indexer) Scanner() *Scanner {
	return i.scanner
}

// Run blocks until ctx is cancelled. The subscription is attached first,
// the historical pass starts after the startup delay.
func (i *Indexer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.subscriber.Run(ctx)
	})
	g.Go(func() error {
		if utils.ContextSleep(ctx, i.startupDelay) == nil {
			return nil
		}
		return i.scanner.Run(ctx)
	})
	g.Go(func() error {
		return i.worker.Run(ctx)
	})
	g.Go(func() error {
		i.stats.Start(ctx)
		return nil
	})
	i.logger.Info("indexer is running")
	return g.Wait()
}
