package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/indexer"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/repository"
)

var (
	configPath = flag.String("config", "config.yml", "path to the yaml config file")
	batchSize  = flag.Uint("batchSize", 100, "number of transfers to fix per iteration")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.ChainID, cfg.Chain.RPC.RPS)
	if err != nil {
		logger.WithError(err).Fatal("can't dial chain json rpc")
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewRepo(dbConn)
	resolver := indexer.NewTimestampResolver(logger.WithField("service", "timestamps"), client, repo.BlockTimestamps)

	total := 0
	for ctx.Err() == nil {
		transfers, err2 := repo.Transfers.FindWithoutDate(ctx, *batchSize)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't find transfers without date")
		}
		if len(transfers) == 0 {
			break
		}
		fixed := 0
		for _, transfer := range transfers {
			fields := logrus.Fields{
				"tx_hash":      transfer.TransactionHash,
				"block_number": transfer.BlockNumber,
			}
			ts, ok := resolver.Resolve(ctx, transfer.BlockNumber)
			if !ok {
				logger.WithFields(fields).Warn("can't resolve block timestamp")
				continue
			}
			if err2 = repo.Transfers.SetTransactionDate(ctx, transfer.TransactionHash, ts); err2 != nil {
				logger.WithFields(fields).WithError(err2).Fatal("can't update transaction date")
			}
			fixed++
		}
		total += fixed
		logger.WithFields(logrus.Fields{
			"fixed": fixed,
			"total": total,
		}).Info("processed batch of transfers without date")
		if fixed == 0 {
			logger.Warn("no timestamps could be resolved in the last batch, stopping")
			break
		}
	}
	logger.WithField("total", total).Info("finished fixing transfer dates")
}
