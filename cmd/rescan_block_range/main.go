package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/indexer"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/queue"
	"github.com/omni/transfer-indexer/repository"
)

var (
	configPath = flag.String("config", "config.yml", "path to the yaml config file")
	fromBlock  = flag.Uint("fromBlock", 0, "starting block")
	toBlock    = flag.Uint("toBlock", 0, "ending block")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	if *fromBlock < cfg.Contract.StartBlock {
		fromBlock = &cfg.Contract.StartBlock
	}
	if *toBlock == 0 {
		logger.Fatal("toBlock is not specified")
	}
	if *toBlock < *fromBlock {
		logger.WithFields(logrus.Fields{
			"from_block": *fromBlock,
			"to_block":   *toBlock,
		}).Fatal("toBlock < fromBlock")
	}
	if strings.HasPrefix(cfg.Queue.URL, "memory://") {
		logger.Fatal("rescan requires a shared queue broker, in-memory queue would be lost on exit")
	}

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.ChainID, cfg.Chain.RPC.RPS)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc client")
	}
	defer client.Close()

	broker, err := queue.NewBroker(cfg.Queue.URL, cfg.Queue.Name, queue.Options{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Backoff:      cfg.Queue.Backoff,
		LeaseTimeout: cfg.Queue.LeaseTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("can't connect to queue broker")
	}
	defer broker.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := indexer.NewIndexer(logger, cfg, repository.NewRepo(dbConn), client, client, broker)
	if err = idx.Scanner().ScanRange(ctx, *fromBlock, *toBlock); err != nil {
		logger.WithError(err).Fatal("can't rescan block range")
	}
	logger.WithFields(logrus.Fields{
		"from_block": *fromBlock,
		"to_block":   *toBlock,
	}).Info("block range was submitted to the queue, running indexer workers will persist it")
}
