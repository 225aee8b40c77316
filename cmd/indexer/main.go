package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/indexer"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/presenter"
	"github.com/omni/transfer-indexer/queue"
	"github.com/omni/transfer-indexer/repository"
)

var configPath = flag.String("config", "config.yml", "path to the yaml config file")

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

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(cfg.Metrics.Host, mux)
		if err != nil {
			logger.WithError(err).Fatal("can't start listener for prometheus metrics")
		}
	}()

	rpcClient, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.ChainID, cfg.Chain.RPC.RPS)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc client")
	}
	defer rpcClient.Close()
	wsClient, err := ethclient.NewClient(cfg.Chain.WS.Host, cfg.Chain.WS.Timeout, cfg.Chain.ChainID, cfg.Chain.WS.RPS)
	if err != nil {
		logger.WithError(err).Fatal("can't dial websocket client")
	}
	defer wsClient.Close()

	broker, err := queue.NewBroker(cfg.Queue.URL, cfg.Queue.Name, queue.Options{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Backoff:      cfg.Queue.Backoff,
		LeaseTimeout: cfg.Queue.LeaseTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("can't connect to queue broker")
	}
	defer broker.Close()

	repo := repository.NewRepo(dbConn)
	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), cfg.Chain.ChainID, repo.Transfers, broker)
		go func() {
			err := pr.Serve(cfg.Presenter.Host)
			if err != nil {
				logger.WithError(err).Fatal("can't serve presenter")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := indexer.NewIndexer(logger, cfg, repo, rpcClient, wsClient, broker)
	if err = idx.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("indexer stopped with error")
		return
	}
	logger.Warn("caught termination signal, gracefully terminating")
}
