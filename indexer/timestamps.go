package indexer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/logging"
)

// TimestampCache maps block numbers to block times. Entries never expire,
// block timestamps are immutable.
type TimestampCache struct {
	mu     sync.RWMutex
	blocks map[uint]time.Time
}

func NewTimestampCache() *TimestampCache {
	return &TimestampCache{blocks: make(map[uint]time.Time)}
}

func (c *TimestampCache) Get(blockNumber uint) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.blocks[blockNumber]
	return ts, ok
}

func (c *TimestampCache) Set(blockNumber uint, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[blockNumber] = ts
}

func (c *TimestampCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

type TimestampResolver struct {
	logger logging.Logger
	client ethclient.Client
	repo   entity.BlockTimestampsRepo
	cache  *TimestampCache
}

func NewTimestampResolver(logger logging.Logger, client ethclient.Client, repo entity.BlockTimestampsRepo) *TimestampResolver {
	return &TimestampResolver{
		logger: logger,
		client: client,
		repo:   repo,
		cache:  NewTimestampCache(),
	}
}

func (r *TimestampResolver) Cache() *TimestampCache {
	return r.cache
}

// Resolve looks the block time up in memory, then in the block_timestamps
// table, then asks the node. A failed lookup caches nothing and reports absence.
func (r *TimestampResolver) Resolve(ctx context.Context, blockNumber uint) (time.Time, bool) {
	if ts, ok := r.cache.Get(blockNumber); ok {
		TimestampLookups.WithLabelValues("memory").Inc()
		return ts, true
	}
	logger := r.logger.WithField("block_number", blockNumber)

	if r.repo != nil {
		bt, err := r.repo.GetByBlockNumber(ctx, r.client.ChainID(), blockNumber)
		switch {
		case err == nil:
			TimestampLookups.WithLabelValues("db").Inc()
			r.cache.Set(blockNumber, bt.Timestamp)
			return bt.Timestamp, true
		case !errors.Is(err, db.ErrNotFound):
			logger.WithError(err).Warn("can't get block timestamp from db")
		}
	}

	header, err := r.client.HeaderByNumber(ctx, blockNumber)
	if err != nil || header == nil {
		TimestampLookups.WithLabelValues("failed").Inc()
		logger.WithError(err).Warn("can't request block header, timestamp is left empty")
		return time.Time{}, false
	}
	TimestampLookups.WithLabelValues("rpc").Inc()
	ts := time.Unix(int64(header.Time), 0).UTC()
	r.cache.Set(blockNumber, ts)

	if r.repo != nil {
		err = r.repo.Ensure(ctx, &entity.BlockTimestamp{
			ChainID:     r.client.ChainID(),
			BlockNumber: blockNumber,
			Timestamp:   ts,
		})
		if err != nil {
			logger.WithError(err).Warn("can't save block timestamp")
		}
	}
	logger.WithFields(logrus.Fields{
		"timestamp": ts,
	}).Debug("resolved block timestamp")
	return ts, true
}
