package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/utils"
)

type State string

const (
	StateIdle     State = "idle"
	StateInFlight State = "in-flight"
	StateRetrying State = "retrying"
	StateDone     State = "done"
)

var allStates = []State{StateIdle, StateInFlight, StateRetrying, StateDone}

type ScannerOptions struct {
	ChunkSize          uint
	ChunkInterval      time.Duration
	RetryInterval      time.Duration
	BlockConfirmations uint
	SafeLogsRequest    bool
}

// Scanner walks the chain from the cursor to the head observed at start in
// fixed size chunks. A failed chunk is retried until it succeeds.
type Scanner struct {
	logger   logging.Logger
	client   ethclient.Client
	erc20    *contract.ERC20Contract
	enqueuer *Enqueuer
	cursor   *CursorStore
	opts     ScannerOptions

	mu    sync.Mutex
	state State
}

func NewScanner(logger logging.Logger, client ethclient.Client, erc20 *contract.ERC20Contract, enqueuer *Enqueuer, cursor *CursorStore, opts ScannerOptions) *Scanner {
	s := &Scanner{
		logger:   logger,
		client:   client,
		erc20:    erc20,
		enqueuer: enqueuer,
		cursor:   cursor,
		opts:     opts,
	}
	s.setState(StateIdle)
	return s
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	for _, st := range allStates {
		v := 0.0
		if st == state {
			v = 1
		}
		ScannerState.WithLabelValues(s.client.ChainID(), s.erc20.Address().String(), string(st)).Set(v)
	}
}

// Run performs a single historical pass from the cursor to the current head.
func (s *Scanner) Run(ctx context.Context) error {
	var from, head uint
	err := s.retry(ctx, "can't derive scan start block", func(ctx context.Context) (err error) {
		from, err = s.cursor.StartBlock(ctx)
		return err
	})
	if err != nil {
		return nil
	}
	err = s.retry(ctx, "can't fetch latest block number", func(ctx context.Context) (err error) {
		head, err = s.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return nil
	}

	latest := uint(0)
	if head > s.opts.BlockConfirmations {
		latest = head - s.opts.BlockConfirmations
	}
	ScannerHeadBlock.WithLabelValues(s.client.ChainID(), s.erc20.Address().String()).Set(float64(latest))
	s.logger.WithFields(logrus.Fields{
		"from_block":   from,
		"latest_block": latest,
	}).Info("starting historical scan")

	if s.scanRanges(ctx, SplitScanRange(from, latest, s.opts.ChunkSize), true) {
		s.setState(StateDone)
		s.logger.WithField("latest_block", latest).Info("historical scan is finished")
	}
	return nil
}

// ScanRange scans the inclusive range [from, to] once without touching the
// checkpoint. It is used for manual repairs.
func (s *Scanner) ScanRange(ctx context.Context, from, to uint) error {
	if from > to {
		return fmt.Errorf("invalid block range %d-%d", from, to)
	}
	if !s.scanRanges(ctx, SplitBlockRange(from, to, s.opts.ChunkSize+1), false) {
		return ctx.Err()
	}
	s.setState(StateDone)
	return nil
}

func (s *Scanner) scanRanges(ctx context.Context, ranges []*BlocksRange, checkpoint bool) bool {
	for i, r := range ranges {
		logger := s.logger.WithFields(logrus.Fields{
			"from_block": r.From,
			"to_block":   r.To,
		})
		for {
			s.setState(StateInFlight)
			err := s.scanChunk(ctx, r, checkpoint)
			if err == nil {
				break
			}
			s.setState(StateRetrying)
			if ctx.Err() != nil {
				return false
			}
			logger.WithError(err).Error("failed to scan block range, retrying")
			if utils.ContextSleep(ctx, s.opts.RetryInterval) == nil {
				return false
			}
		}
		if i < len(ranges)-1 && utils.ContextSleep(ctx, s.opts.ChunkInterval) == nil {
			return false
		}
	}
	return true
}

func (s *Scanner) scanChunk(ctx context.Context, r *BlocksRange, checkpoint bool) error {
	q := s.erc20.TransferFilter(uintPtr(r.From), uintPtr(r.To))
	var logs []types.Log
	var err error
	if s.opts.SafeLogsRequest {
		logs, err = s.client.FilterLogsSafe(ctx, q)
	} else {
		logs, err = s.client.FilterLogs(ctx, q)
	}
	if err != nil {
		return fmt.Errorf("can't fetch logs: %w", err)
	}

	enqueued := 0
	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}
		job, err2 := NewTransferJob(s.erc20, log)
		if errors.Is(err2, ErrMalformedEvent) {
			DroppedEvents.WithLabelValues("historical", "malformed").Inc()
			s.logger.WithError(err2).WithField("block_number", log.BlockNumber).Warn("dropping malformed transfer log")
			continue
		}
		if err2 = s.enqueuer.Enqueue(ctx, job, "historical"); err2 != nil {
			return fmt.Errorf("can't enqueue transfer %s: %w", job.TransactionHash, err2)
		}
		enqueued++
	}
	if checkpoint {
		if err = s.cursor.Checkpoint(ctx, r.To); err != nil {
			return err
		}
	}
	ScannerScannedBlock.WithLabelValues(s.client.ChainID(), s.erc20.Address().String()).Set(float64(r.To))
	s.logger.WithFields(logrus.Fields{
		"from_block": r.From,
		"to_block":   r.To,
		"count":      enqueued,
	}).Info("scanned block range")
	return nil
}

func (s *Scanner) retry(ctx context.Context, msg string, f func(ctx context.Context) error) error {
	return utils.RetryWithDelay(ctx, s.opts.RetryInterval, f, func(attempt int, err error) {
		s.setState(StateRetrying)
		s.logger.WithError(err).WithField("attempt", attempt).Error(msg)
	})
}
