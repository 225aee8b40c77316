package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/queue"
)

var ErrMalformedEvent = errors.New("malformed transfer event")

// TransferJob is the queue payload shared by the live and historical paths.
type TransferJob struct {
	TransactionHash string          `json:"transactionHash"`
	FromAddress     string          `json:"fromAddress"`
	ToAddress       string          `json:"toAddress"`
	Value           decimal.Decimal `json:"value"`
	BlockNumber     uint            `json:"blockNumber"`
	TransactionDate *time.Time      `json:"transactionDate,omitempty"`
}

// NewTransferJob decodes a raw log into a job. Logs without a transaction
// hash or with unexpected contents are reported as ErrMalformedEvent.
func NewTransferJob(erc20 *contract.ERC20Contract, log *types.Log) (*TransferJob, error) {
	if log.TxHash == (common.Hash{}) {
		return nil, fmt.Errorf("log at block %d has no transaction hash: %w", log.BlockNumber, ErrMalformedEvent)
	}
	event, err := erc20.DecodeTransfer(log)
	if err != nil {
		return nil, fmt.Errorf("can't decode transfer %s: %v: %w", log.TxHash, err, ErrMalformedEvent)
	}
	return &TransferJob{
		TransactionHash: log.TxHash.Hex(),
		FromAddress:     event.From.Hex(),
		ToAddress:       event.To.Hex(),
		Value:           decimal.NewFromBigInt(event.Value, 0),
		BlockNumber:     uint(log.BlockNumber),
	}, nil
}

func DecodeTransferJob(payload []byte) (*TransferJob, error) {
	job := new(TransferJob)
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, fmt.Errorf("can't unmarshal transfer job: %v: %w", err, queue.ErrMalformedJob)
	}
	if job.TransactionHash == "" {
		return nil, fmt.Errorf("transfer job has no transaction hash: %w", queue.ErrMalformedJob)
	}
	return job, nil
}

func (j *TransferJob) Transfer() *entity.Transfer {
	return &entity.Transfer{
		TransactionHash: j.TransactionHash,
		FromAddress:     j.FromAddress,
		ToAddress:       j.ToAddress,
		Value:           j.Value,
		BlockNumber:     j.BlockNumber,
		TransactionDate: j.TransactionDate,
	}
}

// Enqueuer pushes transfer jobs to the broker keyed by transaction hash.
type Enqueuer struct {
	logger logging.Logger
	broker queue.Broker
}

func NewEnqueuer(logger logging.Logger, broker queue.Broker) *Enqueuer {
	return &Enqueuer{
		logger: logger,
		broker: broker,
	}
}

func (e *Enqueuer) Enqueue(ctx context.Context, job *TransferJob, source string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("can't marshal transfer job: %w", err)
	}
	added, err := e.broker.Enqueue(ctx, job.TransactionHash, payload)
	if err != nil {
		return err
	}
	result := "enqueued"
	if !added {
		result = "duplicate"
	}
	EnqueuedEvents.WithLabelValues(source, result).Inc()
	e.logger.WithField("tx_hash", job.TransactionHash).WithField("added", added).Debug("transfer job submitted")
	return nil
}
