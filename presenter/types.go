package presenter

import (
	"time"

	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/queue"
)

type TransferInfo struct {
	*entity.Transfer
	Link string `json:"link,omitempty"`
}

type TransfersPage struct {
	Data  []*TransferInfo `json:"data"`
	Count uint            `json:"count"`
}

type FailedJobInfo struct {
	ID        string      `json:"id"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"lastError"`
	FailedAt  *time.Time  `json:"failedAt"`
	Payload   interface{} `json:"payload"`
}

type FailedJobsResult struct {
	Queue string          `json:"queue"`
	Stats *queue.Stats    `json:"stats"`
	Jobs  []FailedJobInfo `json:"jobs"`
}
