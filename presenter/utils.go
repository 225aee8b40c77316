package presenter

import (
	"encoding/json"
	"fmt"

	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/queue"
)

var explorerFormats = map[string]string{
	"1":        "https://etherscan.io/tx/%s",
	"5":        "https://goerli.etherscan.io/tx/%s",
	"56":       "https://bscscan.com/tx/%s",
	"100":      "https://gnosisscan.io/tx/%s",
	"137":      "https://polygonscan.com/tx/%s",
	"11155111": "https://sepolia.etherscan.io/tx/%s",
}

func txLink(chainID, txHash string) string {
	if format, ok := explorerFormats[chainID]; ok {
		return fmt.Sprintf(format, txHash)
	}
	return ""
}

func transferToInfo(chainID string, transfer *entity.Transfer) *TransferInfo {
	return &TransferInfo{
		Transfer: transfer,
		Link:     txLink(chainID, transfer.TransactionHash),
	}
}

func jobToFailedJobInfo(job *queue.Job) FailedJobInfo {
	info := FailedJobInfo{
		ID:        job.ID,
		Attempts:  job.Attempts,
		LastError: job.LastError,
		FailedAt:  job.FailedAt,
	}
	if json.Valid(job.Payload) {
		info.Payload = job.Payload
	} else {
		info.Payload = string(job.Payload)
	}
	return info
}
