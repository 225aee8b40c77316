package repository

import (
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/repository/postgres"
)

type Repo struct {
	Transfers       entity.TransfersRepo
	BlockTimestamps entity.BlockTimestampsRepo
	LogsCursors     entity.LogsCursorsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Transfers:       postgres.NewTransfersRepo("transfers", db),
		BlockTimestamps: postgres.NewBlockTimestampsRepo("block_timestamps", db),
		LogsCursors:     postgres.NewLogsCursorRepo("logs_cursors", db),
	}
}
