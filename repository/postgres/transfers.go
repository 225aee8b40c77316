package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
)

type transfersRepo basePostgresRepo

func NewTransfersRepo(table string, db *db.DB) entity.TransfersRepo {
	return (*transfersRepo)(newBasePostgresRepo(table, db))
}

func buildEnsureTransferQuery(table string, t *entity.Transfer) (string, []interface{}, error) {
	return psql.Insert(table).
		Columns("transaction_hash", "from_address", "to_address", "value", "block_number", "transaction_date").
		Values(t.TransactionHash, t.FromAddress, t.ToAddress, t.Value, t.BlockNumber, t.TransactionDate).
		Suffix("ON CONFLICT (transaction_hash) DO NOTHING").
		ToSql()
}

func (r *transfersRepo) Ensure(ctx context.Context, t *entity.Transfer) (bool, error) {
	q, args, err := buildEnsureTransferQuery(r.table, t)
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't insert transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows count: %w", err)
	}
	return n > 0, nil
}

func (r *transfersRepo) GetByTxHash(ctx context.Context, txHash string) (*entity.Transfer, error) {
	q, args, err := psql.Select("*").
		From(r.table).
		Where(sq.Eq{"transaction_hash": txHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	transfer := new(entity.Transfer)
	err = r.db.GetContext(ctx, transfer, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get transfer by tx hash: %w", err)
	}
	return transfer, nil
}

func buildFindAllTransfersQuery(table string, offset, limit uint) (string, []interface{}, error) {
	return psql.Select("*").
		From(table).
		OrderBy("block_number DESC", "transaction_hash").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		ToSql()
}

func (r *transfersRepo) FindAll(ctx context.Context, offset, limit uint) ([]*entity.Transfer, error) {
	if limit == 0 {
		return nil, db.ErrInvalidPage
	}
	q, args, err := buildFindAllTransfersQuery(r.table, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	transfers := make([]*entity.Transfer, 0, limit)
	err = r.db.SelectContext(ctx, &transfers, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find transfers: %w", err)
	}
	return transfers, nil
}

func (r *transfersRepo) Count(ctx context.Context) (uint, error) {
	q, args, err := psql.Select("COUNT(*)").
		From(r.table).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}
	var count uint
	err = r.db.GetContext(ctx, &count, q, args...)
	if err != nil {
		return 0, fmt.Errorf("can't count transfers: %w", err)
	}
	return count, nil
}

func (r *transfersRepo) MaxBlockNumber(ctx context.Context) (uint, error) {
	q, args, err := psql.Select("MAX(block_number)").
		From(r.table).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}
	var blockNumber *uint
	err = r.db.GetContext(ctx, &blockNumber, q, args...)
	if err != nil {
		return 0, fmt.Errorf("can't get max block number: %w", err)
	}
	if blockNumber == nil {
		return 0, db.ErrNotFound
	}
	return *blockNumber, nil
}

func (r *transfersRepo) FindWithoutDate(ctx context.Context, limit uint) ([]*entity.Transfer, error) {
	q, args, err := psql.Select("*").
		From(r.table).
		Where(sq.Eq{"transaction_date": nil}).
		OrderBy("block_number").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	transfers := make([]*entity.Transfer, 0, limit)
	err = r.db.SelectContext(ctx, &transfers, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find transfers without date: %w", err)
	}
	return transfers, nil
}

func (r *transfersRepo) SetTransactionDate(ctx context.Context, txHash string, date time.Time) error {
	q, args, err := psql.Update(r.table).
		Set("transaction_date", date).
		Where(sq.Eq{"transaction_hash": txHash, "transaction_date": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't update transaction date: %w", err)
	}
	return nil
}
