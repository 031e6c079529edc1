package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

const signalColumns = "id, symbol, display_symbol, signal_type, price, timestamp, signal_strength, asset_type, recommendations, performance, details, status"

type SignalRepository struct {
	db *sqlx.DB
}

func NewSignalRepository(db *sqlx.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

func (r *SignalRepository) Latest(ctx context.Context, limit uint64) ([]entity.Signal, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(signalColumns).
		From(entity.Signal{}.TableName()).
		OrderBy("timestamp desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	signals := []entity.Signal{}
	err = r.db.SelectContext(ctx, &signals, query, args...)
	return signals, err
}

func (r *SignalRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM signals")
	return count, err
}

func (r *SignalRepository) Create(ctx context.Context, signal *entity.Signal) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(signal.TableName()).
		Columns(
			"symbol",
			"display_symbol",
			"signal_type",
			"price",
			"signal_strength",
			"asset_type",
			"recommendations",
			"performance",
			"details",
			"status",
			"timestamp",
		).
		Values(
			signal.Symbol,
			signal.DisplaySymbol,
			signal.SignalType,
			signal.Price,
			signal.SignalStrength,
			signal.AssetType,
			signal.Recommendations,
			signal.Performance,
			sq.Expr("?::jsonb", signal.Details),
			signal.Status,
			signal.Timestamp,
		).
		Suffix("RETURNING " + signalColumns)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowxContext(ctx, query, args...).StructScan(signal)
}

// Patch applies the non nil parts of patch and returns ErrNotFound when no
// row has the id.
func (r *SignalRepository) Patch(ctx context.Context, id int64, patch entity.SignalPatch) (*entity.Signal, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.Signal{}.TableName()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + signalColumns)
	if patch.Status != nil {
		queryBuilder = queryBuilder.Set("status", *patch.Status)
	}
	if patch.Performance != nil {
		queryBuilder = queryBuilder.Set("performance", *patch.Performance)
	}
	if patch.Details != nil {
		queryBuilder = queryBuilder.Set("details", sq.Expr("?::jsonb", patch.Details))
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var signal entity.Signal
	err = r.db.QueryRowxContext(ctx, query, args...).StructScan(&signal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

func (r *SignalRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM signals WHERE id = $1", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Prune removes signals older than days and returns how many were deleted.
func (r *SignalRepository) Prune(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("invalid retention days: %d", days)
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM signals WHERE timestamp < now() - $1 * interval '1 day'", days)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
