package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

type WatchlistRepository struct {
	db *sqlx.DB
}

func NewWatchlistRepository(db *sqlx.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

func (r *WatchlistRepository) ListByUser(ctx context.Context, userID string) ([]entity.WatchlistItem, error) {
	items := []entity.WatchlistItem{}
	err := r.db.SelectContext(ctx, &items, `SELECT user_id, symbol, position, asset_type, display_symbol, display_name
		FROM watchlist WHERE user_id = $1 ORDER BY position ASC`, userID)
	return items, err
}

func (r *WatchlistRepository) NextPosition(ctx context.Context, userID string) (int, error) {
	var next int
	err := r.db.GetContext(ctx, &next, "SELECT COALESCE(MAX(position), -1) + 1 FROM watchlist WHERE user_id = $1", userID)
	return next, err
}

func (r *WatchlistRepository) Upsert(ctx context.Context, item *entity.WatchlistItem) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(item.TableName()).
		Columns("user_id", "symbol", "position", "asset_type", "display_symbol", "display_name").
		Values(item.UserID, item.Symbol, item.Position, item.AssetType, item.DisplaySymbol, item.DisplayName).
		Suffix(`ON CONFLICT (user_id, symbol) DO UPDATE SET
			position = EXCLUDED.position,
			asset_type = EXCLUDED.asset_type,
			display_symbol = EXCLUDED.display_symbol,
			display_name = EXCLUDED.display_name`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *WatchlistRepository) UpdateMeta(ctx context.Context, item *entity.WatchlistItem) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(item.TableName()).
		Set("asset_type", item.AssetType).
		Set("display_symbol", item.DisplaySymbol).
		Set("display_name", item.DisplayName).
		Where(sq.Eq{"user_id": item.UserID, "symbol": item.Symbol})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *WatchlistRepository) Delete(ctx context.Context, userID, symbol string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM watchlist WHERE user_id = $1 AND symbol = $2", userID, symbol)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
