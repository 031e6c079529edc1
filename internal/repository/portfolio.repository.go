package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

const portfolioColumns = "id, user_id, symbol, quantity, cost_basis, target_price, risk, timeframe, notes, confidence, strategy, closed_at, exit_price, pnl, last_notified_pnl, created_at, updated_at"

// PortfolioPatchColumns are the columns a client may change on a position.
var PortfolioPatchColumns = []string{
	"symbol", "quantity", "cost_basis", "target_price", "risk", "timeframe",
	"notes", "confidence", "strategy", "closed_at", "exit_price", "pnl", "last_notified_pnl",
}

type PortfolioRepository struct {
	db *sqlx.DB
}

func NewPortfolioRepository(db *sqlx.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) ListByUser(ctx context.Context, userID string) ([]entity.PortfolioPosition, error) {
	positions := []entity.PortfolioPosition{}
	err := r.db.SelectContext(ctx, &positions, "SELECT "+portfolioColumns+" FROM portfolio_positions WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return positions, err
}

func (r *PortfolioRepository) Create(ctx context.Context, p *entity.PortfolioPosition) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(p.TableName()).
		Columns(
			"user_id",
			"symbol",
			"quantity",
			"cost_basis",
			"target_price",
			"risk",
			"timeframe",
			"notes",
			"confidence",
			"strategy",
		).
		Values(
			p.UserID,
			p.Symbol,
			p.Quantity,
			p.CostBasis,
			p.TargetPrice,
			p.Risk,
			p.Timeframe,
			p.Notes,
			p.Confidence,
			p.Strategy,
		).
		Suffix("RETURNING id, created_at, updated_at")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Update applies the given column values to a position owned by userID and
// reports the number of rows touched.
func (r *PortfolioRepository) Update(ctx context.Context, id int64, userID string, fields map[string]any) (int64, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.PortfolioPosition{}.TableName()).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "user_id": userID})
	for _, col := range PortfolioPatchColumns {
		if v, ok := fields[col]; ok {
			queryBuilder = queryBuilder.Set(col, v)
		}
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PortfolioRepository) Delete(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM portfolio_positions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
