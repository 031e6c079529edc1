package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const alertColumns = "id, user_id, symbol, type, direction, threshold, window_tf, cooldown, active, asset_type, display_symbol, display_name, created_at, last_triggered_at"

type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) ListByUser(ctx context.Context, userID string) ([]entity.Alert, error) {
	alerts := []entity.Alert{}
	err := r.db.SelectContext(ctx, &alerts, "SELECT "+alertColumns+" FROM alerts WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return alerts, err
}

// GetForUser returns ErrNotFound for missing alerts and for alerts owned by
// someone else.
func (r *AlertRepository) GetForUser(ctx context.Context, id int64, userID string) (*entity.Alert, error) {
	var alert entity.Alert
	err := r.db.GetContext(ctx, &alert, "SELECT "+alertColumns+" FROM alerts WHERE id = $1 AND user_id = $2", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// Create upserts on (user_id, symbol): an existing alert for the symbol takes
// the new condition and is re-armed, keeping its id.
func (r *AlertRepository) Create(ctx context.Context, alert *entity.Alert) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(alert.TableName()).
		Columns(
			"user_id",
			"symbol",
			"type",
			"direction",
			"threshold",
			"window_tf",
			"cooldown",
			"active",
			"asset_type",
			"display_symbol",
			"display_name",
		).
		Values(
			alert.UserID,
			alert.Symbol,
			alert.Type,
			alert.Direction,
			alert.Threshold,
			alert.WindowTF,
			alert.Cooldown,
			alert.Active,
			alert.AssetType,
			alert.DisplaySymbol,
			alert.DisplayName,
		).
		Suffix("ON CONFLICT (user_id, symbol) DO UPDATE SET " +
			"type = EXCLUDED.type, direction = EXCLUDED.direction, threshold = EXCLUDED.threshold, " +
			"window_tf = EXCLUDED.window_tf, cooldown = EXCLUDED.cooldown, active = EXCLUDED.active, " +
			"asset_type = EXCLUDED.asset_type, display_symbol = EXCLUDED.display_symbol, " +
			"display_name = EXCLUDED.display_name, last_triggered_at = NULL " +
			"RETURNING id, created_at")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, query, args...).Scan(&alert.ID, &alert.CreatedAt)
}

func (r *AlertRepository) Update(ctx context.Context, alert *entity.Alert) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(alert.TableName()).
		Set("symbol", alert.Symbol).
		Set("type", alert.Type).
		Set("direction", alert.Direction).
		Set("threshold", alert.Threshold).
		Set("window_tf", alert.WindowTF).
		Set("cooldown", alert.Cooldown).
		Set("active", alert.Active).
		Set("asset_type", alert.AssetType).
		Set("display_symbol", alert.DisplaySymbol).
		Set("display_name", alert.DisplayName).
		Where(sq.Eq{"id": alert.ID, "user_id": alert.UserID})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (r *AlertRepository) Delete(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *AlertRepository) MarkTriggered(ctx context.Context, id int64, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE alerts SET last_triggered_at = $1 WHERE id = $2 AND user_id = $3", at, id, userID)
	return err
}
