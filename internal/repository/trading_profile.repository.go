package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

type TradingProfileRepository struct {
	db *sqlx.DB
}

func NewTradingProfileRepository(db *sqlx.DB) *TradingProfileRepository {
	return &TradingProfileRepository{db: db}
}

// Get returns nil when the user never saved a profile.
func (r *TradingProfileRepository) Get(ctx context.Context, userID string) (*entity.TradingProfile, error) {
	var profile entity.TradingProfile
	err := r.db.GetContext(ctx, &profile, "SELECT user_id, skill_level, risk_appetite, focus, trading_style, goals FROM user_profile WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *TradingProfileRepository) Upsert(ctx context.Context, profile *entity.TradingProfile) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(profile.TableName()).
		Columns("user_id", "skill_level", "risk_appetite", "focus", "trading_style", "goals").
		Values(profile.UserID, profile.SkillLevel, profile.RiskAppetite, profile.Focus, profile.TradingStyle, profile.Goals).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			skill_level = EXCLUDED.skill_level,
			risk_appetite = EXCLUDED.risk_appetite,
			focus = EXCLUDED.focus,
			trading_style = EXCLUDED.trading_style,
			goals = EXCLUDED.goals,
			last_active = now(),
			updated_at = now()`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
