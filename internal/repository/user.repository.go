package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("database unavailable")
	ErrDuplicate   = errors.New("duplicate")
)

const userColumns = "discord_id, username, plan, is_admin, preferences, trial_started_at, trial_ends_at, trial_used, created_at, updated_at"

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByDiscordID returns ErrNotFound when the user has no row yet.
func (r *UserRepository) GetByDiscordID(ctx context.Context, discordID string) (*entity.User, error) {
	var user entity.User
	err := r.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE discord_id = $1", discordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertLogin records a Discord login with the plan derived from guild roles.
func (r *UserRepository) UpsertLogin(ctx context.Context, discordID, username, plan string, isAdmin bool) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.User{}.TableName()).
		Columns("discord_id", "username", "plan", "is_admin").
		Values(discordID, username, plan, isAdmin).
		Suffix("ON CONFLICT (discord_id) DO UPDATE SET username = EXCLUDED.username, plan = EXCLUDED.plan, is_admin = EXCLUDED.is_admin, updated_at = now()")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *UserRepository) UpdateUsername(ctx context.Context, discordID, username, plan string, isAdmin bool) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.User{}.TableName()).
		Columns("discord_id", "username", "plan", "is_admin").
		Values(discordID, username, plan, isAdmin).
		Suffix("ON CONFLICT (discord_id) DO UPDATE SET username = EXCLUDED.username, updated_at = now()")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *UserRepository) GetPreferences(ctx context.Context, discordID string) (entity.JSONMap, error) {
	var prefs entity.JSONMap
	err := r.db.GetContext(ctx, &prefs, "SELECT preferences FROM users WHERE discord_id = $1", discordID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.JSONMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = entity.JSONMap{}
	}
	return prefs, nil
}

func (r *UserRepository) SavePreferences(ctx context.Context, discordID string, prefs entity.JSONMap) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.User{}.TableName()).
		Columns("discord_id", "preferences").
		Values(discordID, sq.Expr("?::jsonb", prefs)).
		Suffix("ON CONFLICT (discord_id) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = now()")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *UserRepository) StartTrial(ctx context.Context, discordID string, startedAt, endsAt time.Time) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.User{}.TableName()).
		Columns("discord_id", "plan", "trial_started_at", "trial_ends_at", "trial_used").
		Values(discordID, "Free", startedAt, endsAt, true).
		Suffix("ON CONFLICT (discord_id) DO UPDATE SET trial_started_at = EXCLUDED.trial_started_at, trial_ends_at = EXCLUDED.trial_ends_at, trial_used = true, updated_at = now()")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *UserRepository) SetPlan(ctx context.Context, discordID, plan string) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.User{}.TableName()).
		Columns("discord_id", "plan").
		Values(discordID, plan).
		Suffix("ON CONFLICT (discord_id) DO UPDATE SET plan = EXCLUDED.plan, updated_at = now()")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *UserRepository) List(ctx context.Context, limit uint64) ([]entity.User, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(userColumns).
		From(entity.User{}.TableName()).
		OrderBy("created_at desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	users := []entity.User{}
	err = r.db.SelectContext(ctx, &users, query, args...)
	return users, err
}

func (r *UserRepository) ListAdmins(ctx context.Context) ([]entity.User, error) {
	users := []entity.User{}
	err := r.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users WHERE is_admin = true")
	return users, err
}

// AdminPatch creates the user when missing and only overwrites the fields
// present in the patch.
func (r *UserRepository) AdminPatch(ctx context.Context, discordID string, patch entity.AdminUserPatch) error {
	query := `INSERT INTO users (discord_id, username, plan, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (discord_id) DO UPDATE SET
			username = COALESCE($2, users.username),
			plan = COALESCE($3, users.plan),
			is_admin = COALESCE($4, users.is_admin),
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query, discordID, patch.Username, patch.Plan, patch.IsAdmin)
	return err
}
