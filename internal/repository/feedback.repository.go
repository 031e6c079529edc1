package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

const feedbackColumns = "id, user_id, username, plan, category, severity, title, description, repro_steps, attachment_url, include_diagnostics, allow_contact, status, resolution_notes, admin_id, created_at, updated_at"

type FeedbackRepository struct {
	db *sqlx.DB
}

func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, f *entity.UserFeedback) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(f.TableName()).
		Columns(
			"user_id",
			"username",
			"plan",
			"category",
			"severity",
			"title",
			"description",
			"repro_steps",
			"attachment_url",
			"include_diagnostics",
			"allow_contact",
		).
		Values(
			f.UserID,
			f.Username,
			f.Plan,
			f.Category,
			f.Severity,
			f.Title,
			f.Description,
			f.ReproSteps,
			f.AttachmentURL,
			f.IncludeDiagnostics,
			f.AllowContact,
		).
		Suffix("RETURNING id, status, created_at, updated_at")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, query, args...).Scan(&f.ID, &f.Status, &f.CreatedAt, &f.UpdatedAt)
}

func (r *FeedbackRepository) List(ctx context.Context, limit uint64) ([]entity.UserFeedback, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(feedbackColumns).
		From(entity.UserFeedback{}.TableName()).
		OrderBy("created_at desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	items := []entity.UserFeedback{}
	err = r.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

func (r *FeedbackRepository) Patch(ctx context.Context, id int64, patch entity.FeedbackPatch) (*entity.UserFeedback, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.UserFeedback{}.TableName()).
		Set("admin_id", patch.AdminID).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + feedbackColumns)
	if patch.Status != nil {
		queryBuilder = queryBuilder.Set("status", *patch.Status)
	}
	if patch.ResolutionNotes != nil {
		queryBuilder = queryBuilder.Set("resolution_notes", *patch.ResolutionNotes)
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var feedback entity.UserFeedback
	err = r.db.QueryRowxContext(ctx, query, args...).StructScan(&feedback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (r *FeedbackRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM user_feedback WHERE id = $1", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
