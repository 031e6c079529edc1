package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

type AnnouncementRepository struct {
	db *sqlx.DB
}

func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

func (r *AnnouncementRepository) List(ctx context.Context, limit uint64) ([]entity.Announcement, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id, title, body, audience, created_at").
		From(entity.Announcement{}.TableName()).
		OrderBy("created_at desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	items := []entity.Announcement{}
	err = r.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

func (r *AnnouncementRepository) Create(ctx context.Context, a *entity.Announcement) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(a.TableName()).
		Columns("title", "body", "audience").
		Values(a.Title, a.Body, a.Audience).
		Suffix("RETURNING id, created_at")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.CreatedAt)
}

func (r *AnnouncementRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
