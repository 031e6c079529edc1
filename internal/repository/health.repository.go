package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type HealthRepository struct {
	db *sqlx.DB
}

func NewHealthRepository(db *sqlx.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

func (r *HealthRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return ErrUnavailable
	}
	return r.db.PingContext(ctx)
}

func (r *HealthRepository) Version(ctx context.Context) (string, error) {
	if r.db == nil {
		return "", ErrUnavailable
	}
	var version string
	err := r.db.GetContext(ctx, &version, "SELECT version()")
	return version, err
}
