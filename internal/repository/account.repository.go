package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// erasableTables lists every table holding rows keyed by a user id, with the
// column that carries it.
var erasableTables = []struct {
	table  string
	column string
}{
	{"watchlist", "user_id"},
	{"alerts", "user_id"},
	{"portfolio_positions", "user_id"},
	{"mentor_chat_history", "user_id"},
	{"mentor_feedback", "user_id"},
	{"user_feedback", "user_id"},
	{"signal_subscriptions", "user_id"},
	{"question_responses", "user_id"},
	{"learning_progress", "user_id"},
	{"user_profile", "user_id"},
	{"users", "discord_id"},
}

type AccountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// EraseUser removes every row owned by userID in a single transaction.
func (r *AccountRepository) EraseUser(ctx context.Context, userID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logrus.WithField("userID", userID).Warnf("erase rollback failed: %v", rbErr)
			}
		}
	}()

	for _, t := range erasableTables {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", t.table, t.column)
		if _, err = tx.ExecContext(ctx, query, userID); err != nil {
			return fmt.Errorf("erase %s: %w", t.table, err)
		}
	}

	return tx.Commit()
}
