package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/entity"
)

const (
	mentorMessageColumns  = "id, user_id, message_id, role, content, mode, metadata, pinned, created_at"
	mentorFeedbackColumns = "id, user_id, username, plan, message_id, reaction, response, prompt, mode, created_at, updated_at"
)

type MentorRepository struct {
	db *sqlx.DB
}

func NewMentorRepository(db *sqlx.DB) *MentorRepository {
	return &MentorRepository{db: db}
}

// SaveMessage inserts a message or refreshes its content when the message id
// was already stored for the user.
func (r *MentorRepository) SaveMessage(ctx context.Context, msg *entity.MentorMessage) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(msg.TableName()).
		Columns("user_id", "message_id", "role", "content", "mode", "metadata", "pinned").
		Values(
			msg.UserID,
			msg.MessageID,
			msg.Role,
			msg.Content,
			msg.Mode,
			sq.Expr("?::jsonb", msg.Metadata),
			msg.Pinned,
		).
		Suffix(`ON CONFLICT (user_id, message_id) DO UPDATE SET
			content = EXCLUDED.content,
			mode = EXCLUDED.mode,
			metadata = COALESCE(EXCLUDED.metadata, mentor_chat_history.metadata)
			RETURNING id, created_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, query, args...).Scan(&msg.ID, &msg.CreatedAt)
}

// History returns the oldest limit messages of the user in chronological order.
func (r *MentorRepository) History(ctx context.Context, userID string, limit uint64) ([]entity.MentorMessage, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(mentorMessageColumns).
		From(entity.MentorMessage{}.TableName()).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at asc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	messages := []entity.MentorMessage{}
	err = r.db.SelectContext(ctx, &messages, query, args...)
	return messages, err
}

func (r *MentorRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM mentor_chat_history WHERE user_id = $1", userID)
	return err
}

func (r *MentorRepository) SetPinned(ctx context.Context, userID, messageID string, pinned bool) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE mentor_chat_history SET pinned = $1 WHERE user_id = $2 AND message_id = $3",
		pinned, userID, messageID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EnforceLimit keeps the newest keep unpinned messages of the user. Pinned
// messages are never removed.
func (r *MentorRepository) EnforceLimit(ctx context.Context, userID string, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mentor_chat_history
		WHERE user_id = $1
		  AND pinned = false
		  AND id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY created_at DESC) AS rn
				FROM mentor_chat_history
				WHERE user_id = $1 AND pinned = false
			) AS ranked
			WHERE ranked.rn > $2
		  )`, userID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *MentorRepository) UpsertFeedback(ctx context.Context, fb *entity.MentorFeedback) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(fb.TableName()).
		Columns("user_id", "username", "plan", "message_id", "reaction", "response", "prompt", "mode").
		Values(fb.UserID, fb.Username, fb.Plan, fb.MessageID, fb.Reaction, fb.Response, fb.Prompt, fb.Mode).
		Suffix(`ON CONFLICT (user_id, message_id) DO UPDATE SET
			reaction = EXCLUDED.reaction,
			response = EXCLUDED.response,
			prompt = EXCLUDED.prompt,
			mode = EXCLUDED.mode,
			username = EXCLUDED.username,
			plan = EXCLUDED.plan,
			updated_at = now()
			RETURNING id, created_at, updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, query, args...).Scan(&fb.ID, &fb.CreatedAt, &fb.UpdatedAt)
}

func (r *MentorRepository) DeleteFeedbackForMessage(ctx context.Context, userID, messageID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM mentor_feedback WHERE user_id = $1 AND message_id = $2",
		userID, messageID,
	)
	return err
}

func (r *MentorRepository) ListFeedback(ctx context.Context, limit uint64) ([]entity.MentorFeedback, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select(mentorFeedbackColumns).
		From(entity.MentorFeedback{}.TableName()).
		OrderBy("updated_at desc").
		Limit(limit)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	items := []entity.MentorFeedback{}
	err = r.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

func (r *MentorRepository) DeleteFeedback(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM mentor_feedback WHERE id = $1", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
