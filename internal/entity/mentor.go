package entity

import "github.com/guregu/null/v6"

const (
	MentorRoleUser      = "user"
	MentorRoleAssistant = "assistant"
	MentorRoleSystem    = "system"

	MentorModeDefault = "default"
	MentorModeMax     = "max"

	MentorReactionLike    = "like"
	MentorReactionDislike = "dislike"
)

type MentorMessage struct {
	ID        int64       `db:"id" json:"-"`
	UserID    string      `db:"user_id" json:"-"`
	MessageID string      `db:"message_id" json:"messageId"`
	Role      string      `db:"role" json:"role"`
	Content   string      `db:"content" json:"content"`
	Mode      null.String `db:"mode" json:"mode"`
	Metadata  JSONMap     `db:"metadata" json:"metadata"`
	Pinned    bool        `db:"pinned" json:"pinned"`
	CreatedAt null.Time   `db:"created_at" json:"created_at"`
}

func (MentorMessage) TableName() string {
	return "mentor_chat_history"
}

type MentorSettings struct {
	MessageCapacity int `json:"messageCapacity"`
}

type MentorFeedback struct {
	ID        int64       `db:"id" json:"id"`
	UserID    string      `db:"user_id" json:"user_id"`
	Username  null.String `db:"username" json:"username"`
	Plan      null.String `db:"plan" json:"plan"`
	MessageID string      `db:"message_id" json:"message_id"`
	Reaction  string      `db:"reaction" json:"reaction"`
	Response  string      `db:"response" json:"response"`
	Prompt    null.String `db:"prompt" json:"prompt"`
	Mode      null.String `db:"mode" json:"mode"`
	CreatedAt null.Time   `db:"created_at" json:"created_at"`
	UpdatedAt null.Time   `db:"updated_at" json:"updated_at"`
}

func (MentorFeedback) TableName() string {
	return "mentor_feedback"
}

// ChatTurn is one prior exchange forwarded to the language model.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
