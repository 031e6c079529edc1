package entity

import "github.com/guregu/null/v6"

const (
	FeedbackStatusNew        = "new"
	FeedbackStatusInProgress = "in_progress"
	FeedbackStatusResolved   = "resolved"
	FeedbackStatusClosed     = "closed"
)

type UserFeedback struct {
	ID                 int64       `db:"id" json:"id"`
	UserID             string      `db:"user_id" json:"user_id"`
	Username           null.String `db:"username" json:"username"`
	Plan               null.String `db:"plan" json:"plan"`
	Category           string      `db:"category" json:"category"`
	Severity           string      `db:"severity" json:"severity"`
	Title              string      `db:"title" json:"title"`
	Description        null.String `db:"description" json:"description"`
	ReproSteps         null.String `db:"repro_steps" json:"repro_steps"`
	AttachmentURL      null.String `db:"attachment_url" json:"attachment_url"`
	IncludeDiagnostics null.Bool   `db:"include_diagnostics" json:"include_diagnostics"`
	AllowContact       null.Bool   `db:"allow_contact" json:"allow_contact"`
	Status             null.String `db:"status" json:"status"`
	ResolutionNotes    null.String `db:"resolution_notes" json:"resolution_notes"`
	AdminID            null.String `db:"admin_id" json:"admin_id"`
	CreatedAt          null.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          null.Time   `db:"updated_at" json:"updated_at"`
}

func (UserFeedback) TableName() string {
	return "user_feedback"
}

type FeedbackPatch struct {
	Status          *string
	ResolutionNotes *string
	AdminID         string
}
