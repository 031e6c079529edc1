package entity

import "github.com/guregu/null/v6"

type Announcement struct {
	ID        int64       `db:"id" json:"id"`
	Title     string      `db:"title" json:"title"`
	Body      null.String `db:"body" json:"body"`
	Audience  null.String `db:"audience" json:"audience"`
	CreatedAt null.Time   `db:"created_at" json:"created_at"`
}

func (Announcement) TableName() string {
	return "announcements"
}
