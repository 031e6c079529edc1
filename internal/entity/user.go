package entity

import (
	"time"

	"github.com/guregu/null/v6"
)

type User struct {
	DiscordID      string      `db:"discord_id" json:"discord_id"`
	Username       null.String `db:"username" json:"username"`
	Plan           null.String `db:"plan" json:"plan"`
	IsAdmin        null.Bool   `db:"is_admin" json:"is_admin"`
	Preferences    JSONMap     `db:"preferences" json:"-"`
	TrialStartedAt null.Time   `db:"trial_started_at" json:"-"`
	TrialEndsAt    null.Time   `db:"trial_ends_at" json:"-"`
	TrialUsed      null.Bool   `db:"trial_used" json:"-"`
	CreatedAt      null.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      null.Time   `db:"updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// TrialActive reports whether the trial window is still open at now.
func (u *User) TrialActive(now time.Time) bool {
	return u.TrialEndsAt.Valid && u.TrialEndsAt.Time.After(now)
}

// AdminUserPatch carries the optional fields an admin can override.
type AdminUserPatch struct {
	Username *string
	Plan     *string
	IsAdmin  *bool
}

type TradingProfile struct {
	UserID       string      `db:"user_id" json:"-"`
	SkillLevel   null.String `db:"skill_level" json:"skillLevel"`
	RiskAppetite null.String `db:"risk_appetite" json:"riskAppetite"`
	Focus        null.String `db:"focus" json:"focus"`
	TradingStyle null.String `db:"trading_style" json:"tradingStyle"`
	Goals        null.String `db:"goals" json:"goals"`
}

func (TradingProfile) TableName() string {
	return "user_profile"
}

// Session is the identity carried by the signed cookie merged with the
// authoritative account fields read from storage.
type Session struct {
	UserID           string `json:"userId"`
	DiscordID        string `json:"discordId"`
	Username         string `json:"username"`
	DiscordUsername  string `json:"discordUsername,omitempty"`
	AvatarURL        string `json:"avatarUrl,omitempty"`
	DiscordAvatarURL string `json:"discordAvatarUrl,omitempty"`
	Plan             string `json:"plan"`
	IsAdmin          bool   `json:"isAdmin"`
	IsSubscriber     bool   `json:"isSubscriber"`
	TrialActive      bool   `json:"trialActive"`
	TrialEndsAt      *int64 `json:"trialEndsAt"`
}

type TrialStatus struct {
	Active    bool   `json:"active"`
	TrialUsed bool   `json:"trialUsed"`
	EndsAt    *int64 `json:"endsAt"`
	Plan      string `json:"plan"`
}
