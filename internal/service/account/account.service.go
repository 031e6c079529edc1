package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/sirupsen/logrus"
)

const (
	defaultTrialDuration = 7 * 24 * time.Hour
	adminUserListLimit   = 200

	usernameMinLength = 2
	usernameMaxLength = 32
)

var (
	ErrInvalidUsername   = errors.New("Invalid username")
	ErrAlreadySubscribed = errors.New("already_subscribed")
	ErrTrialAlreadyUsed  = errors.New("trial_already_used")
	ErrMissingCode       = errors.New("missing_code")
)

// preferenceSections are merged one level deeper than the rest of the document.
var preferenceSections = []string{"general", "notifications", "privacy", "mentor"}

var defaultTradingProfile = map[string]string{
	"skillLevel":   "Intermediate",
	"riskAppetite": "Balanced",
	"focus":        "Both",
	"tradingStyle": "Swing trading",
	"goals":        "Grow account steadily",
}

type UserRepository interface {
	GetByDiscordID(ctx context.Context, discordID string) (*entity.User, error)
	UpsertLogin(ctx context.Context, discordID, username, plan string, isAdmin bool) error
	UpdateUsername(ctx context.Context, discordID, username, plan string, isAdmin bool) error
	GetPreferences(ctx context.Context, discordID string) (entity.JSONMap, error)
	SavePreferences(ctx context.Context, discordID string, prefs entity.JSONMap) error
	StartTrial(ctx context.Context, discordID string, startedAt, endsAt time.Time) error
	List(ctx context.Context, limit uint64) ([]entity.User, error)
	AdminPatch(ctx context.Context, discordID string, patch entity.AdminUserPatch) error
}

type TradingProfileRepository interface {
	Get(ctx context.Context, userID string) (*entity.TradingProfile, error)
	Upsert(ctx context.Context, profile *entity.TradingProfile) error
}

type Eraser interface {
	EraseUser(ctx context.Context, userID string) error
}

type Discord interface {
	ExchangeCode(ctx context.Context, code string) (*provider.DiscordUser, error)
	GuildMemberPlan(ctx context.Context, userID string) (provider.MemberPlan, error)
	SendDMBestEffort(ctx context.Context, userID, content string) bool
}

type AccountService struct {
	users         UserRepository
	profiles      TradingProfileRepository
	eraser        Eraser
	discord       Discord
	publisher     entity.EventPublisher
	trialDuration time.Duration
	now           func() time.Time
}

func NewAccountService(users UserRepository, profiles TradingProfileRepository, eraser Eraser, discord Discord, publisher entity.EventPublisher, trialDuration time.Duration) *AccountService {
	if trialDuration <= 0 {
		trialDuration = defaultTrialDuration
	}
	return &AccountService{
		users:         users,
		profiles:      profiles,
		eraser:        eraser,
		discord:       discord,
		publisher:     publisher,
		trialDuration: trialDuration,
		now:           time.Now,
	}
}

// Login completes the OAuth code exchange, derives the plan from guild roles
// and records the user.
func (s *AccountService) Login(ctx context.Context, code string) (*Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}

	user, err := s.discord.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithField("discordID", user.ID)

	member, err := s.discord.GuildMemberPlan(ctx, user.ID)
	if err != nil {
		logger.Warnf("guild role lookup failed, defaulting to free: %v", err)
		member = provider.MemberPlan{Plan: constant.PlanFree}
	}

	if err := s.users.UpsertLogin(ctx, user.ID, user.Username, member.Plan, member.IsAdmin); err != nil {
		logger.Errorf("upsert login user: %v", err)
		return nil, err
	}

	return &Identity{
		DiscordID: user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL(),
	}, nil
}

// Session merges the cookie identity with the stored account. An active
// trial lifts a free plan to Pro.
func (s *AccountService) Session(ctx context.Context, id Identity) (*entity.Session, error) {
	session := &entity.Session{
		UserID:           id.DiscordID,
		DiscordID:        id.DiscordID,
		Username:         id.Username,
		DiscordUsername:  id.Username,
		AvatarURL:        id.AvatarURL,
		DiscordAvatarURL: id.AvatarURL,
		Plan:             constant.PlanFree,
	}

	user, err := s.users.GetByDiscordID(ctx, id.DiscordID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return session, nil
	case err != nil:
		return nil, err
	}

	if user.Username.Valid && user.Username.String != "" {
		session.Username = user.Username.String
	}
	if user.Plan.Valid && user.Plan.String != "" {
		session.Plan = user.Plan.String
	}
	session.IsAdmin = user.IsAdmin.Valid && user.IsAdmin.Bool

	if user.TrialActive(s.now()) {
		session.TrialActive = true
		endsAt := user.TrialEndsAt.Time.UnixMilli()
		session.TrialEndsAt = &endsAt
		if session.Plan == constant.PlanFree {
			session.Plan = constant.PlanPro
		}
	}
	session.IsSubscriber = constant.IsPaidPlan(session.Plan)

	return session, nil
}

// UpdateUsername stores a display name of 2 to 32 characters and returns the
// identity to re-sign.
func (s *AccountService) UpdateUsername(ctx context.Context, id Identity, raw string) (Identity, error) {
	username := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(username); n < usernameMinLength || n > usernameMaxLength {
		return id, ErrInvalidUsername
	}

	plan, isAdmin := constant.PlanFree, false
	user, err := s.users.GetByDiscordID(ctx, id.DiscordID)
	switch {
	case err == nil:
		if user.Plan.Valid && user.Plan.String != "" {
			plan = user.Plan.String
		}
		isAdmin = user.IsAdmin.Valid && user.IsAdmin.Bool
	case !errors.Is(err, repository.ErrNotFound):
		return id, err
	}

	if err := s.users.UpdateUsername(ctx, id.DiscordID, username, plan, isAdmin); err != nil {
		return id, err
	}

	id.Username = username
	return id, nil
}

// TradingProfile is nil when the user never saved one.
func (s *AccountService) TradingProfile(ctx context.Context, userID string) (*entity.TradingProfile, error) {
	return s.profiles.Get(ctx, userID)
}

// SaveTradingProfile replaces missing or non-string fields with defaults.
func (s *AccountService) SaveTradingProfile(ctx context.Context, userID string, input map[string]any) (*entity.TradingProfile, error) {
	field := func(key string) string {
		if v, ok := input[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return defaultTradingProfile[key]
	}

	profile := &entity.TradingProfile{UserID: userID}
	profile.SkillLevel.SetValid(field("skillLevel"))
	profile.RiskAppetite.SetValid(field("riskAppetite"))
	profile.Focus.SetValid(field("focus"))
	profile.TradingStyle.SetValid(field("tradingStyle"))
	profile.Goals.SetValid(field("goals"))

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *AccountService) Preferences(ctx context.Context, userID string) (entity.JSONMap, error) {
	return s.users.GetPreferences(ctx, userID)
}

// SavePreferences merges incoming into the stored document and returns the result.
func (s *AccountService) SavePreferences(ctx context.Context, userID string, incoming map[string]any) (entity.JSONMap, error) {
	current, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := MergePreferences(current, incoming)
	if err := s.users.SavePreferences(ctx, userID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergePreferences overlays incoming on current at the top level and one
// level deep for the known sections.
func MergePreferences(current, incoming map[string]any) entity.JSONMap {
	merged := entity.JSONMap{}
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}

	for _, section := range preferenceSections {
		prev, prevOK := current[section].(map[string]any)
		next, nextOK := incoming[section].(map[string]any)
		if !prevOK && !nextOK {
			continue
		}
		combined := map[string]any{}
		for k, v := range prev {
			combined[k] = v
		}
		for k, v := range next {
			combined[k] = v
		}
		merged[section] = combined
	}

	return merged
}

func (s *AccountService) TrialStatus(ctx context.Context, userID string) (entity.TrialStatus, error) {
	status := entity.TrialStatus{Plan: constant.PlanFree}

	user, err := s.users.GetByDiscordID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return status, nil
	case err != nil:
		return status, err
	}

	if user.Plan.Valid && user.Plan.String != "" {
		status.Plan = user.Plan.String
	}
	status.TrialUsed = user.TrialUsed.Valid && user.TrialUsed.Bool
	status.Active = user.TrialActive(s.now())
	if user.TrialEndsAt.Valid {
		endsAt := user.TrialEndsAt.Time.UnixMilli()
		status.EndsAt = &endsAt
	}
	return status, nil
}

// StartTrial opens the one-time trial window. An active trial is returned as is.
func (s *AccountService) StartTrial(ctx context.Context, userID string) (entity.TrialStatus, error) {
	status, err := s.TrialStatus(ctx, userID)
	if err != nil {
		return status, err
	}

	if status.Plan != constant.PlanFree {
		return status, ErrAlreadySubscribed
	}
	if status.Active {
		return status, nil
	}
	if status.TrialUsed {
		return status, ErrTrialAlreadyUsed
	}

	now := s.now()
	endsAt := now.Add(s.trialDuration)
	if err := s.users.StartTrial(ctx, userID, now, endsAt); err != nil {
		return status, err
	}

	endsAtMillis := endsAt.UnixMilli()
	return entity.TrialStatus{
		Active:    true,
		TrialUsed: true,
		EndsAt:    &endsAtMillis,
		Plan:      constant.PlanFree,
	}, nil
}

// Erase removes every row owned by the user, then notifies them. Delivery
// failures after the erase are logged only.
func (s *AccountService) Erase(ctx context.Context, userID string) (time.Time, error) {
	erasedAt := s.now().UTC()
	logger := logrus.WithField("userID", userID)

	if err := s.eraser.EraseUser(ctx, userID); err != nil {
		logger.Errorf("erase account: %v", err)
		return time.Time{}, err
	}

	s.discord.SendDMBestEffort(ctx, userID, fmt.Sprintf(
		"Hi, we erased your Jack Of All Trades data on %s. If this wasn't you, contact support immediately.",
		erasedAt.Format("Jan 2, 2006 15:04 UTC"),
	))

	notification := entity.NewUserNotification(userID, "warning", "Account data erased",
		"All saved alerts, mentor conversations, watchlists, and portfolio entries have been removed.").
		WithAction("Sign in again", "/")
	notification.Notification.Meta = map[string]any{"erasedAt": entity.FormatISOMillis(erasedAt)}
	s.publish(ctx, constant.DashboardEventUserNotification, notification)

	s.publish(ctx, constant.DashboardEventAccountDeleted, entity.AccountDeletedEvent{
		UserID:    userID,
		Reason:    "self_service_delete",
		Message:   "Your account data has been erased. Sign in again to start fresh.",
		Timestamp: entity.FormatISOMillis(erasedAt),
	})

	return erasedAt, nil
}

// ListUsers returns an empty list when storage fails.
func (s *AccountService) ListUsers(ctx context.Context) []entity.User {
	users, err := s.users.List(ctx, adminUserListLimit)
	if err != nil {
		logrus.Errorf("list users: %v", err)
		return []entity.User{}
	}
	return users
}

func (s *AccountService) PatchUser(ctx context.Context, discordID string, patch entity.AdminUserPatch) error {
	return s.users.AdminPatch(ctx, discordID, patch)
}

func (s *AccountService) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		logrus.WithField("event", eventType).Warnf("publish failed: %v", err)
	}
}
