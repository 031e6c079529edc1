package mentor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCapacity = 10
	MinCapacity     = 5
	MaxCapacity     = 20

	historyLimit        = 200
	feedbackListLimit   = 200
	modelHistoryTurns   = 8
	modelTurnMaxRunes   = 2000
	defaultModeTokens   = 800
	maxModeTokens       = 1200
	contextSignalsLimit = 10
)

var (
	ErrMissingMessage   = errors.New("missing_message")
	ErrMissingMessageID = errors.New("missing_message_id")
	ErrNotFound         = errors.New("not_found")
)

type Repository interface {
	SaveMessage(ctx context.Context, msg *entity.MentorMessage) error
	History(ctx context.Context, userID string, limit uint64) ([]entity.MentorMessage, error)
	Clear(ctx context.Context, userID string) error
	SetPinned(ctx context.Context, userID, messageID string, pinned bool) (int64, error)
	EnforceLimit(ctx context.Context, userID string, keep int) (int64, error)
	UpsertFeedback(ctx context.Context, fb *entity.MentorFeedback) error
	DeleteFeedbackForMessage(ctx context.Context, userID, messageID string) error
	ListFeedback(ctx context.Context, limit uint64) ([]entity.MentorFeedback, error)
	DeleteFeedback(ctx context.Context, id int64) (int64, error)
}

type UserStore interface {
	GetByDiscordID(ctx context.Context, discordID string) (*entity.User, error)
	GetPreferences(ctx context.Context, discordID string) (entity.JSONMap, error)
	SavePreferences(ctx context.Context, discordID string, prefs entity.JSONMap) error
}

type LanguageModel interface {
	Enabled() bool
	ModelFor(mode string) string
	Chat(ctx context.Context, model string, messages []entity.ChatTurn, maxTokens int) (string, error)
}

type Notifier interface {
	SendDMBestEffort(ctx context.Context, userID, content string) bool
}

// Dependencies groups the stores the mentor reads to personalise answers.
type Dependencies struct {
	Repo      Repository
	Users     UserStore
	Context   ContextSources
	Model     LanguageModel
	Notifier  Notifier
	Publisher entity.EventPublisher
	// FrontendURL is excluded from answer sources.
	FrontendURL     string
	DefaultCapacity int
}

type MentorService struct {
	repo            Repository
	users           UserStore
	sources         ContextSources
	model           LanguageModel
	notifier        Notifier
	publisher       entity.EventPublisher
	internalHosts   map[string]bool
	defaultCapacity int
	now             func() time.Time
}

func NewMentorService(deps Dependencies) *MentorService {
	capacity := deps.DefaultCapacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MentorService{
		repo:            deps.Repo,
		users:           deps.Users,
		sources:         deps.Context,
		model:           deps.Model,
		notifier:        deps.Notifier,
		publisher:       deps.Publisher,
		internalHosts:   internalHosts(deps.FrontendURL),
		defaultCapacity: ClampCapacity(capacity, DefaultCapacity),
		now:             time.Now,
	}
}

// ClampCapacity rounds v into 5..20. Non numeric input yields def.
func ClampCapacity(v any, def int) int {
	f := util.Float(v)
	if f == nil {
		return def
	}
	return max(MinCapacity, min(MaxCapacity, int(math.Round(*f))))
}

// HistoryCeiling is the number of unpinned messages kept for a capacity,
// counting a user message and its answer separately.
func HistoryCeiling(capacity int) int {
	return max(MinCapacity*2, min(MaxCapacity*2, capacity*2))
}

type ChatRequest struct {
	Message          string            `json:"message"`
	Symbol           string            `json:"symbol"`
	Mode             string            `json:"mode"`
	History          []entity.ChatTurn `json:"history"`
	WebSearchEnabled bool              `json:"webSearchEnabled"`
}

type ChatResponse struct {
	Answer     string                `json:"answer"`
	Context    *Context              `json:"context"`
	Sources    []Source              `json:"sources"`
	Profile    *ProfileView          `json:"profile"`
	MessageID  string                `json:"messageId"`
	ResponseID string                `json:"responseId"`
	Settings   entity.MentorSettings `json:"settings"`
}

// Chat answers one user message with the personalised context, persists
// both sides of the exchange and trims the stored history.
func (s *MentorService) Chat(ctx context.Context, user Requester, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrMissingMessage
	}

	mode := entity.MentorModeDefault
	if req.Mode == entity.MentorModeMax {
		mode = entity.MentorModeMax
	}
	nowMillis := s.now().UnixMilli()
	userMessageID := fmt.Sprintf("usr-%d-%s", nowMillis, uuid.NewString())
	assistantMessageID := fmt.Sprintf("bot-%d-%s", nowMillis, uuid.NewString())

	history := trimHistory(req.History)
	settings := s.Settings(ctx, user.ID)

	mctx := s.buildContext(ctx, user, req, history)
	answer := s.generate(ctx, user, req, mode, history, mctx)
	sources := s.deriveSources(req, answer, mctx)

	s.persist(ctx, user.ID, mode, settings.MessageCapacity, []*entity.MentorMessage{
		{
			UserID:    user.ID,
			MessageID: userMessageID,
			Role:      entity.MentorRoleUser,
			Content:   req.Message,
			Mode:      null.StringFrom(mode),
			Metadata: entity.JSONMap{
				"webSearchEnabled": req.WebSearchEnabled,
				"historyCount":     len(req.History),
			},
		},
		{
			UserID:    user.ID,
			MessageID: assistantMessageID,
			Role:      entity.MentorRoleAssistant,
			Content:   answer,
			Mode:      null.StringFrom(mode),
			Metadata:  entity.JSONMap{"sources": sources},
		},
	})

	return &ChatResponse{
		Answer:     answer,
		Context:    mctx,
		Sources:    sources,
		Profile:    mctx.Profile,
		MessageID:  userMessageID,
		ResponseID: assistantMessageID,
		Settings:   settings,
	}, nil
}

func (s *MentorService) persist(ctx context.Context, userID, mode string, capacity int, messages []*entity.MentorMessage) {
	logger := logrus.WithFields(logrus.Fields{"userID": userID, "mode": mode})
	for _, msg := range messages {
		if err := s.repo.SaveMessage(ctx, msg); err != nil {
			logger.Warnf("persist mentor message: %v", err)
			return
		}
	}
	if _, err := s.repo.EnforceLimit(ctx, userID, HistoryCeiling(capacity)); err != nil {
		logger.Warnf("enforce mentor history limit: %v", err)
	}
}

func trimHistory(items []entity.ChatTurn) []entity.ChatTurn {
	if len(items) > modelHistoryTurns {
		items = items[len(items)-modelHistoryTurns:]
	}
	out := make([]entity.ChatTurn, 0, len(items))
	for _, item := range items {
		role := entity.MentorRoleUser
		if item.Role == entity.MentorRoleAssistant {
			role = entity.MentorRoleAssistant
		}
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}
		if runes := []rune(content); len(runes) > modelTurnMaxRunes {
			content = string(runes[len(runes)-modelTurnMaxRunes:])
		}
		out = append(out, entity.ChatTurn{Role: role, Content: content})
	}
	return out
}

// Settings reads the capacity stored in the user preferences.
func (s *MentorService) Settings(ctx context.Context, userID string) entity.MentorSettings {
	settings := entity.MentorSettings{MessageCapacity: s.defaultCapacity}
	prefs, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		logrus.WithField("userID", userID).Warnf("load mentor settings: %v", err)
		return settings
	}
	if section, ok := prefs["mentor"].(map[string]any); ok {
		settings.MessageCapacity = ClampCapacity(section["messageCapacity"], s.defaultCapacity)
	}
	return settings
}

// UpdateSettings stores the clamped capacity and trims the history to it.
func (s *MentorService) UpdateSettings(ctx context.Context, userID string, rawCapacity any) (entity.MentorSettings, error) {
	capacity := ClampCapacity(rawCapacity, s.defaultCapacity)

	prefs, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return entity.MentorSettings{}, err
	}
	next := entity.JSONMap{}
	for k, v := range prefs {
		next[k] = v
	}
	section := map[string]any{}
	if current, ok := prefs["mentor"].(map[string]any); ok {
		for k, v := range current {
			section[k] = v
		}
	}
	section["messageCapacity"] = capacity
	next["mentor"] = section

	if err := s.users.SavePreferences(ctx, userID, next); err != nil {
		return entity.MentorSettings{}, err
	}
	if _, err := s.repo.EnforceLimit(ctx, userID, HistoryCeiling(capacity)); err != nil {
		return entity.MentorSettings{}, err
	}
	return entity.MentorSettings{MessageCapacity: capacity}, nil
}

func (s *MentorService) History(ctx context.Context, userID string) ([]entity.MentorMessage, entity.MentorSettings, error) {
	settings := s.Settings(ctx, userID)
	messages, err := s.repo.History(ctx, userID, historyLimit)
	if err != nil {
		return nil, settings, err
	}
	for i := range messages {
		if messages[i].Metadata == nil {
			messages[i].Metadata = entity.JSONMap{}
		}
	}
	return messages, settings, nil
}

// ClearHistory deletes every stored message and tells the user it happened.
func (s *MentorService) ClearHistory(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return err
	}

	clearedAt := s.now().UTC()
	if s.notifier != nil {
		s.notifier.SendDMBestEffort(ctx, userID, fmt.Sprintf(
			"Hi there, we cleared your Mentor chat history on %s. If this wasn't you, please reach out to support immediately.",
			clearedAt.Format("Jan 2, 2006, 3:04 PM UTC"),
		))
	}

	notification := entity.NewUserNotification(userID, "info", "Mentor chat history cleared",
		"Your Mentor conversation history has been erased. This cannot be undone.").
		WithAction("Open Mentor", "/dashboard/mentor")
	notification.Notification.Meta = map[string]any{"clearedAt": entity.FormatISOMillis(clearedAt)}
	s.publish(ctx, constant.DashboardEventUserNotification, notification)
	return nil
}

func (s *MentorService) Pin(ctx context.Context, userID, messageID string, pinned bool) error {
	if strings.TrimSpace(messageID) == "" {
		return ErrMissingMessageID
	}
	affected, err := s.repo.SetPinned(ctx, userID, messageID, pinned)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type FeedbackInput struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	Response  string `json:"response"`
	Prompt    string `json:"prompt"`
	Mode      string `json:"mode"`
}

// RecordFeedback upserts a like or dislike. Any other reaction withdraws the
// earlier feedback and reports deleted.
func (s *MentorService) RecordFeedback(ctx context.Context, user Requester, in FeedbackInput) (deleted bool, err error) {
	if strings.TrimSpace(in.MessageID) == "" {
		return false, ErrMissingMessageID
	}

	reaction := strings.ToLower(in.Reaction)
	if reaction != entity.MentorReactionLike && reaction != entity.MentorReactionDislike {
		return true, s.repo.DeleteFeedbackForMessage(ctx, user.ID, in.MessageID)
	}

	mode := entity.MentorModeDefault
	if in.Mode == entity.MentorModeMax {
		mode = entity.MentorModeMax
	}
	plan := user.Plan
	if plan == "" {
		plan = constant.PlanFree
	}

	fb := &entity.MentorFeedback{
		UserID:    user.ID,
		Username:  null.NewString(user.Username, user.Username != ""),
		Plan:      null.StringFrom(plan),
		MessageID: in.MessageID,
		Reaction:  reaction,
		Response:  in.Response,
		Prompt:    null.StringFrom(in.Prompt),
		Mode:      null.StringFrom(mode),
	}
	return false, s.repo.UpsertFeedback(ctx, fb)
}

func (s *MentorService) ListFeedback(ctx context.Context) ([]entity.MentorFeedback, error) {
	return s.repo.ListFeedback(ctx, feedbackListLimit)
}

func (s *MentorService) DeleteFeedback(ctx context.Context, id int64) error {
	_, err := s.repo.DeleteFeedback(ctx, id)
	return err
}

func (s *MentorService) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		logrus.WithField("event", eventType).Warnf("publish failed: %v", err)
	}
}
