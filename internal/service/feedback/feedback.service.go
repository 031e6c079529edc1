package feedback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/sirupsen/logrus"
)

const adminListLimit = 250

var (
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNoChanges          = errors.New("no_changes")
	ErrNotFound           = errors.New("not_found")
)

var (
	categories = []string{"bug", "feature", "billing", "mentor", "performance", "other"}
	severities = []string{"low", "medium", "high", "critical"}
	statuses   = []string{entity.FeedbackStatusNew, entity.FeedbackStatusInProgress, entity.FeedbackStatusResolved, entity.FeedbackStatusClosed}
)

type Repository interface {
	Create(ctx context.Context, f *entity.UserFeedback) error
	List(ctx context.Context, limit uint64) ([]entity.UserFeedback, error)
	Patch(ctx context.Context, id int64, patch entity.FeedbackPatch) (*entity.UserFeedback, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]entity.User, error)
}

type Webhook interface {
	PostFeedback(ctx context.Context, embed provider.FeedbackEmbed) error
}

// Author identifies who submitted a report.
type Author struct {
	ID              string
	Username        string
	DiscordUsername string
	Plan            string
}

func (a Author) displayName() string {
	switch {
	case a.Username != "":
		return a.Username
	case a.DiscordUsername != "":
		return a.DiscordUsername
	}
	return a.ID
}

type SubmitInput struct {
	Category           any `json:"category"`
	Severity           any `json:"severity"`
	Title              any `json:"title"`
	Description        any `json:"description"`
	ReproSteps         any `json:"reproSteps"`
	AttachmentURL      any `json:"attachmentUrl"`
	IncludeDiagnostics any `json:"includeDiagnostics"`
	AllowContact       any `json:"allowContact"`
}

type PatchInput struct {
	Status          any `json:"status"`
	ResolutionNotes any `json:"resolutionNotes"`
}

type FeedbackService struct {
	repo        Repository
	admins      AdminDirectory
	webhook     Webhook
	publisher   entity.EventPublisher
	frontendURL string
}

func NewFeedbackService(repo Repository, admins AdminDirectory, webhook Webhook, publisher entity.EventPublisher, frontendURL string) *FeedbackService {
	return &FeedbackService{
		repo:        repo,
		admins:      admins,
		webhook:     webhook,
		publisher:   publisher,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func pick(v any, allowed []string, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	s = strings.ToLower(s)
	if !slices.Contains(allowed, s) {
		return def
	}
	return s
}

func optionalString(v any) null.String {
	s, ok := v.(string)
	if !ok {
		return null.String{}
	}
	return null.StringFrom(strings.TrimSpace(s))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}

func notificationLevel(severity string) string {
	switch severity {
	case "critical":
		return "danger"
	case "high":
		return "warning"
	}
	return "info"
}

// Submit stores a report, then fans it out to admins and the feedback webhook.
// Delivery failures never fail the submission.
func (s *FeedbackService) Submit(ctx context.Context, author Author, in SubmitInput) (int64, error) {
	category := pick(in.Category, categories, "other")
	severity := pick(in.Severity, severities, "medium")

	title, _ := in.Title.(string)
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < 4 || n > 160 {
		return 0, ErrInvalidTitle
	}
	description, _ := in.Description.(string)
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) < 10 {
		return 0, ErrInvalidDescription
	}

	plan := author.Plan
	if plan == "" {
		plan = constant.PlanFree
	}
	includeDiagnostics, _ := in.IncludeDiagnostics.(bool)
	allowContact := true
	if b, ok := in.AllowContact.(bool); ok && !b {
		allowContact = false
	}

	item := &entity.UserFeedback{
		UserID:             author.ID,
		Username:           null.NewString(author.Username, author.Username != ""),
		Plan:               null.StringFrom(plan),
		Category:           category,
		Severity:           severity,
		Title:              title,
		Description:        null.StringFrom(description),
		ReproSteps:         optionalString(in.ReproSteps),
		AttachmentURL:      optionalString(in.AttachmentURL),
		IncludeDiagnostics: null.BoolFrom(includeDiagnostics),
		AllowContact:       null.BoolFrom(allowContact),
	}
	if err := s.repo.Create(ctx, item); err != nil {
		logrus.WithField("userID", author.ID).Errorf("create feedback: %v", err)
		return 0, err
	}

	s.notifyAdmins(ctx, author, item)
	s.postWebhook(ctx, author, item)
	return item.ID, nil
}

func (s *FeedbackService) reviewPath(id int64) string {
	if id == 0 {
		return "/dashboard/admin?tab=feedback"
	}
	return "/dashboard/admin?tab=feedback&id=" + strconv.FormatInt(id, 10)
}

func (s *FeedbackService) notifyAdmins(ctx context.Context, author Author, item *entity.UserFeedback) {
	if s.admins == nil || s.publisher == nil {
		return
	}
	admins, err := s.admins.ListAdmins(ctx)
	if err != nil {
		logrus.Warnf("load admins: %v", err)
		return
	}

	title := fmt.Sprintf("New %s feedback (%s)", capitalize(item.Category), strings.ToUpper(item.Severity))
	snippet, cut := truncateRunes(item.Description.String, 140)
	if cut {
		snippet += "…"
	}
	body := item.Title + " - " + snippet + "\nFrom: " + author.displayName()
	if author.DiscordUsername != "" {
		body += " (" + author.DiscordUsername + ")"
	}

	seen := map[string]bool{}
	for _, admin := range admins {
		if admin.DiscordID == "" || seen[admin.DiscordID] {
			continue
		}
		seen[admin.DiscordID] = true

		event := entity.NewUserNotification(admin.DiscordID, notificationLevel(item.Severity), title, body).
			WithAction("Review", s.reviewPath(item.ID))
		event.Notification.Meta = map[string]any{
			"feedbackId": item.ID,
			"category":   item.Category,
			"severity":   item.Severity,
			"author": map[string]any{
				"id":              author.ID,
				"username":        nullable(author.Username),
				"discordUsername": nullable(author.DiscordUsername),
				"plan":            nullable(author.Plan),
			},
		}
		if err := s.publisher.Publish(ctx, constant.DashboardEventUserNotification, event); err != nil {
			logrus.WithField("adminID", admin.DiscordID).Warnf("notify admin: %v", err)
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *FeedbackService) postWebhook(ctx context.Context, author Author, item *entity.UserFeedback) {
	if s.webhook == nil {
		return
	}
	severity := strings.ToUpper(item.Severity)
	category := capitalize(item.Category)
	plan := author.Plan
	if plan == "" {
		plan = constant.PlanFree
	}
	discord := author.DiscordUsername
	if discord == "" {
		discord = "unknown"
	}
	snippet, _ := truncateRunes(item.Description.String, 1800)

	description := strings.Join([]string{
		"**Title:** " + item.Title,
		fmt.Sprintf("**From:** %s (Plan: %s)", author.displayName(), plan),
		fmt.Sprintf("**Discord:** %s (ID: %s)", discord, author.ID),
		"**Severity:** " + severity,
		"**Category:** " + category,
		"",
		snippet,
	}, "\n")

	err := s.webhook.PostFeedback(ctx, provider.FeedbackEmbed{
		Title:       fmt.Sprintf("New %s %s feedback", severity, category),
		Description: description,
		Severity:    item.Severity,
		URL:         s.frontendURL + s.reviewPath(item.ID),
	})
	if err != nil {
		logrus.WithField("feedbackID", item.ID).Warnf("feedback webhook: %v", err)
	}
}

// List returns the newest reports; lookup failures yield an empty list.
func (s *FeedbackService) List(ctx context.Context) []entity.UserFeedback {
	items, err := s.repo.List(ctx, adminListLimit)
	if err != nil {
		logrus.Errorf("list feedback: %v", err)
		return []entity.UserFeedback{}
	}
	return items
}

func (s *FeedbackService) Patch(ctx context.Context, adminID string, id int64, in PatchInput) (*entity.UserFeedback, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	var patch entity.FeedbackPatch
	patch.AdminID = adminID
	if raw, ok := in.Status.(string); ok {
		if status := strings.ToLower(raw); slices.Contains(statuses, status) {
			patch.Status = &status
		}
	}
	if raw, ok := in.ResolutionNotes.(string); ok {
		notes := strings.TrimSpace(raw)
		patch.ResolutionNotes = &notes
	}
	if patch.Status == nil && patch.ResolutionNotes == nil {
		return nil, ErrNoChanges
	}

	item, err := s.repo.Patch(ctx, id, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return item, err
}

func (s *FeedbackService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	_, err := s.repo.Delete(ctx, id)
	return err
}
