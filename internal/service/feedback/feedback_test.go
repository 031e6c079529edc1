package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items   []*entity.UserFeedback
	patches []entity.FeedbackPatch
}

func (m *memoryRepo) Create(ctx context.Context, f *entity.UserFeedback) error {
	f.ID = int64(len(m.items) + 1)
	m.items = append(m.items, f)
	return nil
}

func (m *memoryRepo) List(ctx context.Context, limit uint64) ([]entity.UserFeedback, error) {
	out := []entity.UserFeedback{}
	for _, f := range m.items {
		out = append(out, *f)
	}
	return out, nil
}

func (m *memoryRepo) Patch(ctx context.Context, id int64, patch entity.FeedbackPatch) (*entity.UserFeedback, error) {
	m.patches = append(m.patches, patch)
	for _, f := range m.items {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) (int64, error) {
	return 1, nil
}

type staticAdmins struct {
	admins []entity.User
	err    error
}

func (s staticAdmins) ListAdmins(ctx context.Context) ([]entity.User, error) {
	return s.admins, s.err
}

type recordingWebhook struct {
	embeds []provider.FeedbackEmbed
	err    error
}

func (w *recordingWebhook) PostFeedback(ctx context.Context, embed provider.FeedbackEmbed) error {
	w.embeds = append(w.embeds, embed)
	return w.err
}

type recordingPublisher struct {
	events []entity.UserNotificationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	if eventType == constant.DashboardEventUserNotification {
		p.events = append(p.events, payload.(entity.UserNotificationEvent))
	}
	return nil
}

var author = Author{ID: "u1", Username: "trader", DiscordUsername: "trader#1", Plan: constant.PlanPro}

func validInput() SubmitInput {
	return SubmitInput{
		Category:    "BUG",
		Severity:    "critical",
		Title:       "  Chart freezes  ",
		Description: strings.Repeat("x", 150),
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc := NewFeedbackService(&memoryRepo{}, nil, nil, nil, "")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*SubmitInput)
		want   error
	}{
		{"short title", func(in *SubmitInput) { in.Title = "abc" }, ErrInvalidTitle},
		{"long title", func(in *SubmitInput) { in.Title = strings.Repeat("t", 161) }, ErrInvalidTitle},
		{"title not a string", func(in *SubmitInput) { in.Title = 42 }, ErrInvalidTitle},
		{"short description", func(in *SubmitInput) { in.Description = "too short" }, ErrInvalidDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Submit(ctx, author, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmit_NormalizesAndNotifies(t *testing.T) {
	repo := &memoryRepo{}
	webhook := &recordingWebhook{err: errors.New("webhook down")}
	publisher := &recordingPublisher{}
	admins := staticAdmins{admins: []entity.User{{DiscordID: "a1"}, {DiscordID: "a1"}, {DiscordID: ""}, {DiscordID: "a2"}}}
	svc := NewFeedbackService(repo, admins, webhook, publisher, "https://dash.example.com/")

	in := validInput()
	in.Category = "unknown"
	in.Severity = "CRITICAL"
	in.IncludeDiagnostics = "true"
	in.AllowContact = false

	id, err := svc.Submit(context.Background(), author, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	stored := repo.items[0]
	assert.Equal(t, "other", stored.Category)
	assert.Equal(t, "critical", stored.Severity)
	assert.Equal(t, "Chart freezes", stored.Title)
	assert.False(t, stored.IncludeDiagnostics.Bool)
	assert.False(t, stored.AllowContact.Bool)
	assert.False(t, stored.ReproSteps.Valid)

	require.Len(t, publisher.events, 2)
	first := publisher.events[0]
	assert.Equal(t, "a1", first.UserID)
	assert.Equal(t, "danger", first.Notification.Level)
	assert.Equal(t, "New Other feedback (CRITICAL)", first.Notification.Title)
	assert.True(t, strings.HasPrefix(first.Notification.Body, "Chart freezes - "+strings.Repeat("x", 140)+"…"))
	assert.True(t, strings.HasSuffix(first.Notification.Body, "\nFrom: trader (trader#1)"))
	require.NotNil(t, first.Notification.ActionHref)
	assert.Equal(t, "/dashboard/admin?tab=feedback&id=1", *first.Notification.ActionHref)
	assert.Equal(t, int64(1), first.Notification.Meta["feedbackId"])

	require.Len(t, webhook.embeds, 1)
	embed := webhook.embeds[0]
	assert.Equal(t, "New CRITICAL Other feedback", embed.Title)
	assert.Equal(t, "https://dash.example.com/dashboard/admin?tab=feedback&id=1", embed.URL)
	assert.Contains(t, embed.Description, "**From:** trader (Plan: Pro)")
	assert.Contains(t, embed.Description, "**Discord:** trader#1 (ID: u1)")
}

func TestSubmit_AdminLookupFailureStillSucceeds(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := NewFeedbackService(&memoryRepo{}, staticAdmins{err: errors.New("db")}, nil, publisher, "")

	in := validInput()
	in.Severity = "high"
	_, err := svc.Submit(context.Background(), Author{ID: "u2"}, in)
	require.NoError(t, err)
	assert.Empty(t, publisher.events)
}

func TestNotificationLevel(t *testing.T) {
	assert.Equal(t, "danger", notificationLevel("critical"))
	assert.Equal(t, "warning", notificationLevel("high"))
	assert.Equal(t, "info", notificationLevel("medium"))
	assert.Equal(t, "info", notificationLevel("low"))
}

func TestPatch(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewFeedbackService(repo, nil, nil, nil, "")
	ctx := context.Background()
	_, err := svc.Submit(ctx, author, validInput())
	require.NoError(t, err)

	_, err = svc.Patch(ctx, "admin", 0, PatchInput{Status: "resolved"})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = svc.Patch(ctx, "admin", 1, PatchInput{Status: "bogus"})
	assert.ErrorIs(t, err, ErrNoChanges)

	_, err = svc.Patch(ctx, "admin", 9, PatchInput{Status: "closed"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Patch(ctx, "admin", 1, PatchInput{Status: "IN_PROGRESS", ResolutionNotes: "  looking  "})
	require.NoError(t, err)
	last := repo.patches[len(repo.patches)-1]
	require.NotNil(t, last.Status)
	assert.Equal(t, entity.FeedbackStatusInProgress, *last.Status)
	require.NotNil(t, last.ResolutionNotes)
	assert.Equal(t, "looking", *last.ResolutionNotes)
	assert.Equal(t, "admin", last.AdminID)
}
