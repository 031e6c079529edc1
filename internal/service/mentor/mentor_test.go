package mentor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	seq      int64
	clock    time.Time
	messages []entity.MentorMessage
	feedback map[string]entity.MentorFeedback
	keeps    []int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{clock: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), feedback: map[string]entity.MentorFeedback{}}
}

func (m *memoryRepo) SaveMessage(ctx context.Context, msg *entity.MentorMessage) error {
	m.seq++
	m.clock = m.clock.Add(time.Second)
	msg.ID = m.seq
	msg.CreatedAt = null.TimeFrom(m.clock)
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memoryRepo) History(ctx context.Context, userID string, limit uint64) ([]entity.MentorMessage, error) {
	out := []entity.MentorMessage{}
	for _, msg := range m.messages {
		if msg.UserID == userID && uint64(len(out)) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryRepo) Clear(ctx context.Context, userID string) error {
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.UserID != userID {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memoryRepo) SetPinned(ctx context.Context, userID, messageID string, pinned bool) (int64, error) {
	for i := range m.messages {
		if m.messages[i].UserID == userID && m.messages[i].MessageID == messageID {
			m.messages[i].Pinned = pinned
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memoryRepo) EnforceLimit(ctx context.Context, userID string, keep int) (int64, error) {
	m.keeps = append(m.keeps, keep)
	var unpinned []entity.MentorMessage
	for _, msg := range m.messages {
		if msg.UserID == userID && !msg.Pinned {
			unpinned = append(unpinned, msg)
		}
	}
	sort.Slice(unpinned, func(i, j int) bool { return unpinned[i].CreatedAt.Time.After(unpinned[j].CreatedAt.Time) })
	drop := map[int64]bool{}
	for i, msg := range unpinned {
		if i >= keep {
			drop[msg.ID] = true
		}
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if !drop[msg.ID] {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return int64(len(drop)), nil
}

func (m *memoryRepo) UpsertFeedback(ctx context.Context, fb *entity.MentorFeedback) error {
	m.feedback[fb.UserID+"/"+fb.MessageID] = *fb
	return nil
}

func (m *memoryRepo) DeleteFeedbackForMessage(ctx context.Context, userID, messageID string) error {
	delete(m.feedback, userID+"/"+messageID)
	return nil
}

func (m *memoryRepo) ListFeedback(ctx context.Context, limit uint64) ([]entity.MentorFeedback, error) {
	out := []entity.MentorFeedback{}
	for _, fb := range m.feedback {
		out = append(out, fb)
	}
	return out, nil
}

func (m *memoryRepo) DeleteFeedback(ctx context.Context, id int64) (int64, error) {
	return 0, nil
}

type memoryUsers struct {
	users map[string]*entity.User
}

func (m *memoryUsers) GetByDiscordID(ctx context.Context, id string) (*entity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *memoryUsers) GetPreferences(ctx context.Context, id string) (entity.JSONMap, error) {
	if u, ok := m.users[id]; ok && u.Preferences != nil {
		return u.Preferences, nil
	}
	return entity.JSONMap{}, nil
}

func (m *memoryUsers) SavePreferences(ctx context.Context, id string, prefs entity.JSONMap) error {
	u, ok := m.users[id]
	if !ok {
		u = &entity.User{DiscordID: id}
		m.users[id] = u
	}
	u.Preferences = prefs
	return nil
}

type fakeModel struct {
	enabled  bool
	answer   string
	err      error
	lastMsgs []entity.ChatTurn
	lastMax  int
}

func (f *fakeModel) Enabled() bool { return f.enabled }

func (f *fakeModel) ModelFor(mode string) string { return "model-" + mode }

func (f *fakeModel) Chat(ctx context.Context, model string, messages []entity.ChatTurn, maxTokens int) (string, error) {
	f.lastMsgs = messages
	f.lastMax = maxTokens
	return f.answer, f.err
}

type fakeResolver struct{}

func (fakeResolver) ResolveCoinID(ctx context.Context, s string) (string, error) {
	switch strings.ToUpper(s) {
	case "BTC":
		return "bitcoin", nil
	case "SOL":
		return "solana", nil
	}
	return "", nil
}

type fakeCoins struct{}

func (fakeCoins) CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error) {
	coin := &entity.CoinGeckoCoin{ID: id, Symbol: "btc", Name: "Bitcoin", Description: map[string]string{"en": "<p>Peer to peer   cash</p>"}}
	coin.Links.Homepage = []string{"", "https://bitcoin.org"}
	return coin, nil
}

type fakeNotifier struct{ dms []string }

func (f *fakeNotifier) SendDMBestEffort(ctx context.Context, userID, content string) bool {
	f.dms = append(f.dms, content)
	return true
}

type recordingPublisher struct{ types []string }

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	p.types = append(p.types, eventType)
	return nil
}

type fixture struct {
	repo      *memoryRepo
	users     *memoryUsers
	model     *fakeModel
	notifier  *fakeNotifier
	publisher *recordingPublisher
	svc       *MentorService
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMemoryRepo(),
		users:     &memoryUsers{users: map[string]*entity.User{}},
		model:     &fakeModel{},
		notifier:  &fakeNotifier{},
		publisher: &recordingPublisher{},
	}
	f.svc = NewMentorService(Dependencies{
		Repo:        f.repo,
		Users:       f.users,
		Context:     ContextSources{Resolver: fakeResolver{}, Coins: fakeCoins{}},
		Model:       f.model,
		Notifier:    f.notifier,
		Publisher:   f.publisher,
		FrontendURL: "https://dash.example.com",
	})
	f.svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

var trader = Requester{ID: "u1", Username: "trader", Plan: constant.PlanPro}

func TestClampCapacity(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{nil, 10},
		{"abc", 10},
		{1.0, 5},
		{12.4, 12},
		{12.5, 13},
		{"15", 15},
		{99.0, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampCapacity(tt.in, DefaultCapacity), "input %v", tt.in)
	}
}

func TestHistoryCeiling(t *testing.T) {
	assert.Equal(t, 10, HistoryCeiling(1))
	assert.Equal(t, 20, HistoryCeiling(10))
	assert.Equal(t, 40, HistoryCeiling(50))
}

func TestStripArtifacts(t *testing.T) {
	text := "BTC looks strong here.\n\n### Trading profile\n\n- Skill: Intermediate\n\n- Risk: Balanced\n\nKey levels sit at 68k.\n\n\n\nDone."

	stripped := StripArtifacts(text, false)
	assert.Equal(t, "BTC looks strong here.\n\nKey levels sit at 68k.\n\nDone.", stripped)

	kept := StripArtifacts(text, true)
	assert.Contains(t, kept, "### Trading profile")
	assert.NotContains(t, kept, "\n\n\n")
}

func TestSymbolCandidates(t *testing.T) {
	assert.Equal(t, []string{"SOL", "SOL"}, symbolCandidates("analyze sol"))
	assert.Equal(t, []string{"SOL"}, symbolCandidates("hey, what about sol?"))
}

func TestChat_PersistsAndEnforcesLimit(t *testing.T) {
	f := newFixture()
	f.model.enabled = true
	f.model.answer = "Bitcoin is consolidating.\n\n### Sources\n- https://news.example.org/btc."

	res, err := f.svc.Chat(context.Background(), trader, ChatRequest{
		Message:          "analyze btc for me",
		Mode:             "max",
		WebSearchEnabled: true,
		History:          []entity.ChatTurn{{Role: "user", Content: " earlier "}, {Role: "bot", Content: ""}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bitcoin is consolidating.\n\n### Sources\n- https://news.example.org/btc.", res.Answer)
	assert.True(t, strings.HasPrefix(res.MessageID, "usr-"))
	assert.True(t, strings.HasPrefix(res.ResponseID, "bot-"))
	assert.Equal(t, 10, res.Settings.MessageCapacity)
	assert.Equal(t, 1200, f.model.lastMax)

	require.Len(t, f.model.lastMsgs, 3)
	assert.Equal(t, entity.MentorRoleSystem, f.model.lastMsgs[0].Role)
	assert.Contains(t, f.model.lastMsgs[0].Content, "WEB SEARCH IS ENABLED")
	assert.Equal(t, "earlier", f.model.lastMsgs[1].Content)

	require.NotNil(t, res.Context.Coin)
	assert.Equal(t, "bitcoin", res.Context.Coin.ID)
	require.NotNil(t, res.Context.Coin.Desc)
	assert.Equal(t, "Peer to peer cash", *res.Context.Coin.Desc)

	var urls []string
	for _, s := range res.Sources {
		urls = append(urls, s.URL)
	}
	assert.Equal(t, []string{
		"https://bitcoin.org",
		"https://www.coingecko.com/en/coins/bitcoin",
		"https://coinmarketcap.com/currencies/bitcoin",
		"https://news.example.org/btc",
	}, urls)

	require.Len(t, f.repo.messages, 2)
	assert.Equal(t, entity.MentorRoleUser, f.repo.messages[0].Role)
	assert.Equal(t, entity.MentorRoleAssistant, f.repo.messages[1].Role)
	assert.Equal(t, []int{20}, f.repo.keeps)
}

func TestChat_Fallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("greeting without model", func(t *testing.T) {
		f := newFixture()
		res, err := f.svc.Chat(ctx, trader, ChatRequest{Message: "hey"})
		require.NoError(t, err)
		assert.Equal(t, "Hey **trader**! How can I help you today?", res.Answer)
		assert.Empty(t, res.Sources)
	})

	t.Run("model failure", func(t *testing.T) {
		f := newFixture()
		f.model.enabled = true
		f.model.err = errors.New("breaker open")
		res, err := f.svc.Chat(ctx, trader, ChatRequest{Message: "should I trim my positions this week"})
		require.NoError(t, err)
		assert.Contains(t, res.Answer, "temporarily unavailable")
	})

	t.Run("repeat request", func(t *testing.T) {
		f := newFixture()
		res, err := f.svc.Chat(ctx, trader, ChatRequest{
			Message: "can you say it again",
			History: []entity.ChatTurn{{Role: "user", Content: "thoughts?"}, {Role: "assistant", Content: "Stay patient."}},
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.Answer, "Stay patient."))
	})

	t.Run("missing message", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Chat(ctx, trader, ChatRequest{Message: "  "})
		assert.ErrorIs(t, err, ErrMissingMessage)
	})
}

func TestHistoryCap_PinnedExempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.UpdateSettings(ctx, trader.ID, 5)
	require.NoError(t, err)

	first, err := f.svc.Chat(ctx, trader, ChatRequest{Message: "first question about risk"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Pin(ctx, trader.ID, first.MessageID, true))

	for i := 0; i < 8; i++ {
		_, err := f.svc.Chat(ctx, trader, ChatRequest{Message: "another longer question"})
		require.NoError(t, err)
	}

	messages, settings, err := f.svc.History(ctx, trader.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, settings.MessageCapacity)

	pinned, unpinned := 0, 0
	for _, m := range messages {
		if m.Pinned {
			pinned++
			assert.Equal(t, first.MessageID, m.MessageID)
		} else {
			unpinned++
		}
	}
	assert.Equal(t, 1, pinned)
	assert.Equal(t, 10, unpinned)
}

func TestUpdateSettings_ClampsAndKeepsOtherPreferences(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.users["u1"] = &entity.User{DiscordID: "u1", Preferences: entity.JSONMap{
		"theme":  "dark",
		"mentor": map[string]any{"tone": "direct"},
	}}

	settings, err := f.svc.UpdateSettings(ctx, "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, 20, settings.MessageCapacity)

	prefs := f.users.users["u1"].Preferences
	assert.Equal(t, "dark", prefs["theme"])
	assert.Equal(t, map[string]any{"tone": "direct", "messageCapacity": 20}, prefs["mentor"])
	assert.Equal(t, []int{40}, f.repo.keeps)
	assert.Equal(t, 20, f.svc.Settings(ctx, "u1").MessageCapacity)
}

func TestPin_NotFound(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.svc.Pin(context.Background(), "u1", "missing", true), ErrNotFound)
	assert.ErrorIs(t, f.svc.Pin(context.Background(), "u1", "", true), ErrMissingMessageID)
}

func TestRecordFeedback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	deleted, err := f.svc.RecordFeedback(ctx, trader, FeedbackInput{MessageID: "bot-1", Reaction: "LIKE", Response: "answer", Mode: "max"})
	require.NoError(t, err)
	assert.False(t, deleted)
	fb := f.repo.feedback["u1/bot-1"]
	assert.Equal(t, "like", fb.Reaction)
	assert.Equal(t, "max", fb.Mode.String)
	assert.Equal(t, constant.PlanPro, fb.Plan.String)

	deleted, err = f.svc.RecordFeedback(ctx, trader, FeedbackInput{MessageID: "bot-1", Reaction: "meh"})
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, f.repo.feedback)

	_, err = f.svc.RecordFeedback(ctx, trader, FeedbackInput{Reaction: "like"})
	assert.ErrorIs(t, err, ErrMissingMessageID)
}

func TestClearHistory_Notifies(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Chat(ctx, trader, ChatRequest{Message: "hello"})
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearHistory(ctx, trader.ID))
	assert.Empty(t, f.repo.messages)
	require.Len(t, f.notifier.dms, 1)
	assert.Contains(t, f.notifier.dms[0], "Mar 10, 2026, 12:00 PM UTC")
	assert.Equal(t, []string{constant.DashboardEventUserNotification}, f.publisher.types)
}
