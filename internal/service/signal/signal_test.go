package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo keeps signals in insertion order and applies retention against
// an injected clock.
type memoryRepo struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID int64
	rows   []entity.Signal
	err    error
}

func (m *memoryRepo) Latest(ctx context.Context, limit uint64) ([]entity.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []entity.Signal{}
	for i := len(m.rows) - 1; i >= 0 && uint64(len(out)) < limit; i-- {
		out = append(out, m.rows[i])
	}
	return out, nil
}

func (m *memoryRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), m.err
}

func (m *memoryRepo) Create(ctx context.Context, s *entity.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.rows = append(m.rows, *s)
	return nil
}

func (m *memoryRepo) Patch(ctx context.Context, id int64, patch entity.SignalPatch) (*entity.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		if patch.Status != nil {
			m.rows[i].Status = null.StringFrom(*patch.Status)
		}
		if patch.Performance != nil {
			m.rows[i].Performance = null.StringFrom(*patch.Performance)
		}
		if patch.Details != nil {
			m.rows[i].Details = patch.Details
		}
		row := m.rows[i]
		return &row, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memoryRepo) Prune(ctx context.Context, days int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	kept := m.rows[:0]
	var removed int64
	for _, row := range m.rows {
		if row.Timestamp.Valid && row.Timestamp.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

type fakeMarket struct {
	markets []entity.CoinGeckoMarket
	err     error
}

func (f *fakeMarket) CoinGeckoMarkets(ctx context.Context, vs string, perPage int, sparkline bool) ([]entity.CoinGeckoMarket, error) {
	if len(f.markets) > perPage {
		return f.markets[:perPage], f.err
	}
	return f.markets, f.err
}

type fakeResolver struct {
	metas map[string]*entity.AssetMeta
}

func (f *fakeResolver) ResolveAssetMeta(ctx context.Context, raw string) (*entity.AssetMeta, error) {
	return f.metas[raw], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

type fixture struct {
	svc       *SignalService
	repo      *memoryRepo
	market    *fakeMarket
	publisher *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := cache.New(cache.Config{Now: clock})
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	f := &fixture{
		repo:      &memoryRepo{now: clock},
		market:    &fakeMarket{},
		publisher: &recordingPublisher{},
		now:       now,
	}
	logo := "https://img/btc.png"
	resolver := &fakeResolver{metas: map[string]*entity.AssetMeta{
		"BTC":  {Symbol: "BTC", DisplaySymbol: "BTC", Name: "Bitcoin", AssetType: constant.AssetTypeCrypto, Logo: &logo},
		"AAPL": {Symbol: "AAPL", DisplaySymbol: "AAPL", Name: "Apple Inc", AssetType: constant.AssetTypeEquity},
	}}
	f.svc = NewSignalService(f.repo, c, f.market, resolver, f.publisher, 10)
	f.svc.now = clock
	return f
}

func floatPtr(v float64) *float64 { return &v }

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{68250, "$68,250"},
		{1234567.891, "$1,234,567.89"},
		{3.14159, "$3.142"},
		{0.000123456, "$0.000123"},
		{-1500.5, "$-1,500.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.in))
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "+4.00%", FormatPercent(4))
	assert.Equal(t, "-12.5%", FormatPercent(-12.5))
	assert.Equal(t, "+0.250%", FormatPercent(0.25))
}

func TestFormatSignal(t *testing.T) {
	row := entity.Signal{
		ID:              7,
		Symbol:          "btc",
		SignalType:      "strong sell",
		Price:           decimal.NewNullDecimal(decimal.NewFromFloat(68250)),
		Recommendations: null.StringFrom(`{'1h':'SELL','4h':' '}`),
		Details: entity.JSONMap{
			"entry":      map[string]any{"low": 100.0, "high": 200.0},
			"targets":    []any{map[string]any{"price": 110.0, "pct": 10.0}, "bad"},
			"stop":       map[string]any{"price": 90.0, "pct": -10.0},
			"asset_type": "Crypto",
			"summary":    "  breakout  ",
			"posted_at":  "2026-03-09T08:00:00Z",
		},
	}

	view := FormatSignal(row, time.Now())
	assert.Equal(t, "BTC", view.Symbol)
	assert.Equal(t, "BTC", view.RawSymbol)
	assert.Equal(t, entity.SignalTypeSell, view.Type)
	assert.Equal(t, "$68,250", view.Price)
	require.NotNil(t, view.Entry)
	assert.Equal(t, float64(150), *view.Entry.Mid)
	assert.Equal(t, "$100 → $200", view.EntryRange)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, "Target 1", view.Targets[0].Label)
	assert.Equal(t, "$110 (+10.0%)", view.Target)
	assert.Equal(t, "$90 (-10.0%)", view.StopLoss)
	assert.Equal(t, map[string]string{"1h": "SELL"}, view.Timeframes)
	assert.Equal(t, "crypto", view.AssetType)
	assert.Equal(t, "Crypto", view.AssetLabel)
	assert.Equal(t, "breakout", view.Description)
	assert.Equal(t, "2026-03-09T08:00:00.000Z", view.PostedAt)
	assert.Equal(t, entity.SignalStatusActive, view.Status)
}

func TestClampListLimit(t *testing.T) {
	assert.Equal(t, 20, ClampListLimit(""))
	assert.Equal(t, 1, ClampListLimit("-5"))
	assert.Equal(t, 100, ClampListLimit("1000"))
	assert.Equal(t, 42, ClampListLimit("42"))
}

func TestList_MarketFallback(t *testing.T) {
	f := newFixture(t)
	f.market.markets = []entity.CoinGeckoMarket{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: floatPtr(68000), PriceChangePercentage24h: floatPtr(1.5)},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: floatPtr(3500), PriceChangePercentage24h: floatPtr(-2)},
	}

	list, err := f.svc.List(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, "fallback_market", list.Source)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "BTC/USD", list.Items[0].Symbol)
	assert.Equal(t, entity.SignalTypeBuy, list.Items[0].Type)
	assert.Equal(t, entity.SignalTypeSell, list.Items[1].Type)
	assert.Equal(t, "Bitcoin • 24h change 1.50%", list.Items[0].Summary)
}

func TestList_NoneWhenMarketEmpty(t *testing.T) {
	f := newFixture(t)

	list, err := f.svc.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "none", list.Source)
	assert.Empty(t, list.Items)
}

func TestCreate_ListsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// populate the cache with a fallback page first
	f.market.markets = []entity.CoinGeckoMarket{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}}
	list, err := f.svc.List(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, "fallback_market", list.Source)

	view, err := f.svc.Create(ctx, map[string]any{
		"symbol":      "BTC",
		"type":        "sell",
		"price":       "68000.5",
		"description": "rejection at resistance",
		"timeframes":  map[string]any{"1h": "SELL"},
		"targets":     []any{map[string]any{"price": 65000.0}},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.SignalTypeSell, view.Type)
	assert.Equal(t, "rejection at resistance", view.Summary)
	require.NotNil(t, view.LogoURL)
	assert.Equal(t, []string{constant.DashboardEventSignalAdded}, f.publisher.events)

	list, err = f.svc.List(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, "postgres", list.Source)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Bitcoin", list.Items[0].Details["asset_name"])
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, map[string]any{})
	assert.ErrorIs(t, err, ErrMissingSymbol)

	_, err = f.svc.Create(ctx, map[string]any{"symbol": "ZZZZ"})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestRetentionPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := &entity.Signal{Symbol: "OLD", SignalType: "BUY", Timestamp: null.TimeFrom(f.now.Add(-11 * 24 * time.Hour))}
	fresh := &entity.Signal{Symbol: "NEW", SignalType: "BUY", Timestamp: null.TimeFrom(f.now.Add(-9 * 24 * time.Hour))}
	require.NoError(t, f.repo.Create(ctx, old))
	require.NoError(t, f.repo.Create(ctx, fresh))

	list, err := f.svc.List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "NEW", list.Items[0].Symbol)
}

func TestPrune_DropsCachedLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	row := &entity.Signal{Symbol: "AGING", SignalType: "BUY", Timestamp: null.TimeFrom(f.now.Add(-9 * 24 * time.Hour))}
	require.NoError(t, f.repo.Create(ctx, row))

	list, err := f.svc.List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	f.repo.mu.Lock()
	f.repo.rows[0].Timestamp = null.TimeFrom(f.now.Add(-11 * 24 * time.Hour))
	f.repo.mu.Unlock()

	removed, err := f.svc.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	list, _ = f.svc.List(ctx, 20)
	for _, item := range list.Items {
		assert.NotEqual(t, "AGING", item.Symbol)
	}
}

func TestBuildPatch(t *testing.T) {
	patch, err := BuildPatch(map[string]any{"status": " Completed ", "performance": "WIN", "details": map[string]any{"note": "tp1"}})
	require.NoError(t, err)
	assert.Equal(t, "completed", *patch.Status)
	assert.Equal(t, "win", *patch.Performance)
	assert.Equal(t, "tp1", patch.Details["note"])

	patch, err = BuildPatch(map[string]any{"status": "  ", "details": "not an object"})
	require.NoError(t, err)
	assert.True(t, patch.Empty())

	_, err = BuildPatch(map[string]any{"status": "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	row := &entity.Signal{Symbol: "ETH", SignalType: "BUY", Timestamp: null.TimeFrom(f.now)}
	require.NoError(t, f.repo.Create(ctx, row))

	view, err := f.svc.Patch(ctx, row.ID, entity.SignalPatch{})
	require.NoError(t, err)
	assert.Nil(t, view)

	closed := entity.SignalStatusClosed
	view, err = f.svc.Patch(ctx, row.ID, entity.SignalPatch{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStatusClosed, view.Status)

	_, err = f.svc.Patch(ctx, 999, entity.SignalPatch{Status: &closed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeed(t *testing.T) {
	f := newFixture(t)

	inserted, err := f.svc.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)
	assert.Len(t, f.publisher.events, 4)

	aapl := FormatSignal(f.repo.rows[2], f.now)
	assert.Equal(t, entity.SignalTypeSell, aapl.Type)
	assert.Equal(t, "equity", aapl.AssetType)
	require.NotNil(t, aapl.Stop)
	assert.InDelta(t, 237.4*1.03, *aapl.Stop.Price, 1e-9)
	require.NotNil(t, aapl.SignalStrength)
	assert.Equal(t, "🔴 SELL", *aapl.SignalStrength)
}

func TestCount_FallsBackToCache(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errors.New("db down")

	count := f.svc.Count(context.Background())
	assert.Equal(t, "none", count.Source)
	assert.Zero(t, count.Count)
}

func TestRetentionScheduler_InvalidSchedule(t *testing.T) {
	f := newFixture(t)

	_, err := NewRetentionScheduler(f.svc, "not a schedule")
	assert.Error(t, err)

	s, err := NewRetentionScheduler(f.svc, "")
	require.NoError(t, err)
	s.RunOnce()
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}
