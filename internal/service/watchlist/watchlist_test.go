package watchlist

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	rows    map[string]map[string]entity.WatchlistItem
	updated int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[string]map[string]entity.WatchlistItem{}}
}

func (m *memoryRepo) ListByUser(ctx context.Context, userID string) ([]entity.WatchlistItem, error) {
	out := []entity.WatchlistItem{}
	for _, item := range m.rows[userID] {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memoryRepo) NextPosition(ctx context.Context, userID string) (int, error) {
	next := 0
	for _, item := range m.rows[userID] {
		next = max(next, item.Position+1)
	}
	return next, nil
}

func (m *memoryRepo) Upsert(ctx context.Context, item *entity.WatchlistItem) error {
	if m.rows[item.UserID] == nil {
		m.rows[item.UserID] = map[string]entity.WatchlistItem{}
	}
	m.rows[item.UserID][item.Symbol] = *item
	return nil
}

func (m *memoryRepo) UpdateMeta(ctx context.Context, item *entity.WatchlistItem) error {
	m.updated++
	return m.Upsert(ctx, item)
}

func (m *memoryRepo) Delete(ctx context.Context, userID, symbol string) (int64, error) {
	if _, ok := m.rows[userID][symbol]; !ok {
		return 0, nil
	}
	delete(m.rows[userID], symbol)
	return 1, nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveAssetMeta(ctx context.Context, raw string) (*entity.AssetMeta, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BTC", "BTC/USD":
		return &entity.AssetMeta{Symbol: "BTC", DisplaySymbol: strings.ToUpper(raw), Name: "Bitcoin", AssetType: "crypto"}, nil
	case "AAPL":
		return &entity.AssetMeta{Symbol: "AAPL", DisplaySymbol: "AAPL", Name: "Apple Inc", AssetType: "equity"}, nil
	}
	return nil, nil
}

func TestAdd(t *testing.T) {
	repo := newMemoryRepo()
	s := NewWatchlistService(repo, fakeResolver{})
	ctx := context.Background()

	item, meta, err := s.Add(ctx, "u1", "btc", nil)
	require.NoError(t, err)
	assert.Equal(t, "BTC", item.Symbol)
	assert.Equal(t, 0, item.Position)
	assert.Equal(t, "Bitcoin", item.DisplayName.String)
	assert.Equal(t, "crypto", meta.AssetType)

	item, _, err = s.Add(ctx, "u1", "AAPL", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Position)

	pos := 7
	item, _, err = s.Add(ctx, "u1", "AAPL", &pos)
	require.NoError(t, err)
	assert.Equal(t, 7, item.Position)

	_, _, err = s.Add(ctx, "u1", "NOPE", nil)
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	_, _, err = s.Add(ctx, "u1", "", nil)
	assert.ErrorIs(t, err, ErrBadSymbol)
}

func TestList_BackfillsAndDropsUnresolvable(t *testing.T) {
	repo := newMemoryRepo()
	repo.rows["u1"] = map[string]entity.WatchlistItem{
		"btc":  {UserID: "u1", Symbol: "btc", Position: 0},
		"GONE": {UserID: "u1", Symbol: "GONE", Position: 1},
		"AAPL": {
			UserID: "u1", Symbol: "AAPL", Position: 2,
			AssetType: null.StringFrom("equity"), DisplaySymbol: null.StringFrom("aapl"), DisplayName: null.StringFrom("Apple"),
		},
	}
	s := NewWatchlistService(repo, fakeResolver{})

	items, err := s.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "BTC", items[0].Symbol)
	assert.Equal(t, "Bitcoin", items[0].DisplayName.String)
	assert.Equal(t, "AAPL", items[1].DisplaySymbol.String)
	assert.Equal(t, 1, repo.updated)

	_, stillThere := repo.rows["u1"]["GONE"]
	assert.False(t, stillThere)
}

func TestRemove_UsesCanonicalSymbol(t *testing.T) {
	repo := newMemoryRepo()
	s := NewWatchlistService(repo, fakeResolver{})
	ctx := context.Background()

	_, _, err := s.Add(ctx, "u1", "BTC", nil)
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "u1", "btc/usd"))
	items, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, s.Remove(ctx, "u1", "  "), ErrBadSymbol)
}
