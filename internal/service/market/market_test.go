package market

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu          sync.Mutex
	marketCalls int
	coinCalls   int

	markets    []entity.CoinGeckoMarket
	marketsErr error
	coins      map[string]*entity.CoinGeckoCoin
	quotes     map[string]*entity.EquityQuote
	profiles   map[string]*entity.EquityProfile
	avNews     []entity.NewsItem
	cpNews     map[string][]entity.NewsItem
	rssNews    []entity.NewsItem
	fearGreed  *entity.FearGreed
	global     entity.CoinGeckoGlobal
	globalErr  error
}

func (f *fakeProvider) CoinGeckoMarkets(ctx context.Context, vs string, perPage int, sparkline bool) ([]entity.CoinGeckoMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	return f.markets, f.marketsErr
}

func (f *fakeProvider) CoinGeckoGlobal(ctx context.Context) (entity.CoinGeckoGlobal, error) {
	return f.global, f.globalErr
}

func (f *fakeProvider) CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error) {
	f.mu.Lock()
	f.coinCalls++
	f.mu.Unlock()
	if coin, ok := f.coins[id]; ok {
		return coin, nil
	}
	return nil, errors.New("coin unavailable")
}

func (f *fakeProvider) FinnhubQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error) {
	return f.quotes[symbol], nil
}

func (f *fakeProvider) FinnhubProfile(ctx context.Context, symbol string) (*entity.EquityProfile, error) {
	return f.profiles[symbol], nil
}

func (f *fakeProvider) FinnhubChangePercent(ctx context.Context, symbol, resolution string, from, to time.Time) (*float64, error) {
	return nil, nil
}

func (f *fakeProvider) AlphaVantageQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error) {
	return nil, nil
}

func (f *fakeProvider) AlphaVantageNews(ctx context.Context, symbol string) ([]entity.NewsItem, error) {
	return f.avNews, nil
}

func (f *fakeProvider) CryptoPanicNews(ctx context.Context, symbol string) ([]entity.NewsItem, error) {
	return f.cpNews[symbol], nil
}

func (f *fakeProvider) RSSNews(ctx context.Context) ([]entity.NewsItem, error) {
	return f.rssNews, nil
}

func (f *fakeProvider) FearGreed(ctx context.Context) (*entity.FearGreed, error) {
	return f.fearGreed, nil
}

func (f *fakeProvider) AltcoinSeasonIndex(ctx context.Context) (*float64, error) {
	return nil, errors.New("down")
}

func (f *fakeProvider) HasFinnhub() bool { return false }

type fakeResolver struct {
	ids map[string]string
}

func (r *fakeResolver) ResolveCoinID(ctx context.Context, s string) (string, error) {
	return r.ids[strings.ToUpper(s)], nil
}

func (r *fakeResolver) Search(ctx context.Context, q string) ([]entity.AssetSuggestion, error) {
	return nil, nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestService(t *testing.T, p *fakeProvider, ids map[string]string) *MarketService {
	t.Helper()
	c := cache.New(cache.Config{})
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return NewMarketService(c, p, &fakeResolver{ids: ids})
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 10},
		{"abc", 10},
		{"-4", 10},
		{"25", 25},
		{"500", 100},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampLimit(tt.raw, 10, 100))
		})
	}
}

func TestMarket_CachesAndFallsBackToLastGood(t *testing.T) {
	p := &fakeProvider{markets: []entity.CoinGeckoMarket{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: floatPtr(68000)},
	}}
	s := newTestService(t, p, nil)
	ctx := context.Background()

	items, err := s.Market(ctx, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BTC", items[0].Symbol)

	_, err = s.Market(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, p.marketCalls)

	p.marketsErr = errors.New("down")
	_, err = s.Market(ctx, 7)
	assert.Error(t, err)
}

func TestCryptoPrices_EmptyOnOutage(t *testing.T) {
	p := &fakeProvider{marketsErr: errors.New("down")}
	s := newTestService(t, p, nil)

	items := s.CryptoPrices(context.Background(), 0)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCoin_CryptoAndEquityFallback(t *testing.T) {
	p := &fakeProvider{
		coins: map[string]*entity.CoinGeckoCoin{
			"ethereum": {ID: "ethereum", Symbol: "eth", Name: "Ethereum", Description: map[string]string{"en": "smart contracts"}},
		},
		quotes: map[string]*entity.EquityQuote{
			"AAPL": {Symbol: "AAPL", Name: "AAPL", Price: floatPtr(230)},
		},
		profiles: map[string]*entity.EquityProfile{
			"AAPL": {Name: "Apple Inc"},
		},
	}
	s := newTestService(t, p, map[string]string{"ETH": "ethereum"})
	ctx := context.Background()

	coin, err := s.Coin(ctx, "eth", false)
	require.NoError(t, err)
	assert.Equal(t, "ETH", coin.Symbol)
	assert.Equal(t, "smart contracts", coin.Description)

	equity, err := s.Coin(ctx, "aapl", false)
	require.NoError(t, err)
	assert.Equal(t, "aapl", equity.ID)
	assert.Equal(t, "Apple Inc", equity.Name)

	_, err = s.Coin(ctx, "nope", false)
	assert.ErrorIs(t, err, ErrCoinNotFound)

	_, err = s.Coin(ctx, "  ", false)
	assert.ErrorIs(t, err, ErrMissingQuery)
}

func TestCoins_DedupesAndKeepsOrder(t *testing.T) {
	p := &fakeProvider{
		coins: map[string]*entity.CoinGeckoCoin{
			"bitcoin": {ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
		},
		quotes: map[string]*entity.EquityQuote{
			"NVDA": {Symbol: "NVDA", Name: "NVDA", Price: floatPtr(130)},
		},
	}
	s := newTestService(t, p, map[string]string{"BTC": "bitcoin"})

	items := s.Coins(context.Background(), []string{"btc", "NVDA", "BTC", "", "zzz"})
	require.Len(t, items, 3)

	assert.Equal(t, "BTC", items[0].Symbol)
	assert.True(t, items[0].Data.OK)
	assert.Equal(t, "NVDA", items[1].Symbol)
	assert.True(t, items[1].Data.OK)
	assert.Equal(t, "ZZZ", items[2].Symbol)
	assert.False(t, items[2].Data.OK)
	assert.Equal(t, "not_found", items[2].Data.Error)
}

func TestMetrics_PartialFailure(t *testing.T) {
	p := &fakeProvider{
		fearGreed: &entity.FearGreed{Value: 55, Classification: "Greed"},
		globalErr: errors.New("down"),
	}
	s := newTestService(t, p, nil)

	metrics := s.Metrics(context.Background())
	assert.Nil(t, metrics.MarketCapUSD)
	assert.Nil(t, metrics.AltcoinSeasonIndex)
	require.NotNil(t, metrics.FearGreed)
	assert.Equal(t, float64(55), metrics.FearGreed.Value)
}

func TestNews_SourceOrder(t *testing.T) {
	general := []entity.NewsItem{{Title: "general"}}
	tests := []struct {
		name       string
		provider   *fakeProvider
		symbol     string
		wantSource string
	}{
		{
			name:       "alpha vantage first",
			provider:   &fakeProvider{avNews: []entity.NewsItem{{Title: "av"}}},
			wantSource: "alphavantage",
		},
		{
			name:       "general cryptopanic for symbol",
			provider:   &fakeProvider{cpNews: map[string][]entity.NewsItem{"": general}},
			symbol:     "BTC",
			wantSource: "cryptopanic",
		},
		{
			name:       "rss last",
			provider:   &fakeProvider{rssNews: []entity.NewsItem{{Title: "rss"}}},
			wantSource: "rss",
		},
		{
			name:       "none",
			provider:   &fakeProvider{},
			wantSource: "none",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, tt.provider, nil)
			feed := s.News(context.Background(), tt.symbol)
			assert.Equal(t, tt.wantSource, feed.Source)
			assert.NotNil(t, feed.Items)
		})
	}
}
