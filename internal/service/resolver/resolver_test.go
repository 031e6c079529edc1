package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/cache"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	listCalls int

	list     []entity.CoinGeckoListEntry
	coins    map[string]*entity.CoinGeckoCoin
	quotes   map[string]*entity.EquityQuote
	profiles map[string]*entity.EquityProfile
	search   entity.CoinGeckoSearch
	finnhub  []provider.SymbolMatch
	alpha    []provider.SymbolMatch
	listErr  error
}

func (f *fakeProvider) CoinGeckoList(ctx context.Context) ([]entity.CoinGeckoListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.list, f.listErr
}

func (f *fakeProvider) CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error) {
	if coin, ok := f.coins[id]; ok {
		return coin, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeProvider) CoinGeckoSearch(ctx context.Context, query string) (entity.CoinGeckoSearch, error) {
	return f.search, nil
}

func (f *fakeProvider) FinnhubQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error) {
	return f.quotes[symbol], nil
}

func (f *fakeProvider) FinnhubProfile(ctx context.Context, symbol string) (*entity.EquityProfile, error) {
	return f.profiles[symbol], nil
}

func (f *fakeProvider) AlphaVantageQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error) {
	return nil, nil
}

func (f *fakeProvider) FinnhubSearch(ctx context.Context, query string, limit int) ([]provider.SymbolMatch, error) {
	return f.finnhub, nil
}

func (f *fakeProvider) AlphaVantageSearch(ctx context.Context, query string, limit int) ([]provider.SymbolMatch, error) {
	return f.alpha, nil
}

func newTestResolver(t *testing.T, p *fakeProvider) *Resolver {
	t.Helper()
	c := cache.New(cache.Config{})
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return New(c, p)
}

func TestResolveCoinID_StaticHitSkipsList(t *testing.T) {
	p := &fakeProvider{}
	r := newTestResolver(t, p)

	for _, sym := range []string{"btc", "XBT", "MATIC"} {
		id, err := r.ResolveCoinID(context.Background(), sym)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	assert.Equal(t, 0, p.listCalls)
}

func TestResolveCoinID_EquityHeuristic(t *testing.T) {
	p := &fakeProvider{}
	r := newTestResolver(t, p)

	id, err := r.ResolveCoinID(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 0, p.listCalls)
}

func TestResolveCoinID_AmbiguousPrefersPreferred(t *testing.T) {
	p := &fakeProvider{list: []entity.CoinGeckoListEntry{
		{ID: "sol-wormhole", Symbol: "sol2x", Name: "Wrapped"},
		{ID: "fake-link", Symbol: "link-usd", Name: "Fake"},
		{ID: "solana", Symbol: "link-usd", Name: "Solana"},
	}}
	r := newTestResolver(t, p)

	id, err := r.ResolveCoinIDFromList(context.Background(), "LINK-USD")
	require.NoError(t, err)
	assert.Equal(t, "solana", id)
}

func TestResolveCoinID_ListCachedAndNameMatch(t *testing.T) {
	p := &fakeProvider{list: []entity.CoinGeckoListEntry{
		{ID: "chainlink", Symbol: "link", Name: "Chainlink"},
		{ID: "shiba-inu", Symbol: "shib", Name: "Shiba Inu"},
	}}
	r := newTestResolver(t, p)

	id, err := r.ResolveCoinID(context.Background(), "shiba-inu")
	require.NoError(t, err)
	assert.Equal(t, "shiba-inu", id)

	id, err = r.ResolveCoinIDFromList(context.Background(), "Chainlink")
	require.NoError(t, err)
	assert.Equal(t, "chainlink", id)

	assert.Equal(t, 1, p.listCalls)
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "btc/usdt", want: []string{"BTC", "USDT"}},
		{raw: " ETHUSD ", want: []string{"ETHUSD", "ETH"}},
		{raw: "BRK.B", want: []string{"BRK.B", "BRK", "B"}},
		{raw: "eth-usd", want: []string{"ETH-USD", "ETH", "USD", "ETH-"}},
		{raw: "", want: nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Candidates(tt.raw), "raw=%q", tt.raw)
	}
}

func TestResolveAssetMeta_Crypto(t *testing.T) {
	p := &fakeProvider{coins: map[string]*entity.CoinGeckoCoin{
		"ethereum": {ID: "ethereum", Symbol: "eth", Name: "Ethereum", Image: entity.CoinGeckoImage{Large: "https://img/eth.png"}},
	}}
	r := newTestResolver(t, p)

	meta, err := r.ResolveAssetMeta(context.Background(), "eth-usd")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "ETH", meta.Symbol)
	assert.Equal(t, "ETH-USD", meta.DisplaySymbol)
	assert.Equal(t, constant.AssetTypeCrypto, meta.AssetType)
	assert.Equal(t, "ethereum", meta.CoinID)
	require.NotNil(t, meta.Logo)
	assert.Equal(t, "https://img/eth.png", *meta.Logo)
}

func TestResolveAssetMeta_EquityFirstForTickers(t *testing.T) {
	logo := "https://logo/aapl.png"
	p := &fakeProvider{
		list:     []entity.CoinGeckoListEntry{{ID: "apple-token", Symbol: "aapl", Name: "Apple Token"}},
		quotes:   map[string]*entity.EquityQuote{"AAPL": {Symbol: "AAPL", Name: "AAPL"}},
		profiles: map[string]*entity.EquityProfile{"AAPL": {Name: "Apple Inc", Logo: &logo}},
	}
	r := newTestResolver(t, p)

	meta, err := r.ResolveAssetMeta(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, constant.AssetTypeEquity, meta.AssetType)
	assert.Equal(t, "Apple Inc", meta.Name)
	assert.Equal(t, 0, p.listCalls)
}

func TestResolveAssetMeta_TickerFallsBackToCoinList(t *testing.T) {
	p := &fakeProvider{list: []entity.CoinGeckoListEntry{{ID: "pepe", Symbol: "pepe", Name: "Pepe"}}}
	r := newTestResolver(t, p)

	meta, err := r.ResolveAssetMeta(context.Background(), "PEPE")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, constant.AssetTypeCrypto, meta.AssetType)
	assert.Equal(t, "pepe", meta.CoinID)
}

func TestResolveAssetMeta_Unknown(t *testing.T) {
	p := &fakeProvider{}
	r := newTestResolver(t, p)

	meta, err := r.ResolveAssetMeta(context.Background(), "ZZZZZ")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestSearch_EmptyQueryReturnsPopular(t *testing.T) {
	r := newTestResolver(t, &fakeProvider{})

	items, err := r.Search(context.Background(), "  ")
	require.NoError(t, err)
	require.Len(t, items, 12)
	assert.Equal(t, "BTC", items[0].Symbol)
	assert.Equal(t, "MATIC", items[11].Symbol)
}

func TestSearch_MergesAndDedupes(t *testing.T) {
	rank := 3
	p := &fakeProvider{
		finnhub: []provider.SymbolMatch{{Symbol: "SOLV", Name: "Solv Corp"}},
		alpha:   []provider.SymbolMatch{{Symbol: "SOLV", Name: "Solv Corp AV"}},
	}
	p.search.Coins = append(p.search.Coins, struct {
		ID            string `json:"id"`
		Symbol        string `json:"symbol"`
		Name          string `json:"name"`
		MarketCapRank *int   `json:"market_cap_rank"`
		Thumb         string `json:"thumb"`
		Large         string `json:"large"`
	}{ID: "solana", Symbol: "sol", Name: "Solana", MarketCapRank: &rank})
	r := newTestResolver(t, p)

	items, err := r.Search(context.Background(), "sol")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "SOL", items[0].Symbol)
	assert.Equal(t, "coingecko", items[0].Source)
	assert.Equal(t, "finnhub", items[1].Source)
}

func TestSearch_FuzzyFallback(t *testing.T) {
	r := newTestResolver(t, &fakeProvider{})

	items, err := r.Search(context.Background(), "tesla")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "TSLA", items[0].Symbol)
}
