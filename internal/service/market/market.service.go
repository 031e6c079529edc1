package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMarketLimit  = 10
	maxMarketLimit      = 100
	defaultCryptoLimit  = 100
	maxCryptoLimit      = 250
	coinBatchLimit      = 3
	marketsPreloadLimit = 250
)

var DefaultStockTickers = []string{"AAPL", "NVDA", "MSFT", "TSLA", "AMZN", "GOOGL", "META"}

var (
	ErrMissingQuery = errors.New("missing_id_or_symbol")
	ErrCoinNotFound = errors.New("coin_not_found")
)

type Cache interface {
	Get(key string, dst any) bool
	Set(key string, value any, ttl time.Duration)
	SetWithLastGood(key string, value any, ttl time.Duration)
	LastGood(key string, dst any) bool
}

// Provider is the subset of upstream calls used by the market endpoints.
type Provider interface {
	CoinGeckoMarkets(ctx context.Context, vsCurrency string, perPage int, sparkline bool) ([]entity.CoinGeckoMarket, error)
	CoinGeckoGlobal(ctx context.Context) (entity.CoinGeckoGlobal, error)
	CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error)
	FinnhubQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error)
	FinnhubProfile(ctx context.Context, symbol string) (*entity.EquityProfile, error)
	FinnhubChangePercent(ctx context.Context, symbol, resolution string, from, to time.Time) (*float64, error)
	AlphaVantageQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error)
	AlphaVantageNews(ctx context.Context, symbol string) ([]entity.NewsItem, error)
	CryptoPanicNews(ctx context.Context, symbol string) ([]entity.NewsItem, error)
	RSSNews(ctx context.Context) ([]entity.NewsItem, error)
	FearGreed(ctx context.Context) (*entity.FearGreed, error)
	AltcoinSeasonIndex(ctx context.Context) (*float64, error)
	HasFinnhub() bool
}

type Resolver interface {
	ResolveCoinID(ctx context.Context, symbolOrID string) (string, error)
	Search(ctx context.Context, q string) ([]entity.AssetSuggestion, error)
}

type MarketService struct {
	cache    Cache
	provider Provider
	resolver Resolver
	now      func() time.Time
}

func NewMarketService(cache Cache, provider Provider, resolver Resolver) *MarketService {
	return &MarketService{
		cache:    cache,
		provider: provider,
		resolver: resolver,
		now:      time.Now,
	}
}

// ClampLimit parses raw as a positive integer, falling back to def and
// capping at max.
func ClampLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		n = def
	}
	return min(n, max)
}

func (s *MarketService) Market(ctx context.Context, limit int) ([]entity.MarketItem, error) {
	if limit <= 0 {
		limit = defaultMarketLimit
	}
	limit = min(limit, maxMarketLimit)
	cacheKey := fmt.Sprintf("%s%d", constant.CacheKeyMarketTop, limit)

	var items []entity.MarketItem
	if s.cache.Get(cacheKey, &items) {
		return items, nil
	}

	markets, err := s.provider.CoinGeckoMarkets(ctx, "usd", limit, false)
	if err != nil {
		if s.cache.LastGood(cacheKey, &items) {
			return items, nil
		}
		return nil, err
	}

	items = make([]entity.MarketItem, 0, len(markets))
	for _, m := range markets {
		items = append(items, marketItem(m, false))
	}
	s.cache.SetWithLastGood(cacheKey, items, constant.CacheTTLMarket)

	return items, nil
}

// CryptoPrices never fails; an upstream outage yields the last good list or
// an empty one.
func (s *MarketService) CryptoPrices(ctx context.Context, limit int) []entity.MarketItem {
	if limit <= 0 {
		limit = defaultCryptoLimit
	}
	limit = min(limit, maxCryptoLimit)
	cacheKey := fmt.Sprintf("%s%d", constant.CacheKeyPricesCrypto, limit)

	var items []entity.MarketItem
	if s.cache.Get(cacheKey, &items) {
		return items
	}

	markets, err := s.provider.CoinGeckoMarkets(ctx, "usd", limit, true)
	if err != nil {
		logrus.WithField("limit", limit).Warnf("crypto prices: %v", err)
		if s.cache.LastGood(cacheKey, &items) {
			return items
		}
		return []entity.MarketItem{}
	}

	items = make([]entity.MarketItem, 0, len(markets))
	for _, m := range markets {
		items = append(items, marketItem(m, true))
	}
	s.cache.SetWithLastGood(cacheKey, items, constant.CacheTTLCryptoPrices)

	return items
}

func marketItem(m entity.CoinGeckoMarket, withSpark bool) entity.MarketItem {
	item := entity.MarketItem{
		ID:        m.ID,
		Symbol:    strings.ToUpper(m.Symbol),
		Name:      m.Name,
		Price:     m.CurrentPrice,
		MarketCap: m.MarketCap,
		Change1h:  m.PriceChange1hInCurrency,
		Change24h: m.PriceChangePercentage24h,
		Change7d:  m.PriceChange7dInCurrency,
		Volume24h: m.TotalVolume,
	}
	if m.Image != "" {
		image := m.Image
		item.Image = &image
	}
	if withSpark {
		item.Spark = []float64{}
		if m.SparklineIn7d != nil {
			item.Spark = m.SparklineIn7d.Price
		}
	}
	return item
}

// Coin resolves q to a crypto asset, or to an equity when no coin matches.
func (s *MarketService) Coin(ctx context.Context, q string, noCache bool) (*entity.CoinDetail, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrMissingQuery
	}

	id, err := s.resolver.ResolveCoinID(ctx, q)
	if err != nil {
		logrus.WithField("query", q).Debugf("resolve coin id: %v", err)
	}
	if id == "" {
		detail := s.equityDetail(ctx, strings.ToUpper(q), true)
		if detail == nil {
			return nil, ErrCoinNotFound
		}
		return detail, nil
	}

	cacheKey := constant.CacheKeyCoin + id
	var detail entity.CoinDetail
	if !noCache && s.cache.Get(cacheKey, &detail) {
		return &detail, nil
	}

	coin, err := s.provider.CoinGeckoCoin(ctx, id, false)
	if err != nil {
		if s.cache.LastGood(cacheKey, &detail) {
			return &detail, nil
		}
		return nil, err
	}

	detail = coinDetail(coin, nil)
	s.cache.SetWithLastGood(cacheKey, detail, constant.CacheTTLCoin)

	return &detail, nil
}

// Coins looks up every symbol with at most three lookups in flight.
// Duplicates are dropped case-insensitively and input order is kept.
func (s *MarketService) Coins(ctx context.Context, symbols []string) []entity.BatchCoinItem {
	unique := dedupeSymbols(symbols)
	results := make([]entity.BatchCoinItem, len(unique))

	change7d := s.preloadChange7d(ctx, unique)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(coinBatchLimit)
	for i, symbol := range unique {
		eg.Go(func() error {
			results[i] = entity.BatchCoinItem{
				Symbol: strings.ToUpper(symbol),
				Data:   s.coinResult(egCtx, symbol, change7d),
			}
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := strings.TrimSpace(raw)
		if sym == "" {
			continue
		}
		key := strings.ToUpper(sym)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sym)
	}
	return out
}

// preloadChange7d reads the 7 day change of the top markets once for the
// batch so that crypto lookups need no extra call.
func (s *MarketService) preloadChange7d(ctx context.Context, symbols []string) map[string]*float64 {
	out := map[string]*float64{}

	hasCrypto := false
	for _, sym := range symbols {
		if !equityLike(sym) {
			hasCrypto = true
			break
		}
	}
	if !hasCrypto {
		return out
	}

	markets, err := s.provider.CoinGeckoMarkets(ctx, "usd", marketsPreloadLimit, false)
	if err != nil {
		logrus.Debugf("preload markets: %v", err)
		return out
	}
	for _, m := range markets {
		if m.Symbol != "" {
			out[strings.ToUpper(m.Symbol)] = m.PriceChange7dInCurrency
		}
	}
	return out
}

func equityLike(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (s *MarketService) coinResult(ctx context.Context, symbol string, change7d map[string]*float64) entity.CoinResult {
	id, err := s.resolver.ResolveCoinID(ctx, symbol)
	if err != nil {
		logrus.WithField("symbol", symbol).Debugf("resolve coin id: %v", err)
	}

	if id != "" {
		cacheKey := constant.CacheKeyCoin + id
		var detail entity.CoinDetail
		if s.cache.Get(cacheKey, &detail) {
			return entity.CoinResult{OK: true, Data: &detail}
		}

		coin, err := s.provider.CoinGeckoCoin(ctx, id, true)
		if err != nil {
			if s.cache.LastGood(cacheKey, &detail) {
				return entity.CoinResult{OK: true, Data: &detail}
			}
			return entity.CoinResult{OK: false, Error: err.Error()}
		}

		detail = coinDetail(coin, change7d)
		s.cache.SetWithLastGood(cacheKey, detail, constant.CacheTTLCoin)
		return entity.CoinResult{OK: true, Data: &detail}
	}

	if detail := s.equityDetail(ctx, strings.ToUpper(symbol), false); detail != nil {
		return entity.CoinResult{OK: true, Data: detail}
	}

	return entity.CoinResult{OK: false, Error: "not_found"}
}

func coinDetail(coin *entity.CoinGeckoCoin, change7d map[string]*float64) entity.CoinDetail {
	detail := entity.CoinDetail{
		ID:               coin.ID,
		Symbol:           strings.ToUpper(coin.Symbol),
		Name:             coin.Name,
		Description:      coin.Description["en"],
		GenesisDate:      coin.GenesisDate,
		HashingAlgorithm: coin.HashingAlgorithm,
	}
	if len(coin.Links.Homepage) > 0 {
		homepage := coin.Links.Homepage[0]
		detail.Homepage = &homepage
	}
	if image := coin.Image.Best(); image != "" {
		detail.Image = &image
	}

	if md := coin.MarketData; md != nil {
		detail.MarketData = &entity.CoinMarketData{
			CurrentPrice:             usdValue(md.CurrentPrice),
			MarketCap:                usdValue(md.MarketCap),
			High24h:                  usdValue(md.High24h),
			Low24h:                   usdValue(md.Low24h),
			PriceChangePercentage24h: md.PriceChangePercentage24h,
		}
		if change7d != nil {
			detail.MarketData.PriceChangePercentage7d = change7d[detail.Symbol]
		}
		if coin.SparklineIn7d != nil {
			detail.MarketData.Spark = coin.SparklineIn7d.Price
		}
	}

	return detail
}

func usdValue(m map[string]float64) *float64 {
	v, ok := m["usd"]
	if !ok {
		return nil
	}
	return &v
}

// equityDetail prefers Finnhub for the quote. withProfile decorates the
// result with the company name and logo.
func (s *MarketService) equityDetail(ctx context.Context, symbol string, withProfile bool) *entity.CoinDetail {
	quote := s.equityQuote(ctx, symbol)
	if quote == nil {
		return nil
	}

	detail := &entity.CoinDetail{
		ID:     strings.ToLower(quote.Symbol),
		Symbol: quote.Symbol,
		Name:   quote.Name,
		MarketData: &entity.CoinMarketData{
			CurrentPrice:             quote.Price,
			PriceChangePercentage24h: quote.Change24h,
		},
	}
	if detail.Symbol == "" {
		detail.Symbol = symbol
		detail.ID = strings.ToLower(symbol)
	}
	if detail.Name == "" {
		detail.Name = detail.Symbol
	}

	if withProfile {
		profile, err := s.provider.FinnhubProfile(ctx, symbol)
		if err == nil && profile != nil {
			if profile.Name != "" {
				detail.Name = profile.Name
			}
			detail.Image = profile.Logo
		}
	}

	return detail
}

func (s *MarketService) equityQuote(ctx context.Context, symbol string) *entity.EquityQuote {
	quote, err := s.provider.FinnhubQuote(ctx, symbol)
	if err == nil && quote != nil {
		return quote
	}
	quote, err = s.provider.AlphaVantageQuote(ctx, symbol)
	if err != nil {
		logrus.WithField("symbol", symbol).Debugf("equity quote: %v", err)
		return nil
	}
	return quote
}

// StockPrices quotes each ticker sequentially to stay inside the free tier
// limits of the equity providers.
func (s *MarketService) StockPrices(ctx context.Context, tickers []string) []entity.MarketItem {
	if len(tickers) == 0 {
		tickers = DefaultStockTickers
	}
	upper := make([]string, 0, len(tickers))
	for _, t := range tickers {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(t)))
	}
	tickers = dedupeSymbols(upper)
	cacheKey := constant.CacheKeyPricesStocks + strings.Join(tickers, ",")

	var items []entity.MarketItem
	if s.cache.Get(cacheKey, &items) {
		return items
	}

	items = make([]entity.MarketItem, 0, len(tickers))
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		quote := s.equityQuote(ctx, ticker)
		if quote == nil {
			continue
		}

		item := entity.MarketItem{
			ID:        strings.ToLower(ticker),
			Symbol:    ticker,
			Name:      ticker,
			Price:     quote.Price,
			Change24h: quote.Change24h,
		}
		if profile, err := s.provider.FinnhubProfile(ctx, ticker); err == nil && profile != nil {
			if profile.Name != "" {
				item.Name = profile.Name
			}
			item.Image = profile.Logo
		}
		if s.provider.HasFinnhub() {
			now := s.now()
			item.Change1h, _ = s.provider.FinnhubChangePercent(ctx, ticker, "1", now.Add(-time.Hour), now)
			item.Change7d, _ = s.provider.FinnhubChangePercent(ctx, ticker, "60", now.Add(-7*24*time.Hour), now)
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		var last []entity.MarketItem
		if s.cache.LastGood(cacheKey, &last) {
			return last
		}
	}
	s.cache.SetWithLastGood(cacheKey, items, constant.CacheTTLStocks)

	return items
}

// Metrics gathers each indicator independently. A failing source leaves its
// field nil.
func (s *MarketService) Metrics(ctx context.Context) entity.GlobalMetrics {
	var metrics entity.GlobalMetrics
	if s.cache.Get(constant.CacheKeyMetrics, &metrics) {
		return metrics
	}

	var (
		global    entity.CoinGeckoGlobal
		globalErr error
		fearGreed *entity.FearGreed
		altSeason *float64
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		global, globalErr = s.provider.CoinGeckoGlobal(egCtx)
		return nil
	})
	eg.Go(func() error {
		var err error
		fearGreed, err = s.provider.FearGreed(egCtx)
		if err != nil {
			logrus.Debugf("fear and greed: %v", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		altSeason, err = s.provider.AltcoinSeasonIndex(egCtx)
		if err != nil {
			logrus.Debugf("altcoin season: %v", err)
		}
		return nil
	})
	_ = eg.Wait()

	if globalErr == nil {
		metrics.MarketCapUSD = usdValue(global.Data.TotalMarketCap)
		if btc, ok := global.Data.MarketCapPercentage["btc"]; ok {
			metrics.BTCDominancePct = &btc
		}
		metrics.MarketCapChange24hPct = global.Data.MarketCapChangePercentage24hUSD
	} else {
		logrus.Debugf("coingecko global: %v", globalErr)
	}
	metrics.FearGreed = fearGreed
	metrics.AltcoinSeasonIndex = altSeason

	if metrics == (entity.GlobalMetrics{}) {
		var last entity.GlobalMetrics
		if s.cache.LastGood(constant.CacheKeyMetrics, &last) {
			return last
		}
	}
	s.cache.SetWithLastGood(constant.CacheKeyMetrics, metrics, constant.CacheTTLMetrics)

	return metrics
}

// News tries Alpha Vantage, then CryptoPanic, then general CryptoPanic for
// a symbol query, then the configured RSS feeds.
func (s *MarketService) News(ctx context.Context, symbol string) entity.NewsFeed {
	symbol = strings.TrimSpace(symbol)
	cacheKey := constant.CacheKeyNews + symbol
	if symbol == "" {
		cacheKey = constant.CacheKeyNews + "all"
	}

	var feed entity.NewsFeed
	if s.cache.Get(cacheKey, &feed) {
		return feed
	}

	logger := logrus.WithField("symbol", symbol)
	feed = entity.NewsFeed{Source: "none", Items: []entity.NewsItem{}}

	if items, err := s.provider.AlphaVantageNews(ctx, symbol); err != nil {
		logger.Warnf("alpha vantage news: %v", err)
	} else if len(items) > 0 {
		feed = entity.NewsFeed{Source: "alphavantage", Items: items}
	}

	if len(feed.Items) == 0 {
		if items, err := s.provider.CryptoPanicNews(ctx, symbol); err != nil {
			logger.Warnf("cryptopanic news: %v", err)
		} else if len(items) > 0 {
			feed = entity.NewsFeed{Source: "cryptopanic", Items: items}
		}
	}

	if len(feed.Items) == 0 && symbol != "" {
		if items, err := s.provider.CryptoPanicNews(ctx, ""); err == nil && len(items) > 0 {
			feed = entity.NewsFeed{Source: "cryptopanic", Items: items}
		}
	}

	if len(feed.Items) == 0 {
		if items, err := s.provider.RSSNews(ctx); err != nil {
			logger.Warnf("rss news: %v", err)
		} else if len(items) > 0 {
			feed = entity.NewsFeed{Source: "rss", Items: items}
		}
	}

	if len(feed.Items) == 0 {
		var last entity.NewsFeed
		if s.cache.LastGood(cacheKey, &last) {
			return last
		}
		s.cache.Set(cacheKey, feed, constant.CacheTTLNews)
		return feed
	}

	s.cache.SetWithLastGood(cacheKey, feed, constant.CacheTTLNews)
	return feed
}

func (s *MarketService) SearchAssets(ctx context.Context, q string) ([]entity.AssetSuggestion, error) {
	return s.resolver.Search(ctx, q)
}
