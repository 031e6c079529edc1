package resolver

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/sirupsen/logrus"
)

var (
	candidatePattern   = regexp.MustCompile(`^[A-Z0-9.\-]{1,15}$`)
	equityTickerRegexp = regexp.MustCompile(`^[A-Z]{1,5}$`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	pairSeparators     = regexp.MustCompile(`[/:\-]`)
)

// knownCoinIDs short-circuits the well known symbols whose tickers collide
// with other listings.
var knownCoinIDs = map[string]string{
	"BTC":   "bitcoin",
	"XBT":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"MATIC": "polygon-pos",
	"LTC":   "litecoin",
}

var preferredCoinIDs = map[string]bool{
	"bitcoin":     true,
	"ethereum":    true,
	"tether":      true,
	"usd-coin":    true,
	"binancecoin": true,
	"ripple":      true,
	"cardano":     true,
	"dogecoin":    true,
	"polygon-pos": true,
	"litecoin":    true,
	"solana":      true,
}

type Cache interface {
	Get(key string, dst any) bool
	Set(key string, value any, ttl time.Duration)
}

// Provider is the subset of upstream calls the resolver needs.
type Provider interface {
	CoinGeckoList(ctx context.Context) ([]entity.CoinGeckoListEntry, error)
	CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error)
	CoinGeckoSearch(ctx context.Context, query string) (entity.CoinGeckoSearch, error)
	FinnhubQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error)
	FinnhubProfile(ctx context.Context, symbol string) (*entity.EquityProfile, error)
	AlphaVantageQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error)
	FinnhubSearch(ctx context.Context, query string, limit int) ([]provider.SymbolMatch, error)
	AlphaVantageSearch(ctx context.Context, query string, limit int) ([]provider.SymbolMatch, error)
}

type Resolver struct {
	cache    Cache
	provider Provider
}

func New(cache Cache, provider Provider) *Resolver {
	return &Resolver{cache: cache, provider: provider}
}

// IsEquityTicker reports whether s is a bare 1-5 letter token that is not a
// known crypto symbol. Such tokens are tried as equities first.
func IsEquityTicker(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := knownCoinIDs[upper]; ok {
		return false
	}
	return equityTickerRegexp.MatchString(upper)
}

// ResolveCoinID maps a ticker, id or name to a CoinGecko id. It returns ""
// for equity looking tickers and for anything the catalogue does not know.
func (r *Resolver) ResolveCoinID(ctx context.Context, symbolOrID string) (string, error) {
	symbolOrID = strings.TrimSpace(symbolOrID)
	if symbolOrID == "" {
		return "", nil
	}

	upper := strings.ToUpper(symbolOrID)
	if id, ok := knownCoinIDs[upper]; ok {
		return id, nil
	}
	if IsEquityTicker(upper) {
		return "", nil
	}

	return r.ResolveCoinIDFromList(ctx, symbolOrID)
}

// ResolveCoinIDFromList searches the cached coin catalogue, bypassing the
// equity heuristic.
func (r *Resolver) ResolveCoinIDFromList(ctx context.Context, symbolOrID string) (string, error) {
	if id, ok := knownCoinIDs[strings.ToUpper(symbolOrID)]; ok {
		return id, nil
	}

	list, err := r.coinList(ctx)
	if err != nil {
		return "", err
	}

	needle := strings.ToLower(strings.TrimSpace(symbolOrID))
	for _, c := range list {
		if strings.ToLower(c.ID) == needle {
			return c.ID, nil
		}
	}

	var matches []entity.CoinGeckoListEntry
	for _, c := range list {
		if strings.ToLower(c.Symbol) == needle {
			matches = append(matches, c)
		}
	}
	switch {
	case len(matches) == 1:
		return matches[0].ID, nil
	case len(matches) > 1:
		for _, m := range matches {
			if preferredCoinIDs[m.ID] {
				return m.ID, nil
			}
		}
		return matches[0].ID, nil
	}

	for _, c := range list {
		if strings.ToLower(c.Name) == needle {
			return c.ID, nil
		}
	}
	return "", nil
}

func (r *Resolver) coinList(ctx context.Context) ([]entity.CoinGeckoListEntry, error) {
	var list []entity.CoinGeckoListEntry
	if r.cache.Get(constant.CacheKeyCoinList, &list) {
		return list, nil
	}

	list, err := r.provider.CoinGeckoList(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Set(constant.CacheKeyCoinList, list, constant.CacheTTLCoinList)
	return list, nil
}

// Candidates expands raw input such as "btc/usdt" or "BRK.B" into the
// symbols worth trying, most specific first.
func Candidates(raw string) []string {
	sanitized := whitespacePattern.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
	if sanitized == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	push := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] || !candidatePattern.MatchString(v) {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	push(sanitized)
	for _, part := range pairSeparators.Split(sanitized, -1) {
		push(part)
	}
	for _, suffix := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(sanitized, suffix) && len(sanitized) > len(suffix) {
			push(strings.TrimSuffix(sanitized, suffix))
		}
	}
	if strings.Contains(sanitized, ".") {
		for _, part := range strings.Split(sanitized, ".") {
			push(part)
		}
	}
	return out
}

// ResolveAssetMeta returns nil when no candidate resolves to a crypto asset
// or an equity.
func (r *Resolver) ResolveAssetMeta(ctx context.Context, raw string) (*entity.AssetMeta, error) {
	displaySymbol := strings.ToUpper(strings.TrimSpace(raw))
	if displaySymbol == "" {
		return nil, nil
	}

	for _, candidate := range Candidates(displaySymbol) {
		cacheKey := constant.CacheKeyAssetMeta + candidate

		var cached entity.AssetMeta
		if r.cache.Get(cacheKey, &cached) {
			cached.DisplaySymbol = displaySymbol
			return &cached, nil
		}

		meta := r.resolveCandidate(ctx, candidate)
		if meta == nil {
			continue
		}

		r.cache.Set(cacheKey, meta, constant.CacheTTLAssetMeta)
		meta.DisplaySymbol = displaySymbol
		return meta, nil
	}

	return nil, nil
}

func (r *Resolver) resolveCandidate(ctx context.Context, candidate string) *entity.AssetMeta {
	logger := logrus.WithField("candidate", candidate)

	if IsEquityTicker(candidate) {
		if meta := r.resolveEquity(ctx, candidate); meta != nil {
			return meta
		}
		coinID, err := r.ResolveCoinIDFromList(ctx, candidate)
		if err != nil {
			logger.Debug(err)
			return nil
		}
		return r.cryptoMeta(ctx, candidate, coinID)
	}

	coinID, err := r.ResolveCoinID(ctx, candidate)
	if err != nil {
		logger.Debug(err)
	}
	if meta := r.cryptoMeta(ctx, candidate, coinID); meta != nil {
		return meta
	}
	return r.resolveEquity(ctx, candidate)
}

func (r *Resolver) cryptoMeta(ctx context.Context, candidate, coinID string) *entity.AssetMeta {
	if coinID == "" {
		return nil
	}

	meta := &entity.AssetMeta{
		Symbol:    candidate,
		Name:      candidate,
		AssetType: constant.AssetTypeCrypto,
		CoinID:    coinID,
	}

	coin, err := r.provider.CoinGeckoCoin(ctx, coinID, false)
	if err != nil {
		logrus.WithField("coinID", coinID).Debug(err)
		return meta
	}
	if coin.Symbol != "" {
		meta.Symbol = strings.ToUpper(coin.Symbol)
	}
	if coin.Name != "" {
		meta.Name = coin.Name
	}
	if logo := coin.Image.Best(); logo != "" {
		meta.Logo = &logo
	}
	return meta
}

func (r *Resolver) resolveEquity(ctx context.Context, candidate string) *entity.AssetMeta {
	quote, err := r.provider.FinnhubQuote(ctx, candidate)
	if err != nil || quote == nil {
		quote, err = r.provider.AlphaVantageQuote(ctx, candidate)
	}
	if err != nil || quote == nil {
		return nil
	}

	meta := &entity.AssetMeta{
		Symbol:    strings.ToUpper(quote.Symbol),
		Name:      quote.Name,
		AssetType: constant.AssetTypeEquity,
	}
	if meta.Symbol == "" {
		meta.Symbol = candidate
	}
	if meta.Name == "" {
		meta.Name = candidate
	}

	profile, err := r.provider.FinnhubProfile(ctx, candidate)
	if err == nil && profile != nil {
		if profile.Name != "" {
			meta.Name = profile.Name
		}
		meta.Logo = profile.Logo
	}
	return meta
}
