package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	maxSearchResults    = 20
	coinGeckoSearchSize = 12
	finnhubSearchSize   = 8
	alphaSearchSize     = 5
)

func strPtr(s string) *string { return &s }

var popularAssets = []entity.AssetSuggestion{
	{Symbol: "BTC", DisplaySymbol: "BTC", Name: "Bitcoin", AssetType: constant.AssetTypeCrypto, Logo: strPtr("https://assets.coingecko.com/coins/images/1/large/bitcoin.png"), Source: "static", Score: 1000},
	{Symbol: "ETH", DisplaySymbol: "ETH", Name: "Ethereum", AssetType: constant.AssetTypeCrypto, Logo: strPtr("https://assets.coingecko.com/coins/images/279/large/ethereum.png"), Source: "static", Score: 999},
	{Symbol: "SOL", DisplaySymbol: "SOL", Name: "Solana", AssetType: constant.AssetTypeCrypto, Logo: strPtr("https://assets.coingecko.com/coins/images/4128/large/solana.png"), Source: "static", Score: 998},
	{Symbol: "AAPL", DisplaySymbol: "AAPL", Name: "Apple Inc.", AssetType: constant.AssetTypeEquity, Logo: strPtr("https://logo.clearbit.com/apple.com"), Source: "static", Score: 997},
	{Symbol: "TSLA", DisplaySymbol: "TSLA", Name: "Tesla Inc.", AssetType: constant.AssetTypeEquity, Logo: strPtr("https://logo.clearbit.com/tesla.com"), Source: "static", Score: 996},
	{Symbol: "NVDA", DisplaySymbol: "NVDA", Name: "NVIDIA Corporation", AssetType: constant.AssetTypeEquity, Logo: strPtr("https://logo.clearbit.com/nvidia.com"), Source: "static", Score: 995},
	{Symbol: "MSFT", DisplaySymbol: "MSFT", Name: "Microsoft Corporation", AssetType: constant.AssetTypeEquity, Logo: strPtr("https://logo.clearbit.com/microsoft.com"), Source: "static", Score: 994},
	{Symbol: "AMZN", DisplaySymbol: "AMZN", Name: "Amazon.com Inc.", AssetType: constant.AssetTypeEquity, Logo: strPtr("https://logo.clearbit.com/amazon.com"), Source: "static", Score: 993},
	{Symbol: "META", DisplaySymbol: "META", Name: "Meta Platforms Inc.", AssetType: constant.AssetTypeEquity, Logo: strPtr("https://logo.clearbit.com/meta.com"), Source: "static", Score: 992},
	{Symbol: "DOGE", DisplaySymbol: "DOGE", Name: "Dogecoin", AssetType: constant.AssetTypeCrypto, Logo: strPtr("https://assets.coingecko.com/coins/images/5/large/dogecoin.png"), Source: "static", Score: 991},
	{Symbol: "ADA", DisplaySymbol: "ADA", Name: "Cardano", AssetType: constant.AssetTypeCrypto, Logo: strPtr("https://assets.coingecko.com/coins/images/975/large/cardano.png"), Source: "static", Score: 990},
	{Symbol: "MATIC", DisplaySymbol: "MATIC", Name: "Polygon", AssetType: constant.AssetTypeCrypto, Logo: strPtr("https://assets.coingecko.com/coins/images/4713/large/matic-token-icon.png"), Source: "static", Score: 989},
}

// Search returns ranked suggestions for q across crypto and equity
// providers. An empty q yields the popular list.
func (r *Resolver) Search(ctx context.Context, q string) ([]entity.AssetSuggestion, error) {
	trimmed := strings.TrimSpace(q)
	cacheKey := constant.CacheKeyPopularAsset
	if trimmed != "" {
		cacheKey = constant.CacheKeyAssetSearch + strings.ToUpper(trimmed)
	}

	var cached []entity.AssetSuggestion
	if r.cache.Get(cacheKey, &cached) {
		return cached, nil
	}

	if trimmed == "" {
		popular := capSuggestions(dedupeAndRank(popularAssets))
		r.cache.Set(cacheKey, popular, constant.CacheTTLPopularAssets)
		return popular, nil
	}

	var crypto, finnhub, alpha []entity.AssetSuggestion
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		crypto = r.searchCoinGecko(egCtx, trimmed)
		return nil
	})
	eg.Go(func() error {
		finnhub = r.searchEquities(egCtx, "finnhub", trimmed, finnhubSearchSize, 600, r.provider.FinnhubSearch)
		return nil
	})
	eg.Go(func() error {
		alpha = r.searchEquities(egCtx, "alphavantage", trimmed, alphaSearchSize, 500, r.provider.AlphaVantageSearch)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	combined := make([]entity.AssetSuggestion, 0, len(crypto)+len(finnhub)+len(alpha))
	combined = append(combined, crypto...)
	combined = append(combined, finnhub...)
	combined = append(combined, alpha...)
	ranked := dedupeAndRank(combined)

	if len(ranked) == 0 {
		needle := strings.ToUpper(trimmed)
		var fuzzy []entity.AssetSuggestion
		for _, item := range popularAssets {
			if strings.Contains(strings.ToUpper(item.Symbol), needle) || strings.Contains(strings.ToUpper(item.Name), needle) {
				fuzzy = append(fuzzy, item)
			}
		}
		ranked = dedupeAndRank(fuzzy)
	}

	final := capSuggestions(ranked)
	r.cache.Set(cacheKey, final, constant.CacheTTLAssetSearch)
	return final, nil
}

func (r *Resolver) searchCoinGecko(ctx context.Context, q string) []entity.AssetSuggestion {
	res, err := r.provider.CoinGeckoSearch(ctx, q)
	if err != nil {
		logrus.WithField("query", q).Warnf("coingecko search failed: %v", err)
		return nil
	}

	out := make([]entity.AssetSuggestion, 0, coinGeckoSearchSize)
	for idx, coin := range res.Coins {
		if idx == coinGeckoSearchSize {
			break
		}
		symbol := strings.ToUpper(coin.Symbol)
		if symbol == "" {
			continue
		}

		name := coin.Name
		if name == "" {
			name = symbol
		}
		s := entity.AssetSuggestion{
			Symbol:        symbol,
			DisplaySymbol: symbol,
			Name:          name,
			AssetType:     constant.AssetTypeCrypto,
			Source:        "coingecko",
			Score:         float64(800 - idx),
		}
		if coin.MarketCapRank != nil {
			s.Score = max(0, float64(2000-*coin.MarketCapRank))
		}
		switch {
		case coin.Large != "":
			s.Logo = strPtr(coin.Large)
		case coin.Thumb != "":
			s.Logo = strPtr(coin.Thumb)
		}
		out = append(out, s)
	}
	return out
}

type equitySearchFunc func(ctx context.Context, query string, limit int) ([]provider.SymbolMatch, error)

func (r *Resolver) searchEquities(ctx context.Context, source, q string, limit int, baseScore float64, search equitySearchFunc) []entity.AssetSuggestion {
	matches, err := search(ctx, q, limit)
	if err != nil {
		logrus.WithField("query", q).Warnf("%s search failed: %v", source, err)
		return nil
	}

	out := make([]entity.AssetSuggestion, 0, len(matches))
	for idx, m := range matches {
		out = append(out, entity.AssetSuggestion{
			Symbol:        m.Symbol,
			DisplaySymbol: m.Symbol,
			Name:          m.Name,
			AssetType:     constant.AssetTypeEquity,
			Source:        source,
			Score:         baseScore - float64(idx),
		})
	}
	return out
}

// dedupeAndRank keeps the best scored entry per (assetType, symbol) and sorts
// by score descending.
func dedupeAndRank(list []entity.AssetSuggestion) []entity.AssetSuggestion {
	best := make(map[string]int)
	var out []entity.AssetSuggestion
	for _, raw := range list {
		if raw.Symbol == "" {
			continue
		}
		s := normalizeSuggestion(raw)
		key := s.AssetType + ":" + s.Symbol
		if idx, ok := best[key]; ok {
			if s.Score > out[idx].Score {
				out[idx] = s
			}
			continue
		}
		best[key] = len(out)
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func normalizeSuggestion(s entity.AssetSuggestion) entity.AssetSuggestion {
	s.Symbol = strings.ToUpper(s.Symbol)
	if s.DisplaySymbol == "" {
		s.DisplaySymbol = s.Symbol
	}
	s.DisplaySymbol = strings.ToUpper(s.DisplaySymbol)
	if s.Name == "" {
		s.Name = s.DisplaySymbol
	}
	if s.AssetType != constant.AssetTypeEquity {
		s.AssetType = constant.AssetTypeCrypto
	}
	if s.Source == "" {
		s.Source = "unknown"
	}
	return s
}

func capSuggestions(list []entity.AssetSuggestion) []entity.AssetSuggestion {
	if len(list) > maxSearchResults {
		list = list[:maxSearchResults]
	}
	if list == nil {
		return []entity.AssetSuggestion{}
	}
	return list
}
