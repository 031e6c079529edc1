package constant

import "time"

const (
	CacheTTLMarket        = 30 * time.Second
	CacheTTLCoin          = 60 * time.Second
	CacheTTLCryptoPrices  = 90 * time.Second
	CacheTTLMetrics       = 120 * time.Second
	CacheTTLStocks        = 60 * time.Second
	CacheTTLNews          = 3 * time.Hour
	CacheTTLCoinList      = 6 * time.Hour
	CacheTTLAssetMeta     = 15 * time.Minute
	CacheTTLAssetSearch   = 5 * time.Minute
	CacheTTLPopularAssets = 2 * time.Hour
	CacheTTLSignals       = 45 * time.Second
	CacheTTLSignalsMarket = 30 * time.Second
	CacheTTLLastGood      = 24 * time.Hour
)

const (
	CacheKeyCoinList     = "coingecko:list"
	CacheKeyAssetMeta    = "asset_meta:"
	CacheKeySignalsAll   = "signals:"
	CacheKeyLastGood     = "lastgood:"
	CacheKeyAssetSearch  = "asset_search:"
	CacheKeyPopularAsset = "asset_search:popular"
)

const (
	CacheKeyMarketTop     = "market:top:"
	CacheKeyCoin          = "coin:"
	CacheKeyPricesCrypto  = "prices:crypto:"
	CacheKeyPricesStocks  = "prices:stocks:"
	CacheKeyMetrics       = "metrics:global"
	CacheKeyNews          = "news:"
	CacheKeySignalsLatest = "signals:latest:"
	CacheKeySignalsMarket = "signals:fallback_market:"
)
