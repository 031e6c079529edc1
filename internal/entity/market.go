package entity

import "github.com/goccy/go-json"

// CoinGeckoMarket is one row of the CoinGecko markets endpoint.
type CoinGeckoMarket struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	PriceChange1hInCurrency  *float64 `json:"price_change_percentage_1h_in_currency"`
	PriceChange7dInCurrency  *float64 `json:"price_change_percentage_7d_in_currency"`
	SparklineIn7d            *struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d"`
}

type CoinGeckoGlobal struct {
	Data struct {
		TotalMarketCap                  map[string]float64 `json:"total_market_cap"`
		MarketCapPercentage             map[string]float64 `json:"market_cap_percentage"`
		MarketCapChangePercentage24hUSD *float64           `json:"market_cap_change_percentage_24h_usd"`
	} `json:"data"`
}

type CoinGeckoImage struct {
	Thumb string `json:"thumb"`
	Small string `json:"small"`
	Large string `json:"large"`
}

func (i CoinGeckoImage) Best() string {
	switch {
	case i.Large != "":
		return i.Large
	case i.Small != "":
		return i.Small
	default:
		return i.Thumb
	}
}

type CoinGeckoCoin struct {
	ID               string            `json:"id"`
	Symbol           string            `json:"symbol"`
	Name             string            `json:"name"`
	Description      map[string]string `json:"description"`
	GenesisDate      *string           `json:"genesis_date"`
	HashingAlgorithm *string           `json:"hashing_algorithm"`
	Links            struct {
		Homepage         []string `json:"homepage"`
		OfficialForumURL []string `json:"official_forum_url"`
	} `json:"links"`
	Image      CoinGeckoImage `json:"image"`
	MarketData *struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		MarketCap                map[string]float64 `json:"market_cap"`
		High24h                  map[string]float64 `json:"high_24h"`
		Low24h                   map[string]float64 `json:"low_24h"`
		PriceChangePercentage24h *float64           `json:"price_change_percentage_24h"`
		PriceChangePercentage7d  *float64           `json:"price_change_percentage_7d"`
		PriceChange7dInCurrency  map[string]float64 `json:"price_change_percentage_7d_in_currency"`
	} `json:"market_data"`
	SparklineIn7d *struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d"`
}

type CoinGeckoListEntry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type CoinGeckoSearch struct {
	Coins []struct {
		ID            string `json:"id"`
		Symbol        string `json:"symbol"`
		Name          string `json:"name"`
		MarketCapRank *int   `json:"market_cap_rank"`
		Thumb         string `json:"thumb"`
		Large         string `json:"large"`
	} `json:"coins"`
}

type MarketItem struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Image     *string   `json:"image"`
	Price     *float64  `json:"price"`
	MarketCap *float64  `json:"market_cap,omitempty"`
	Change1h  *float64  `json:"change_1h"`
	Change24h *float64  `json:"change_24h"`
	Change7d  *float64  `json:"change_7d"`
	Volume24h *float64  `json:"volume_24h,omitempty"`
	Spark     []float64 `json:"spark,omitempty"`
}

type CoinMarketData struct {
	CurrentPrice             *float64  `json:"current_price,omitempty"`
	MarketCap                *float64  `json:"market_cap,omitempty"`
	High24h                  *float64  `json:"high_24h,omitempty"`
	Low24h                   *float64  `json:"low_24h,omitempty"`
	PriceChangePercentage24h *float64  `json:"price_change_percentage_24h,omitempty"`
	PriceChangePercentage7d  *float64  `json:"price_change_percentage_7d,omitempty"`
	Spark                    []float64 `json:"spark,omitempty"`
}

// CoinDetail is the normalized coin or equity payload served by the coin endpoints.
type CoinDetail struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	GenesisDate      *string         `json:"genesis_date"`
	HashingAlgorithm *string         `json:"hashing_algorithm"`
	Homepage         *string         `json:"homepage"`
	MarketData       *CoinMarketData `json:"market_data"`
	Image            *string         `json:"image"`
}

// CoinResult is a per symbol outcome of a coin lookup.
type CoinResult struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  *CoinDetail `json:"-"`
}

// MarshalJSON flattens the detail next to the ok flag.
func (r CoinResult) MarshalJSON() ([]byte, error) {
	if r.Data == nil {
		type plain struct {
			OK    bool   `json:"ok"`
			Error string `json:"error,omitempty"`
		}
		return json.Marshal(plain{OK: r.OK, Error: r.Error})
	}
	type withData struct {
		OK bool `json:"ok"`
		*CoinDetail
	}
	return json.Marshal(withData{OK: r.OK, CoinDetail: r.Data})
}

type BatchCoinItem struct {
	Symbol string     `json:"symbol"`
	Data   CoinResult `json:"data"`
}

type FearGreed struct {
	Value          float64 `json:"value"`
	Classification string  `json:"classification"`
	Time           int64   `json:"time"`
}

type GlobalMetrics struct {
	MarketCapUSD          *float64   `json:"marketCapUsd"`
	BTCDominancePct       *float64   `json:"btcDominancePct"`
	MarketCapChange24hPct *float64   `json:"marketCapChange24hPct"`
	FearGreed             *FearGreed `json:"fearGreed"`
	AltcoinSeasonIndex    *float64   `json:"altcoinSeasonIndex"`
}

type EquityQuote struct {
	Symbol    string
	Name      string
	Price     *float64
	Change24h *float64
}

type EquityProfile struct {
	Name string
	Logo *string
}

type NewsItem struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Source        string   `json:"source"`
	URL           string   `json:"url"`
	TimePublished string   `json:"time_published"`
	Tickers       []string `json:"tickers"`
}

type NewsFeed struct {
	Source string     `json:"source"`
	Items  []NewsItem `json:"items"`
}
