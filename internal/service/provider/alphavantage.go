package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
)

const maxNewsItems = 20

// SymbolMatch is a single equity search hit.
type SymbolMatch struct {
	Symbol string
	Name   string
}

type alphaVantageNewsResponse struct {
	Feed []struct {
		Title           string `json:"title"`
		Summary         string `json:"summary"`
		Source          string `json:"source"`
		URL             string `json:"url"`
		TimePublished   string `json:"time_published"`
		TickerSentiment []struct {
			Ticker string `json:"ticker"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}

type alphaVantageQuoteResponse struct {
	GlobalQuote    map[string]string `json:"Global Quote"`
	GlobalQuoteAlt map[string]string `json:"GlobalQuote"`
}

type alphaVantageSearchResponse struct {
	BestMatches []map[string]string `json:"bestMatches"`
}

func (c *Client) alphaVantageURL(params url.Values) string {
	params.Set("apikey", c.cfg.AlphaVantageKey)
	return c.urls.AlphaVantage + "/query?" + params.Encode()
}

// AlphaVantageNews returns crypto news sentiment items. A nil slice means the
// provider is not configured.
func (c *Client) AlphaVantageNews(ctx context.Context, symbol string) ([]entity.NewsItem, error) {
	if !c.HasAlphaVantage() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("topics", "crypto")
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		params.Set("tickers", strings.ToUpper(symbol))
	}

	resp, err := getJSON(ctx, c, breaker.ProviderAlphaVantage, c.alphaVantageURL(params), &alphaVantageNewsResponse{})
	if err != nil {
		return nil, err
	}

	items := make([]entity.NewsItem, 0, min(len(resp.Feed), maxNewsItems))
	for _, n := range resp.Feed {
		if len(items) == maxNewsItems {
			break
		}
		tickers := make([]string, 0, len(n.TickerSentiment))
		for _, t := range n.TickerSentiment {
			tickers = append(tickers, t.Ticker)
		}
		items = append(items, entity.NewsItem{
			Title:         n.Title,
			Summary:       n.Summary,
			Source:        n.Source,
			URL:           n.URL,
			TimePublished: n.TimePublished,
			Tickers:       tickers,
		})
	}
	return items, nil
}

// AlphaVantageQuote returns nil when the provider is unconfigured or has no quote.
func (c *Client) AlphaVantageQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error) {
	if !c.HasAlphaVantage() {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	resp, err := getJSON(ctx, c, breaker.ProviderAlphaVantage, c.alphaVantageURL(params), &alphaVantageQuoteResponse{})
	if err != nil {
		return nil, err
	}

	quote := resp.GlobalQuote
	if len(quote) == 0 {
		quote = resp.GlobalQuoteAlt
	}
	if len(quote) == 0 {
		return nil, nil
	}

	out := &entity.EquityQuote{Symbol: symbol, Name: symbol}
	rawPrice := quote["05. price"]
	if rawPrice == "" {
		rawPrice = quote["05. Price"]
	}
	if price, err := strconv.ParseFloat(rawPrice, 64); err == nil {
		out.Price = &price
	}
	rawChange := strings.TrimSuffix(strings.TrimSpace(quote["10. change percent"]), "%")
	if change, err := strconv.ParseFloat(rawChange, 64); err == nil {
		out.Change24h = &change
	}
	return out, nil
}

func (c *Client) AlphaVantageSearch(ctx context.Context, query string, limit int) ([]SymbolMatch, error) {
	if !c.HasAlphaVantage() || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)

	resp, err := getJSON(ctx, c, breaker.ProviderAlphaVantage, c.alphaVantageURL(params), &alphaVantageSearchResponse{})
	if err != nil {
		return nil, err
	}

	matches := make([]SymbolMatch, 0, limit)
	for _, m := range resp.BestMatches {
		if len(matches) == limit {
			break
		}
		symbol := strings.ToUpper(m["1. symbol"])
		if symbol == "" {
			continue
		}
		name := m["2. name"]
		if name == "" {
			name = strings.ToUpper(query)
		}
		matches = append(matches, SymbolMatch{Symbol: symbol, Name: name})
	}
	return matches, nil
}
