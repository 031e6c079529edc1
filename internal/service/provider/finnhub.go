package provider

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
)

var finnhubSymbolPattern = regexp.MustCompile(`^[A-Z.]{1,6}$`)

type finnhubQuoteResponse struct {
	Current       *float64 `json:"c"`
	ChangePercent *float64 `json:"dp"`
}

type finnhubProfileResponse struct {
	Name string `json:"name"`
	Logo string `json:"logo"`
}

type finnhubCandleResponse struct {
	Status string    `json:"s"`
	Close  []float64 `json:"c"`
}

type finnhubSearchResponse struct {
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
	} `json:"result"`
}

func (c *Client) finnhubURL(path string, params url.Values) string {
	params.Set("token", c.cfg.FinnhubAPIKey)
	return fmt.Sprintf("%s%s?%s", c.urls.Finnhub, path, params.Encode())
}

// FinnhubQuote returns nil when Finnhub is unconfigured or knows no price for symbol.
func (c *Client) FinnhubQuote(ctx context.Context, symbol string) (*entity.EquityQuote, error) {
	if !c.HasFinnhub() {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("symbol", symbol)
	resp, err := getJSON(ctx, c, breaker.ProviderFinnhub, c.finnhubURL("/quote", params), &finnhubQuoteResponse{})
	if err != nil {
		return nil, err
	}
	// Finnhub answers unknown tickers with c=0.
	if resp.Current == nil || *resp.Current == 0 {
		return nil, nil
	}

	return &entity.EquityQuote{
		Symbol:    symbol,
		Name:      symbol,
		Price:     resp.Current,
		Change24h: resp.ChangePercent,
	}, nil
}

func (c *Client) FinnhubProfile(ctx context.Context, symbol string) (*entity.EquityProfile, error) {
	if !c.HasFinnhub() {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("symbol", symbol)
	resp, err := getJSON(ctx, c, breaker.ProviderFinnhub, c.finnhubURL("/stock/profile2", params), &finnhubProfileResponse{})
	if err != nil {
		return nil, err
	}

	profile := &entity.EquityProfile{Name: resp.Name}
	if profile.Name == "" {
		profile.Name = symbol
	}
	if resp.Logo != "" {
		logo := resp.Logo
		profile.Logo = &logo
	}
	return profile, nil
}

// FinnhubChangePercent computes the percent move across candles of the given
// resolution between from and to. Nil when there are fewer than two closes.
func (c *Client) FinnhubChangePercent(ctx context.Context, symbol, resolution string, from, to time.Time) (*float64, error) {
	if !c.HasFinnhub() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	resp, err := getJSON(ctx, c, breaker.ProviderFinnhub, c.finnhubURL("/stock/candle", params), &finnhubCandleResponse{})
	if err != nil {
		return nil, err
	}
	if resp.Status != "ok" || len(resp.Close) < 2 {
		return nil, nil
	}

	first := resp.Close[0]
	last := resp.Close[len(resp.Close)-1]
	if first == 0 {
		return nil, nil
	}
	change := (last - first) / first * 100
	return &change, nil
}

func (c *Client) FinnhubSearch(ctx context.Context, query string, limit int) ([]SymbolMatch, error) {
	if !c.HasFinnhub() || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	resp, err := getJSON(ctx, c, breaker.ProviderFinnhub, c.finnhubURL("/search", params), &finnhubSearchResponse{})
	if err != nil {
		return nil, err
	}

	matches := make([]SymbolMatch, 0, limit)
	for _, row := range resp.Result {
		if len(matches) == limit {
			break
		}
		if !finnhubSymbolPattern.MatchString(row.Symbol) {
			continue
		}
		name := row.Description
		if name == "" {
			name = row.Symbol
		}
		matches = append(matches, SymbolMatch{Symbol: strings.ToUpper(row.Symbol), Name: name})
	}
	return matches, nil
}
