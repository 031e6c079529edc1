package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
)

func (c *Client) CoinGeckoMarkets(ctx context.Context, vsCurrency string, perPage int, sparkline bool) ([]entity.CoinGeckoMarket, error) {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", "1")
	q.Set("sparkline", strconv.FormatBool(sparkline))
	q.Set("price_change_percentage", "1h,24h,7d")

	return getJSON[[]entity.CoinGeckoMarket](ctx, c, breaker.ProviderCoinGecko, c.urls.CoinGecko+"/coins/markets?"+q.Encode(), nil)
}

func (c *Client) CoinGeckoGlobal(ctx context.Context) (entity.CoinGeckoGlobal, error) {
	return getJSON[entity.CoinGeckoGlobal](ctx, c, breaker.ProviderCoinGecko, c.urls.CoinGecko+"/global", nil)
}

func (c *Client) CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error) {
	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("market_data", "true")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")
	q.Set("sparkline", strconv.FormatBool(sparkline))

	endpoint := fmt.Sprintf("%s/coins/%s?%s", c.urls.CoinGecko, url.PathEscape(id), q.Encode())
	coin, err := getJSON[entity.CoinGeckoCoin](ctx, c, breaker.ProviderCoinGecko, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &coin, nil
}

// CoinGeckoList fetches the full id/symbol/name catalogue. It is large, so
// callers cache it.
func (c *Client) CoinGeckoList(ctx context.Context) ([]entity.CoinGeckoListEntry, error) {
	return getJSON[[]entity.CoinGeckoListEntry](ctx, c, breaker.ProviderCoinGecko, c.urls.CoinGecko+"/coins/list", nil)
}

func (c *Client) CoinGeckoSearch(ctx context.Context, query string) (entity.CoinGeckoSearch, error) {
	endpoint := c.urls.CoinGecko + "/search?query=" + url.QueryEscape(query)
	return getJSON(ctx, c, breaker.ProviderCoinGecko, endpoint, &entity.CoinGeckoSearch{})
}
