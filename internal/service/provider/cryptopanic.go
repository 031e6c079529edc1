package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
)

const defaultCryptoPanicCurrencies = "BTC,ETH,SOL,ADA,MATIC"

type cryptoPanicResponse struct {
	Results []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Domain      string `json:"domain"`
		PublishedAt string `json:"published_at"`
		Source      *struct {
			Title string `json:"title"`
		} `json:"source"`
		Metadata *struct {
			Description string `json:"description"`
		} `json:"metadata"`
		Currencies []struct {
			Code string `json:"code"`
		} `json:"currencies"`
	} `json:"results"`
}

// CryptoPanicNews returns public posts for symbol, or the default majors when
// symbol is empty. A nil slice means the provider is not configured.
func (c *Client) CryptoPanicNews(ctx context.Context, symbol string) ([]entity.NewsItem, error) {
	if !c.HasCryptoPanic() {
		return nil, nil
	}

	currencies := defaultCryptoPanicCurrencies
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		currencies = strings.ToUpper(symbol)
	}

	params := url.Values{}
	params.Set("auth_token", c.cfg.CryptoPanicKey)
	params.Set("public", "true")
	params.Set("currencies", currencies)

	resp, err := getJSON(ctx, c, breaker.ProviderCryptoPanic, c.urls.CryptoPanic+"/posts/?"+params.Encode(), &cryptoPanicResponse{})
	if err != nil {
		return nil, err
	}

	items := make([]entity.NewsItem, 0, min(len(resp.Results), maxNewsItems))
	for _, post := range resp.Results {
		if len(items) == maxNewsItems {
			break
		}

		item := entity.NewsItem{
			Title:         post.Title,
			Summary:       post.Description,
			Source:        post.Domain,
			URL:           post.URL,
			TimePublished: post.PublishedAt,
			Tickers:       make([]string, 0, len(post.Currencies)),
		}
		if item.Title == "" {
			item.Title = "Crypto News"
		}
		if item.Summary == "" && post.Metadata != nil {
			item.Summary = post.Metadata.Description
		}
		if item.Summary == "" {
			item.Summary = post.Title
		}
		if post.Source != nil && post.Source.Title != "" {
			item.Source = post.Source.Title
		}
		if item.Source == "" {
			item.Source = "CryptoPanic"
		}
		if item.URL == "" && post.ID != 0 {
			item.URL = fmt.Sprintf("https://cryptopanic.com/news/%d", post.ID)
		}
		for _, cur := range post.Currencies {
			item.Tickers = append(item.Tickers, strings.ToUpper(cur.Code))
		}
		items = append(items, item)
	}
	return items, nil
}
