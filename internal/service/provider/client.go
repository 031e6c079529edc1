package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultRequestTimeout    = 10 * time.Second
	defaultRequestsPerSecond = 5
	maxErrorBodyBytes        = 512
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %d", e.Provider, e.Code)
}

// BaseURLs holds the upstream roots. Tests point them at httptest servers.
type BaseURLs struct {
	CoinGecko    string
	AlphaVantage string
	Finnhub      string
	CryptoPanic  string
	FearGreed    string
	AltSeason    string
}

func DefaultBaseURLs() BaseURLs {
	return BaseURLs{
		CoinGecko:    "https://api.coingecko.com/api/v3",
		AlphaVantage: "https://www.alphavantage.co",
		Finnhub:      "https://finnhub.io/api/v1",
		CryptoPanic:  "https://cryptopanic.com/api/v1",
		FearGreed:    "https://api.alternative.me",
		AltSeason:    "https://www.blockchaincenter.net/api",
	}
}

type Config struct {
	AlphaVantageKey   string
	FinnhubAPIKey     string
	CryptoPanicKey    string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	NewsFeeds         []string
	BaseURLs          BaseURLs
	HTTPClient        *http.Client
}

// Client performs paced, breaker guarded calls against the market data providers.
type Client struct {
	cfg        Config
	urls       BaseURLs
	httpClient *http.Client
	breakers   *breaker.Registry

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewClient(cfg Config, breakers *breaker.Registry) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}

	urls := DefaultBaseURLs()
	if cfg.BaseURLs.CoinGecko != "" {
		urls.CoinGecko = cfg.BaseURLs.CoinGecko
	}
	if cfg.BaseURLs.AlphaVantage != "" {
		urls.AlphaVantage = cfg.BaseURLs.AlphaVantage
	}
	if cfg.BaseURLs.Finnhub != "" {
		urls.Finnhub = cfg.BaseURLs.Finnhub
	}
	if cfg.BaseURLs.CryptoPanic != "" {
		urls.CryptoPanic = cfg.BaseURLs.CryptoPanic
	}
	if cfg.BaseURLs.FearGreed != "" {
		urls.FearGreed = cfg.BaseURLs.FearGreed
	}
	if cfg.BaseURLs.AltSeason != "" {
		urls.AltSeason = cfg.BaseURLs.AltSeason
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if breakers == nil {
		breakers = breaker.NewRegistry(nil)
	}

	return &Client{
		cfg:        cfg,
		urls:       urls,
		httpClient: httpClient,
		breakers:   breakers,
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (c *Client) Breakers() *breaker.Registry {
	return c.breakers
}

func (c *Client) HasFinnhub() bool {
	return strings.TrimSpace(c.cfg.FinnhubAPIKey) != ""
}

func (c *Client) HasAlphaVantage() bool {
	return strings.TrimSpace(c.cfg.AlphaVantageKey) != ""
}

func (c *Client) HasCryptoPanic() bool {
	return strings.TrimSpace(c.cfg.CryptoPanicKey) != ""
}

func (c *Client) limiter(provider string) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	l, ok := c.limiters[provider]
	if !ok {
		burst := int(c.cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), burst)
		c.limiters[provider] = l
	}
	return l
}

func (c *Client) fetchJSON(ctx context.Context, provider, url string, dst any) error {
	if err := c.limiter(provider).Wait(ctx); err != nil {
		return fmt.Errorf("%s: wait for rate limit: %w", provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		logrus.WithFields(logrus.Fields{
			"provider": provider,
			"status":   resp.StatusCode,
		}).Warn("upstream request failed")
		return &StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

// getJSON decodes url into T through the provider breaker.
func getJSON[T any](ctx context.Context, c *Client, provider, url string, fallback *T) (T, error) {
	return breaker.Call(ctx, c.breakers, provider, func(ctx context.Context) (T, error) {
		var out T
		err := c.fetchJSON(ctx, provider, url, &out)
		return out, err
	}, fallback)
}
