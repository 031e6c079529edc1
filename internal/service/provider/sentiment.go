package provider

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
)

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// FearGreed returns the latest alternative.me index, or nil when the feed is empty.
func (c *Client) FearGreed(ctx context.Context) (*entity.FearGreed, error) {
	resp, err := getJSON[fearGreedResponse](ctx, c, breaker.ProviderFearGreed, c.urls.FearGreed+"/fng/?limit=1", nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	latest := resp.Data[0]
	value, err := strconv.ParseFloat(latest.Value, 64)
	if err != nil {
		return nil, err
	}
	ts, _ := strconv.ParseInt(latest.Timestamp, 10, 64)

	return &entity.FearGreed{
		Value:          value,
		Classification: latest.ValueClassification,
		Time:           ts * 1000,
	}, nil
}

// AltcoinSeasonIndex reads whichever of the known index fields the upstream sends.
func (c *Client) AltcoinSeasonIndex(ctx context.Context) (*float64, error) {
	resp, err := getJSON[map[string]json.RawMessage](ctx, c, breaker.ProviderAltSeason, c.urls.AltSeason+"/altcoin-season-index", nil)
	if err != nil {
		return nil, err
	}

	for _, field := range []string{"altcoin_season_index", "altseason", "value"} {
		raw, ok := resp[field]
		if !ok {
			continue
		}
		if v, ok := parseLooseNumber(raw); ok {
			return &v, nil
		}
	}
	return nil, nil
}

// parseLooseNumber accepts both 42 and "42".
func parseLooseNumber(raw json.RawMessage) (float64, bool) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}
