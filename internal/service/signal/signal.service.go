package signal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxFallbackLimit = 20
	defaultPruneDays = 10
	countCacheLimit  = 100
	sourcePostgres   = "postgres"
	sourceFallback   = "fallback_market"
	sourceCache      = "cache"
	sourceNone       = "none"
)

var (
	ErrMissingSymbol = errors.New("missing_symbol")
	ErrUnknownSymbol = errors.New("unknown_symbol")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrNotFound      = errors.New("not_found")
)

var seedCryptoPattern = regexp.MustCompile(`(?i)BTC|ETH|SOL|ADA|DOGE|BNB|XRP|DOT|AVAX|LINK`)

type Repository interface {
	Latest(ctx context.Context, limit uint64) ([]entity.Signal, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, signal *entity.Signal) error
	Patch(ctx context.Context, id int64, patch entity.SignalPatch) (*entity.Signal, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Prune(ctx context.Context, days int) (int64, error)
}

type Cache interface {
	Get(key string, dst any) bool
	Set(key string, value any, ttl time.Duration)
	DeletePrefix(prefix string) int
}

type MarketProvider interface {
	CoinGeckoMarkets(ctx context.Context, vsCurrency string, perPage int, sparkline bool) ([]entity.CoinGeckoMarket, error)
}

type AssetResolver interface {
	ResolveAssetMeta(ctx context.Context, raw string) (*entity.AssetMeta, error)
}

type SignalService struct {
	repo      Repository
	cache     Cache
	market    MarketProvider
	resolver  AssetResolver
	publisher entity.EventPublisher
	pruneDays int
	now       func() time.Time
}

func NewSignalService(repo Repository, cache Cache, market MarketProvider, resolver AssetResolver, publisher entity.EventPublisher, pruneDays int) *SignalService {
	if pruneDays <= 0 {
		pruneDays = defaultPruneDays
	}
	return &SignalService{
		repo:      repo,
		cache:     cache,
		market:    market,
		resolver:  resolver,
		publisher: publisher,
		pruneDays: pruneDays,
		now:       time.Now,
	}
}

// ClampListLimit bounds the requested page size to 1..100, defaulting to 20
// when raw is not a number.
func ClampListLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultListLimit
	}
	return max(1, min(n, maxListLimit))
}

// List returns the newest signals. When storage has none it synthesizes
// momentum signals from the market feed.
func (s *SignalService) List(ctx context.Context, limit int) (entity.SignalList, error) {
	cacheKey := fmt.Sprintf("%s%d", constant.CacheKeySignalsLatest, limit)

	var list entity.SignalList
	if s.cache.Get(cacheKey, &list) && len(list.Items) > 0 {
		return list, nil
	}

	if _, err := s.Prune(ctx); err != nil {
		logrus.Warnf("prune signals: %v", err)
	}

	rows, err := s.repo.Latest(ctx, uint64(limit))
	if err != nil {
		logrus.WithField("limit", limit).Warnf("list signals: %v", err)
	}
	if len(rows) > 0 {
		now := s.now()
		list = entity.SignalList{Source: sourcePostgres, Items: make([]entity.SignalView, 0, len(rows))}
		for _, row := range rows {
			list.Items = append(list.Items, FormatSignal(row, now))
		}
		s.cache.Set(cacheKey, list, constant.CacheTTLSignals)
		return list, nil
	}

	markets, err := s.market.CoinGeckoMarkets(ctx, "usd", min(limit, maxFallbackLimit), false)
	if err != nil {
		return entity.SignalList{Source: sourceNone, Items: []entity.SignalView{}}, err
	}

	now := s.now()
	list = entity.SignalList{Source: sourceNone, Items: make([]entity.SignalView, 0, len(markets))}
	for _, m := range markets {
		list.Items = append(list.Items, marketSignal(m, now))
	}
	if len(list.Items) > 0 {
		list.Source = sourceFallback
		s.cache.Set(cacheKey, list, constant.CacheTTLSignalsMarket)
	}

	return list, nil
}

// Count reports the stored total, or the size of a cached page when storage
// is unreachable.
func (s *SignalService) Count(ctx context.Context) entity.SignalCount {
	count, err := s.repo.Count(ctx)
	if err == nil {
		return entity.SignalCount{Count: count, Source: sourcePostgres}
	}
	logrus.Warnf("count signals: %v", err)

	var list entity.SignalList
	if s.cache.Get(fmt.Sprintf("%s%d", constant.CacheKeySignalsLatest, countCacheLimit), &list) {
		return entity.SignalCount{Count: int64(len(list.Items)), Source: sourceCache}
	}
	return entity.SignalCount{Count: 0, Source: sourceNone}
}

// Prune removes signals past retention and drops the cached lists holding them.
func (s *SignalService) Prune(ctx context.Context) (int64, error) {
	removed, err := s.repo.Prune(ctx, s.pruneDays)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.invalidate()
	}
	return removed, nil
}

func (s *SignalService) invalidate() {
	s.cache.DeletePrefix(constant.CacheKeySignalsAll)
}

func (s *SignalService) publish(ctx context.Context, view entity.SignalView) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, constant.DashboardEventSignalAdded, entity.SignalAddedEvent{Signal: view}); err != nil {
		logrus.WithField("symbol", view.Symbol).Warnf("publish signal_added: %v", err)
	}
}

// Create stores a signal posted by a bot or an admin. body is the loosely
// typed request document.
func (s *SignalService) Create(ctx context.Context, body map[string]any) (*entity.SignalView, error) {
	rawSymbol := firstString(body["symbol"], body["displaySymbol"], body["display_symbol"])
	if rawSymbol == "" {
		return nil, ErrMissingSymbol
	}

	meta, err := s.resolver.ResolveAssetMeta(ctx, rawSymbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrUnknownSymbol
	}

	row := buildSignal(body, meta, s.now())
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}

	if _, err := s.Prune(ctx); err != nil {
		logrus.Warnf("prune signals: %v", err)
	}
	s.invalidate()

	view := FormatSignal(*row, s.now())
	s.publish(ctx, view)

	return &view, nil
}

func buildSignal(body map[string]any, meta *entity.AssetMeta, now time.Time) *entity.Signal {
	symbol := meta.Symbol
	displaySymbol := strings.ToUpper(firstString(body["displaySymbol"], body["display_symbol"], meta.DisplaySymbol, symbol))

	signalType := entity.SignalTypeBuy
	if strings.Contains(strings.ToUpper(stringValue(body["type"])), entity.SignalTypeSell) {
		signalType = entity.SignalTypeSell
	}

	assetType := strings.ToLower(firstString(meta.AssetType, body["assetType"], body["asset_type"], constant.AssetTypeEquity))
	assetName := firstString(meta.Name, displaySymbol)
	signalStrength := firstString(body["signalStrength"], body["signal_strength"])

	status := strings.ToLower(firstString(body["status"], entity.SignalStatusActive))
	if !entity.IsValidSignalStatus(status) {
		status = entity.SignalStatusActive
	}

	description := strings.TrimSpace(stringValue(body["description"]))
	performance, _ := body["performance"].(string)

	bodyDetails, _ := body["details"].(map[string]any)
	details := entity.JSONMap{}
	if parsed := parseMaybeJSON(body["details"]); parsed != nil {
		for k, v := range parsed {
			details[k] = v
		}
	}

	timeframes, ok := body["timeframes"].(map[string]any)
	if !ok {
		timeframes = parseMaybeJSON(body["recommendations"])
	}
	if timeframes != nil {
		details["timeframes"] = timeframes
	}
	if entry, ok := body["entry"].(map[string]any); ok {
		details["entry"] = entry
	}
	if targets, ok := body["targets"].([]any); ok {
		details["targets"] = targets
	}
	if stop, ok := body["stop"].(map[string]any); ok {
		details["stop"] = stop
	}

	setDefault := func(key string, value any) {
		if value == nil || value == "" {
			return
		}
		if existing, ok := details[key]; ok && existing != nil && existing != "" {
			return
		}
		details[key] = value
	}
	setDefault("confidence", coalesce(body["confidence"], bodyDetails["confidence"]))
	setDefault("score", coalesce(body["score"], bodyDetails["score"]))
	setDefault("chart_url", firstString(body["chartUrl"], body["chart_url"], bodyDetails["chart_url"]))
	setDefault("asset_type", assetType)
	setDefault("asset_name", assetName)
	setDefault("signal_strength", signalStrength)
	setDefault("displaySymbol", displaySymbol)
	setDefault("rawSymbol", symbol)
	setDefault("symbol_meta", meta)
	if meta.Logo != nil {
		setDefault("logo_url", *meta.Logo)
		setDefault("logoUrl", *meta.Logo)
	}
	setDefault("summary", description)
	setDefault("posted_at", stringValue(body["timestamp"]))

	recommendations := description
	switch rec := body["recommendations"].(type) {
	case string:
		recommendations = rec
	case map[string]any:
		if raw, err := json.Marshal(rec); err == nil {
			recommendations = string(raw)
		}
	default:
		if timeframes != nil {
			if raw, err := json.Marshal(timeframes); err == nil {
				recommendations = string(raw)
			}
		}
	}

	timestamp := now
	if raw := stringValue(body["timestamp"]); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			timestamp = t
		}
	}

	row := &entity.Signal{
		Symbol:          symbol,
		DisplaySymbol:   null.StringFrom(displaySymbol),
		SignalType:      signalType,
		SignalStrength:  null.NewString(signalStrength, signalStrength != ""),
		AssetType:       null.StringFrom(assetType),
		Recommendations: null.StringFrom(recommendations),
		Performance:     null.StringFrom(performance),
		Status:          null.StringFrom(status),
		Timestamp:       null.TimeFrom(timestamp),
	}
	if price := util.Float(body["price"]); price != nil {
		row.Price = decimal.NewNullDecimal(decimal.NewFromFloat(*price))
	}
	if len(details) > 0 {
		row.Details = normalizeJSON(details)
	}

	return row
}

func coalesce(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// normalizeJSON round-trips a document so nested structs become plain maps,
// matching what a read from storage would return.
func normalizeJSON(m entity.JSONMap) entity.JSONMap {
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	out := entity.JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}

// BuildPatch reads the mutable fields of a patch request. Blank strings are
// ignored and status and performance are lowercased.
func BuildPatch(body map[string]any) (entity.SignalPatch, error) {
	var patch entity.SignalPatch

	if status, ok := body["status"].(string); ok && strings.TrimSpace(status) != "" {
		normalized := strings.ToLower(strings.TrimSpace(status))
		if !entity.IsValidSignalStatus(normalized) {
			return patch, ErrInvalidStatus
		}
		patch.Status = &normalized
	}
	if performance, ok := body["performance"].(string); ok && strings.TrimSpace(performance) != "" {
		normalized := strings.ToLower(strings.TrimSpace(performance))
		patch.Performance = &normalized
	}
	if details, ok := body["details"].(map[string]any); ok {
		patch.Details = entity.JSONMap(details)
	}

	return patch, nil
}

// Patch applies patch. An empty patch returns (nil, nil) and touches nothing.
func (s *SignalService) Patch(ctx context.Context, id int64, patch entity.SignalPatch) (*entity.SignalView, error) {
	if patch.Empty() {
		return nil, nil
	}

	row, err := s.repo.Patch(ctx, id, patch)
	s.invalidate()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	view := FormatSignal(*row, s.now())
	return &view, nil
}

func (s *SignalService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

type seedRow struct {
	symbol      string
	signalType  string
	price       float64
	description string
}

var seedRows = []seedRow{
	{"BTC", entity.SignalTypeBuy, 68250, "Breakout above 68k with rising volume"},
	{"ETH", entity.SignalTypeBuy, 3650, "Strong L2 activity; funding neutral"},
	{"AAPL", entity.SignalTypeSell, 237.4, "Gap-fill setup; RSI cooling"},
	{"NVDA", entity.SignalTypeBuy, 132.8, "Pullback to 20D MA; buyers defending"},
}

// Seed inserts the demo signals and announces each one.
func (s *SignalService) Seed(ctx context.Context) (int, error) {
	inserted := 0
	for _, seed := range seedRows {
		row := seedSignal(seed, s.now())
		if err := s.repo.Create(ctx, row); err != nil {
			return inserted, err
		}
		inserted++
		s.publish(ctx, FormatSignal(*row, s.now()))
	}
	s.invalidate()
	return inserted, nil
}

func seedSignal(seed seedRow, now time.Time) *entity.Signal {
	assetType := constant.AssetTypeEquity
	chartURL := fmt.Sprintf("https://www.tradingview.com/symbols/%s/", seed.symbol)
	if seedCryptoPattern.MatchString(seed.symbol) {
		assetType = constant.AssetTypeCrypto
		chartURL = fmt.Sprintf("https://www.tradingview.com/symbols/%sUSD/", seed.symbol)
	}

	bullish := seed.signalType != entity.SignalTypeSell
	direction := 1.0
	strength := "🟡 BUY"
	if !bullish {
		direction = -1
		strength = "🔴 SELL"
	}

	timeframes := map[string]any{"1h": seed.signalType, "4h": seed.signalType}
	details := entity.JSONMap{
		"summary":         seed.description,
		"asset_type":      assetType,
		"signal_strength": strength,
		"timeframes":      timeframes,
		"targets": []any{map[string]any{
			"label": "Target 1",
			"price": seed.price * (1 + 0.04*direction),
			"pct":   4 * direction,
		}},
		"stop": map[string]any{
			"price": seed.price * (1 - 0.03*direction),
			"pct":   -3 * direction,
		},
		"chart_url": chartURL,
		"posted_at": now.UTC().Format(isoMillis),
	}
	recommendations, _ := json.Marshal(timeframes)

	return &entity.Signal{
		Symbol:          seed.symbol,
		DisplaySymbol:   null.StringFrom(seed.symbol),
		SignalType:      seed.signalType,
		Price:           decimal.NewNullDecimal(decimal.NewFromFloat(seed.price)),
		SignalStrength:  null.StringFrom(strength),
		AssetType:       null.StringFrom(assetType),
		Recommendations: null.StringFrom(string(recommendations)),
		Performance:     null.StringFrom(""),
		Details:         details,
		Status:          null.StringFrom(entity.SignalStatusActive),
		Timestamp:       null.TimeFrom(now),
	}
}
