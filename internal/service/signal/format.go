package signal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/shopspring/decimal"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// FormatCurrency renders v as dollars with thousands separators. Values of at
// least 100 keep two fraction digits, at least 1 keep three, smaller keep six.
func FormatCurrency(v float64) string {
	abs := math.Abs(v)
	digits := int32(6)
	switch {
	case abs >= 100:
		digits = 2
	case abs >= 1:
		digits = 3
	}
	return "$" + groupThousands(decimal.NewFromFloat(v).Round(digits).String())
}

// FormatPercent renders a signed percentage with one to three fraction digits.
func FormatPercent(v float64) string {
	abs := math.Abs(v)
	digits := 3
	switch {
	case abs >= 10:
		digits = 1
	case abs >= 1:
		digits = 2
	}
	sign := ""
	if v >= 0 {
		sign = "+"
	}
	return sign + strconv.FormatFloat(v, 'f', digits, 64) + "%"
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

// parseMaybeJSON accepts a decoded object, or a string holding JSON. Single
// quoted JSON is tolerated.
func parseMaybeJSON(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case entity.JSONMap:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		out := map[string]any{}
		if err := json.Unmarshal([]byte(t), &out); err == nil {
			return out
		}
		if err := json.Unmarshal([]byte(strings.ReplaceAll(t, "'", `"`)), &out); err == nil {
			return out
		}
	}
	return nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := strings.TrimSpace(stringValue(v)); s != "" {
			return s
		}
	}
	return ""
}

func normalizeEntry(v any) *entity.SignalEntry {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	entry := &entity.SignalEntry{
		Low:  util.Float(m["low"]),
		High: util.Float(m["high"]),
		Mid:  util.Float(m["mid"]),
	}
	if entry.Mid == nil && entry.Low != nil && entry.High != nil {
		mid := (*entry.Low + *entry.High) / 2
		entry.Mid = &mid
	}
	if entry.Low == nil && entry.High == nil && entry.Mid == nil {
		return nil
	}
	return entry
}

func normalizeTargets(v any) []entity.SignalTarget {
	raw, _ := v.([]any)
	targets := make([]entity.SignalTarget, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		target := entity.SignalTarget{
			Label: stringValue(m["label"]),
			Price: util.Float(m["price"]),
			Pct:   util.Float(m["pct"]),
		}
		if target.Price == nil && target.Pct == nil {
			continue
		}
		if target.Label == "" {
			target.Label = fmt.Sprintf("Target %d", i+1)
		}
		targets = append(targets, target)
	}
	return targets
}

func priceWithPct(price, pct *float64) string {
	if price == nil {
		return ""
	}
	out := FormatCurrency(*price)
	if pct != nil {
		out += " (" + FormatPercent(*pct) + ")"
	}
	return out
}

func assetLabel(assetType string) string {
	switch assetType {
	case "crypto":
		return "Crypto"
	case "forex":
		return "FX"
	default:
		return "Equity"
	}
}

// FormatSignal projects a stored row onto the client view, reading display
// hints from the details document.
func FormatSignal(row entity.Signal, now time.Time) entity.SignalView {
	details := map[string]any(row.Details)
	if details == nil {
		details = map[string]any{}
	}

	var priceValue *float64
	if row.Price.Valid {
		f := row.Price.Decimal.InexactFloat64()
		priceValue = &f
	} else {
		priceValue = util.Float(details["current_price"])
	}

	view := entity.SignalView{
		ID:         row.ID,
		PriceValue: priceValue,
		Entry:      normalizeEntry(details["entry"]),
		Targets:    normalizeTargets(details["targets"]),
		Timeframes: map[string]string{},
		Details:    details,
	}
	if priceValue != nil {
		view.Price = FormatCurrency(*priceValue)
	}
	if e := view.Entry; e != nil && e.Low != nil && e.High != nil {
		view.EntryRange = FormatCurrency(*e.Low) + " → " + FormatCurrency(*e.High)
	}

	if stop, ok := details["stop"].(map[string]any); ok {
		view.Stop = &entity.SignalStop{Price: util.Float(stop["price"]), Pct: util.Float(stop["pct"])}
		view.StopLoss = priceWithPct(view.Stop.Price, view.Stop.Pct)
	}
	if len(view.Targets) > 0 {
		view.Target = priceWithPct(view.Targets[0].Price, view.Targets[0].Pct)
	}

	timeframes, ok := details["timeframes"].(map[string]any)
	if !ok {
		timeframes = parseMaybeJSON(row.Recommendations.String)
	}
	for k, v := range timeframes {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			view.Timeframes[k] = strings.TrimSpace(s)
		}
	}

	view.RawSymbol = strings.ToUpper(firstString(row.Symbol, details["rawSymbol"], details["price_symbol"], details["displaySymbol"]))
	view.Symbol = strings.ToUpper(firstString(details["displaySymbol"], row.DisplaySymbol.String, view.RawSymbol))
	if view.RawSymbol == "" {
		view.RawSymbol = view.Symbol
	}

	view.AssetType = strings.ToLower(firstString(details["asset_type"], row.AssetType.String, "equity"))
	view.AssetLabel = firstString(details["asset_label"], assetLabel(view.AssetType))
	if logo := firstString(details["logo_url"], details["logoUrl"]); logo != "" {
		view.LogoURL = &logo
	}

	posted := now
	if raw := firstString(details["posted_at"], details["postedAt"]); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			posted = t
		}
	} else if row.Timestamp.Valid {
		posted = row.Timestamp.Time
	}
	view.PostedAt = posted.UTC().Format(isoMillis)
	view.Time = view.PostedAt

	view.Description = strings.TrimSpace(stringValue(details["summary"]))
	if view.Description == "" {
		view.Description = row.Recommendations.String
	}
	view.Summary = view.Description

	view.Type = entity.SignalTypeBuy
	if strings.Contains(strings.ToUpper(firstString(row.SignalType, details["type"])), entity.SignalTypeSell) {
		view.Type = entity.SignalTypeSell
	}

	if strength := firstString(row.SignalStrength.String, details["signal_strength"]); strength != "" {
		view.SignalStrength = &strength
	}
	if c, ok := details["confidence"]; ok && c != nil && c != "" {
		view.Confidence = c
	}
	view.Score = util.Float(details["score"])
	if chart := firstString(details["chart_url"], details["chartUrl"]); chart != "" {
		view.ChartURL = &chart
	}
	view.Status = firstString(row.Status.String, details["status"], entity.SignalStatusActive)

	if perf, ok := details["performance"].(map[string]any); ok {
		view.Performance = perf
	} else {
		view.Performance = parseMaybeJSON(row.Performance.String)
	}

	return view
}

// marketSignal synthesizes a signal from a market row when no stored signal
// exists. Positive 24h momentum reads as BUY.
func marketSignal(m entity.CoinGeckoMarket, now time.Time) entity.SignalView {
	var price, change float64
	if m.CurrentPrice != nil {
		price = *m.CurrentPrice
	}
	if m.PriceChangePercentage24h != nil {
		change = *m.PriceChangePercentage24h
	}

	symbol := strings.ToUpper(m.Symbol)
	name := m.Name
	if name == "" {
		name = symbol
	}
	if symbol == "" {
		symbol = name
	}
	chartSymbol := symbol
	if chartSymbol == "" {
		chartSymbol = "BTC"
	}

	signalType := entity.SignalTypeBuy
	if change < 0 {
		signalType = entity.SignalTypeSell
	}

	summary := fmt.Sprintf("%s • 24h change %.2f%%", name, change)
	postedAt := now.UTC().Format(isoMillis)
	chartURL := fmt.Sprintf("https://www.tradingview.com/symbols/%sUSD/", chartSymbol)

	priceText := "$0.00"
	if price != 0 {
		digits := int32(4)
		if price >= 100 {
			digits = 2
		}
		priceText = "$" + groupThousands(decimal.NewFromFloat(price).Round(digits).String())
	}

	return entity.SignalView{
		ID:          m.ID,
		Symbol:      symbol + "/USD",
		RawSymbol:   symbol,
		AssetType:   "crypto",
		AssetLabel:  "Crypto",
		Type:        signalType,
		Price:       priceText,
		PriceValue:  &price,
		Targets:     []entity.SignalTarget{},
		Timeframes:  map[string]string{},
		ChartURL:    &chartURL,
		PostedAt:    postedAt,
		Time:        postedAt,
		Description: summary,
		Summary:     summary,
		Status:      entity.SignalStatusActive,
		Details: map[string]any{
			"asset_type": "crypto",
			"summary":    summary,
		},
	}
}
