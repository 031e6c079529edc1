package mentor

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	coinDescriptionMaxRunes = 650
	contextAlertsLimit      = 20
	contextPortfolioLimit   = 50
	maxSymbolLookups        = 12
)

var (
	wordSplitter    = regexp.MustCompile(`[^A-Za-z0-9]+`)
	analyzeWord     = regexp.MustCompile(`(?i)analy[sz]e?`)
	tickerLike      = regexp.MustCompile(`^[A-Z]{2,6}$`)
	htmlTagPattern  = regexp.MustCompile(`<[^>]*>`)
	spaceCollapse   = regexp.MustCompile(`\s+`)
	majorSymbols    = map[string]bool{"BTC": true, "ETH": true, "SOL": true, "BNB": true, "XRP": true, "ADA": true, "DOGE": true, "MATIC": true, "LTC": true, "DOT": true, "LINK": true, "AVAX": true}
	symbolBlocklist = map[string]bool{
		"MARKET": true, "MARKETS": true, "CRYPTO": true, "CRYPTOCURRENCY": true, "STOCKS": true,
		"INDEX": true, "INDICES": true, "SPY": true, "QQQ": true, "NEWS": true, "TODAY": true,
		"NOW": true, "CURRENT": true, "TREND": true, "PRICE": true, "ANALYZE": true, "ANALYSIS": true,
		"PLEASE": true, "THANKS": true, "HEY": true, "HELLO": true, "WHAT": true, "WHY": true,
		"HOW": true, "ME": true, "THE": true, "THIS": true, "THAT": true, "IT": true, "FOR": true,
		"ABOUT": true, "ARTICLE": true, "ARTICLES": true,
	}
)

// Requester is the signed-in user asking the mentor.
type Requester struct {
	ID       string
	Username string
	Plan     string
	IsAdmin  bool
}

type WatchlistSource interface {
	ListByUser(ctx context.Context, userID string) ([]entity.WatchlistItem, error)
}

type AlertSource interface {
	ListByUser(ctx context.Context, userID string) ([]entity.Alert, error)
}

type PortfolioSource interface {
	ListByUser(ctx context.Context, userID string) ([]entity.PortfolioPosition, error)
}

type SignalSource interface {
	Latest(ctx context.Context, limit uint64) ([]entity.Signal, error)
}

type ProfileSource interface {
	Get(ctx context.Context, userID string) (*entity.TradingProfile, error)
}

type CoinSource interface {
	CoinGeckoCoin(ctx context.Context, id string, sparkline bool) (*entity.CoinGeckoCoin, error)
}

type CoinResolver interface {
	ResolveCoinID(ctx context.Context, symbolOrID string) (string, error)
}

// ContextSources are optional. A nil source contributes an empty section.
type ContextSources struct {
	Watchlist WatchlistSource
	Alerts    AlertSource
	Portfolio PortfolioSource
	Signals   SignalSource
	Profiles  ProfileSource
	Coins     CoinSource
	Resolver  CoinResolver
}

type ContextUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Plan        string `json:"plan"`
	IsAdmin     bool   `json:"isAdmin"`
	TrialActive bool   `json:"trialActive"`
}

type ContextAlert struct {
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
	When   string `json:"when"`
	Active bool   `json:"active"`
}

type ContextSignal struct {
	ID     int64      `json:"id"`
	Symbol string     `json:"symbol"`
	Type   string     `json:"type"`
	Price  *float64   `json:"price"`
	Time   *time.Time `json:"time"`
}

type ContextPosition struct {
	Symbol      string   `json:"symbol"`
	Quantity    *float64 `json:"quantity"`
	CostBasis   *float64 `json:"costBasis"`
	TargetPrice *float64 `json:"targetPrice"`
	Risk        *string  `json:"risk"`
	Timeframe   *string  `json:"timeframe"`
	Notes       *string  `json:"notes"`
	Confidence  *float64 `json:"confidence"`
	Strategy    *string  `json:"strategy"`
}

type CoinContext struct {
	ID        string   `json:"id"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	MarketCap *float64 `json:"mc"`
	Change24h *float64 `json:"change24h"`
	Change7d  *float64 `json:"change7d"`
	Desc      *string  `json:"desc"`
	Homepage  *string  `json:"homepage"`
	Forum     *string  `json:"forum"`
}

type ProfileView struct {
	SkillLevel   string `json:"skillLevel"`
	RiskAppetite string `json:"riskAppetite"`
	Focus        string `json:"focus"`
	TradingStyle string `json:"tradingStyle"`
	Goals        string `json:"goals"`
}

// Context is the personal snapshot handed to the model and echoed to the client.
type Context struct {
	User      ContextUser       `json:"user"`
	Watchlist []string          `json:"watchlist"`
	Alerts    []ContextAlert    `json:"alerts"`
	Signals   []ContextSignal   `json:"signals"`
	Portfolio []ContextPosition `json:"portfolio"`
	Coin      *CoinContext      `json:"coin"`
	Profile   *ProfileView      `json:"profile"`

	// symbol is the ticker the conversation is about, explicit or inferred.
	symbol string
}

func (s *MentorService) buildContext(ctx context.Context, user Requester, req ChatRequest, history []entity.ChatTurn) *Context {
	logger := logrus.WithField("userID", user.ID)
	src := s.sources

	mctx := &Context{
		User:      ContextUser{ID: user.ID, Username: user.Username, Plan: user.Plan, IsAdmin: user.IsAdmin},
		Watchlist: []string{},
		Alerts:    []ContextAlert{},
		Signals:   []ContextSignal{},
		Portfolio: []ContextPosition{},
	}

	stored, err := s.users.GetByDiscordID(ctx, user.ID)
	switch {
	case err == nil:
		if stored.Plan.Valid && stored.Plan.String != "" {
			mctx.User.Plan = stored.Plan.String
		}
		mctx.User.IsAdmin = mctx.User.IsAdmin || (stored.IsAdmin.Valid && stored.IsAdmin.Bool)
		mctx.User.TrialActive = stored.TrialActive(s.now())
	case !errors.Is(err, repository.ErrNotFound):
		logger.Warnf("mentor context user: %v", err)
	}
	if mctx.User.Plan == "" {
		mctx.User.Plan = constant.PlanFree
	}

	if src.Watchlist != nil {
		if rows, err := src.Watchlist.ListByUser(ctx, user.ID); err == nil {
			for _, w := range rows {
				mctx.Watchlist = append(mctx.Watchlist, w.Symbol)
			}
		}
	}
	if src.Alerts != nil {
		if rows, err := src.Alerts.ListByUser(ctx, user.ID); err == nil {
			for i, a := range rows {
				if i >= contextAlertsLimit {
					break
				}
				threshold := "null"
				if a.Threshold.Valid {
					threshold = a.Threshold.Decimal.String()
				}
				mctx.Alerts = append(mctx.Alerts, ContextAlert{
					Symbol: a.Symbol,
					Type:   a.Type,
					When:   a.Direction + " " + threshold,
					Active: a.Active,
				})
			}
		}
	}
	if src.Portfolio != nil {
		if rows, err := src.Portfolio.ListByUser(ctx, user.ID); err == nil {
			for i, p := range rows {
				if i >= contextPortfolioLimit {
					break
				}
				mctx.Portfolio = append(mctx.Portfolio, ContextPosition{
					Symbol:      p.Symbol,
					Quantity:    decimalPtr(p.Quantity),
					CostBasis:   decimalPtr(p.CostBasis),
					TargetPrice: decimalPtr(p.TargetPrice),
					Risk:        stringPtr(p.Risk),
					Timeframe:   stringPtr(p.Timeframe),
					Notes:       stringPtr(p.Notes),
					Confidence:  decimalPtr(p.Confidence),
					Strategy:    stringPtr(p.Strategy),
				})
			}
		}
	}
	if src.Signals != nil {
		if rows, err := src.Signals.Latest(ctx, contextSignalsLimit); err == nil {
			for _, r := range rows {
				sig := ContextSignal{ID: r.ID, Symbol: strings.ToUpper(r.Symbol), Type: r.SignalType, Price: decimalPtr(r.Price)}
				if r.Timestamp.Valid {
					t := r.Timestamp.Time
					sig.Time = &t
				}
				mctx.Signals = append(mctx.Signals, sig)
			}
		}
	}
	if src.Profiles != nil {
		if p, err := src.Profiles.Get(ctx, user.ID); err == nil && p != nil {
			mctx.Profile = &ProfileView{
				SkillLevel:   orDefault(p.SkillLevel, "Intermediate"),
				RiskAppetite: orDefault(p.RiskAppetite, "Balanced"),
				Focus:        orDefault(p.Focus, "Both"),
				TradingStyle: orDefault(p.TradingStyle, "Swing trading"),
				Goals:        orDefault(p.Goals, "Grow account steadily"),
			}
		}
	}

	symbol, coinID := s.inferSymbol(ctx, req, history)
	mctx.symbol = symbol
	if coinID != "" {
		mctx.Coin = s.coinContext(ctx, coinID)
	}

	return mctx
}

// inferSymbol uses the explicit symbol, else scans the message and the
// earlier user turns, newest first, for a ticker that resolves to a coin.
func (s *MentorService) inferSymbol(ctx context.Context, req ChatRequest, history []entity.ChatTurn) (symbol, coinID string) {
	resolver := s.sources.Resolver
	symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if resolver == nil {
		return symbol, ""
	}
	if symbol != "" {
		coinID, _ = resolver.ResolveCoinID(ctx, symbol)
		return symbol, coinID
	}

	texts := []string{req.Message}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == entity.MentorRoleUser {
			texts = append(texts, history[i].Content)
		}
	}

	seen := map[string]bool{}
	lookups := 0
	for _, text := range texts {
		for _, candidate := range symbolCandidates(text) {
			if seen[candidate] || symbolBlocklist[candidate] {
				continue
			}
			seen[candidate] = true
			if lookups >= maxSymbolLookups {
				return "", ""
			}
			lookups++
			if id, err := resolver.ResolveCoinID(ctx, candidate); err == nil && id != "" {
				return candidate, id
			}
		}
	}
	return "", ""
}

func symbolCandidates(text string) []string {
	var words []string
	for _, w := range wordSplitter.Split(text, -1) {
		if w != "" {
			words = append(words, w)
		}
	}

	var candidates []string
	for i, w := range words {
		if analyzeWord.MatchString(w) && i+1 < len(words) {
			candidates = append(candidates, strings.ToUpper(words[i+1]))
			break
		}
	}
	for _, w := range words {
		upper := strings.ToUpper(w)
		if symbolBlocklist[upper] {
			continue
		}
		if majorSymbols[upper] || tickerLike.MatchString(upper) {
			candidates = append(candidates, upper)
		}
	}
	return candidates
}

func (s *MentorService) coinContext(ctx context.Context, coinID string) *CoinContext {
	if s.sources.Coins == nil {
		return nil
	}
	coin, err := s.sources.Coins.CoinGeckoCoin(ctx, coinID, false)
	if err != nil || coin == nil {
		return nil
	}

	out := &CoinContext{ID: coin.ID, Symbol: strings.ToUpper(coin.Symbol), Name: coin.Name}
	if desc := coin.Description["en"]; desc != "" {
		cleaned := strings.TrimSpace(spaceCollapse.ReplaceAllString(html.UnescapeString(htmlTagPattern.ReplaceAllString(desc, " ")), " "))
		if runes := []rune(cleaned); len(runes) > coinDescriptionMaxRunes {
			cleaned = string(runes[:coinDescriptionMaxRunes])
		}
		if cleaned != "" {
			out.Desc = &cleaned
		}
	}
	out.Homepage = firstNonEmpty(coin.Links.Homepage)
	out.Forum = firstNonEmpty(coin.Links.OfficialForumURL)

	if md := coin.MarketData; md != nil {
		out.Price = mapValue(md.CurrentPrice, "usd")
		out.MarketCap = mapValue(md.MarketCap, "usd")
		out.Change24h = md.PriceChangePercentage24h
		out.Change7d = mapValue(md.PriceChange7dInCurrency, "usd")
		if out.Change7d == nil {
			out.Change7d = md.PriceChangePercentage7d
		}
	}
	return out
}

func mapValue(m map[string]float64, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

func firstNonEmpty(values []string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}

func decimalPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func stringPtr(s null.String) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return &s.String
}

func orDefault(s null.String, def string) string {
	if s.Valid && s.String != "" {
		return s.String
	}
	return def
}
