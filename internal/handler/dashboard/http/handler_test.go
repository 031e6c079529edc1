package http

import (
	"bytes"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/account"
	"github.com/krobus00/trading-dashboard/internal/service/alert"
	"github.com/krobus00/trading-dashboard/internal/service/membership"
	"github.com/krobus00/trading-dashboard/internal/service/portfolio"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/krobus00/trading-dashboard/internal/service/watchlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "1001"

// store backs every per-user table so one erase can wipe them together.
type store struct {
	mu        sync.Mutex
	users     map[string]*entity.User
	watchlist map[string][]entity.WatchlistItem
	alerts    map[int64]entity.Alert
	positions map[int64]entity.PortfolioPosition
	nextID    int64
}

func newStore() *store {
	return &store{
		users:     map[string]*entity.User{},
		watchlist: map[string][]entity.WatchlistItem{},
		alerts:    map[int64]entity.Alert{},
		positions: map[int64]entity.PortfolioPosition{},
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *store) EraseUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	delete(s.watchlist, userID)
	for id, a := range s.alerts {
		if a.UserID == userID {
			delete(s.alerts, id)
		}
	}
	for id, p := range s.positions {
		if p.UserID == userID {
			delete(s.positions, id)
		}
	}
	return nil
}

type userRepo struct{ *store }

func (r userRepo) GetByDiscordID(_ context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) UpsertLogin(_ context.Context, id, username, plan string, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &entity.User{
		DiscordID: id,
		Username:  null.StringFrom(username),
		Plan:      null.StringFrom(plan),
		IsAdmin:   null.BoolFrom(isAdmin),
	}
	return nil
}

func (r userRepo) UpdateUsername(ctx context.Context, id, username, plan string, isAdmin bool) error {
	return r.UpsertLogin(ctx, id, username, plan, isAdmin)
}

func (r userRepo) GetPreferences(context.Context, string) (entity.JSONMap, error) {
	return entity.JSONMap{}, nil
}

func (r userRepo) SavePreferences(context.Context, string, entity.JSONMap) error { return nil }

func (r userRepo) StartTrial(context.Context, string, time.Time, time.Time) error { return nil }

func (r userRepo) List(context.Context, uint64) ([]entity.User, error) { return nil, nil }

func (r userRepo) AdminPatch(context.Context, string, entity.AdminUserPatch) error { return nil }

type watchlistRepo struct{ *store }

func (r watchlistRepo) ListByUser(_ context.Context, userID string) ([]entity.WatchlistItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.WatchlistItem(nil), r.watchlist[userID]...), nil
}

func (r watchlistRepo) NextPosition(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchlist[userID]), nil
}

func (r watchlistRepo) Upsert(_ context.Context, item *entity.WatchlistItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.watchlist[item.UserID]
	for i := range rows {
		if rows[i].Symbol == item.Symbol {
			rows[i] = *item
			return nil
		}
	}
	r.watchlist[item.UserID] = append(rows, *item)
	return nil
}

func (r watchlistRepo) UpdateMeta(ctx context.Context, item *entity.WatchlistItem) error {
	return r.Upsert(ctx, item)
}

func (r watchlistRepo) Delete(_ context.Context, userID, symbol string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.watchlist[userID]
	for i := range rows {
		if rows[i].Symbol == symbol {
			r.watchlist[userID] = append(rows[:i], rows[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type alertRepo struct{ *store }

func (r alertRepo) ListByUser(_ context.Context, userID string) ([]entity.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Alert
	for _, a := range r.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r alertRepo) GetForUser(_ context.Context, id int64, userID string) (*entity.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r alertRepo) Create(_ context.Context, a *entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cur := range r.alerts {
		if cur.UserID == a.UserID && cur.Symbol == a.Symbol {
			a.ID = id
			r.alerts[id] = *a
			return nil
		}
	}
	a.ID = r.id()
	r.alerts[a.ID] = *a
	return nil
}

func (r alertRepo) Update(_ context.Context, a *entity.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[a.ID] = *a
	return nil
}

func (r alertRepo) Delete(_ context.Context, id int64, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.alerts[id]; ok && a.UserID == userID {
		delete(r.alerts, id)
		return 1, nil
	}
	return 0, nil
}

func (r alertRepo) MarkTriggered(context.Context, int64, string, time.Time) error { return nil }

type portfolioRepo struct{ *store }

func (r portfolioRepo) ListByUser(_ context.Context, userID string) ([]entity.PortfolioPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.PortfolioPosition
	for _, p := range r.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r portfolioRepo) Create(_ context.Context, p *entity.PortfolioPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	r.positions[p.ID] = *p
	return nil
}

func (r portfolioRepo) Update(_ context.Context, id int64, userID string, _ map[string]any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.positions[id]; ok && p.UserID == userID {
		return 1, nil
	}
	return 0, nil
}

func (r portfolioRepo) Delete(_ context.Context, id int64, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.positions[id]; ok && p.UserID == userID {
		delete(r.positions, id)
		return 1, nil
	}
	return 0, nil
}

type resolver struct{}

func (resolver) ResolveAssetMeta(_ context.Context, raw string) (*entity.AssetMeta, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BTC", "BTC-USD":
		return &entity.AssetMeta{Symbol: "BTC", DisplaySymbol: "BTC", Name: "Bitcoin", AssetType: "crypto"}, nil
	case "AAPL":
		return &entity.AssetMeta{Symbol: "AAPL", DisplaySymbol: "AAPL", Name: "Apple Inc.", AssetType: "stock"}, nil
	}
	return nil, nil
}

type discord struct{}

func (discord) ExchangeCode(context.Context, string) (*provider.DiscordUser, error) {
	return &provider.DiscordUser{ID: testUserID, Username: "trader"}, nil
}

func (discord) GuildMemberPlan(context.Context, string) (provider.MemberPlan, error) {
	return provider.MemberPlan{Plan: "Free"}, nil
}

func (discord) SendDMBestEffort(context.Context, string, string) bool { return true }

type events struct {
	mu    sync.Mutex
	types []string
}

func (e *events) Publish(_ context.Context, eventType string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, eventType)
	return nil
}

type healthy struct{ err error }

func (h healthy) Ping(context.Context) error { return h.err }

func (h healthy) Version(context.Context) (string, error) { return "PostgreSQL 16.2", h.err }

type fixture struct {
	mux      *nethttp.ServeMux
	store    *store
	events   *events
	sessions *account.SessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newStore()
	ev := &events{}
	sessions := account.NewSessionManager("test-secret", time.Hour)

	h := NewDashboardHTTPHandler(Services{
		Sessions:   sessions,
		Accounts:   account.NewAccountService(userRepo{st}, nil, st, discord{}, ev, 0),
		Watchlist:  watchlist.NewWatchlistService(watchlistRepo{st}, resolver{}),
		Alerts:     alert.NewAlertService(alertRepo{st}, resolver{}, ev, "bot-key"),
		Portfolio:  portfolio.NewPortfolioService(portfolioRepo{st}),
		Membership: membership.NewMembershipService(nil, nil, nil, nil, ev, "", nil),
		Health:     healthy{},
	}, Config{CookieName: "joat_session", FrontendURL: "https://dash.example.org/"})

	mux := nethttp.NewServeMux()
	h.Register(mux)
	return &fixture{mux: mux, store: st, events: ev, sessions: sessions}
}

func (f *fixture) do(t *testing.T, method, path string, body any, authed bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		token, _, err := f.sessions.Issue(account.Identity{DiscordID: testUserID, Username: "trader"})
		require.NoError(t, err)
		req.AddCookie(&nethttp.Cookie{Name: "joat_session", Value: token})
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func items(t *testing.T, body map[string]any) []any {
	t.Helper()
	list, ok := body["items"].([]any)
	require.True(t, ok, "items should be an array: %v", body)
	return list
}

func TestRequiresSession(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/watchlist", "/api/alerts", "/api/portfolio", "/api/preferences"} {
		t.Run(path, func(t *testing.T) {
			rec, body := f.do(t, nethttp.MethodGet, path, nil, false)
			assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, "unauth", body["error"])
		})
	}
}

func TestWatchlist_UnknownSymbolRejected(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, nethttp.MethodPost, "/api/watchlist", map[string]any{"symbol": "NOPE"}, true)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_symbol", body["error"])

	rec, body = f.do(t, nethttp.MethodPost, "/api/watchlist", map[string]any{"symbol": "  "}, true)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_symbol", body["error"])

	_, body = f.do(t, nethttp.MethodGet, "/api/watchlist", nil, true)
	assert.Empty(t, items(t, body))
}

func TestWatchlist_AddListRemove(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, nethttp.MethodPost, "/api/watchlist", map[string]any{"symbol": "btc-usd"}, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	item := body["item"].(map[string]any)
	assert.Equal(t, "BTC", item["symbol"])
	assert.Equal(t, "crypto", item["asset_type"])
	assert.Equal(t, "Bitcoin", item["display_name"])
	assert.Equal(t, "Bitcoin", body["meta"].(map[string]any)["name"])

	_, body = f.do(t, nethttp.MethodGet, "/api/watchlist", nil, true)
	assert.Len(t, items(t, body), 1)

	rec, _ = f.do(t, nethttp.MethodDelete, "/api/watchlist", map[string]any{"symbol": "BTC-USD"}, true)
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	_, body = f.do(t, nethttp.MethodGet, "/api/watchlist", nil, true)
	assert.Empty(t, items(t, body))
}

func TestAlerts_CreateListPatchDelete(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, nethttp.MethodPost, "/api/alerts", map[string]any{
		"symbol": "AAPL", "type": "Price", "direction": "above", "threshold": 200,
	}, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	created := body["item"].(map[string]any)
	assert.Equal(t, true, created["active"])
	id := int64(created["id"].(float64))

	_, body = f.do(t, nethttp.MethodGet, "/api/alerts", nil, true)
	list := items(t, body)
	require.Len(t, list, 1)
	assert.Equal(t, "AAPL", list[0].(map[string]any)["symbol"])
	assert.Equal(t, true, list[0].(map[string]any)["active"])

	rec, body = f.do(t, nethttp.MethodPatch, "/api/alerts/1", map[string]any{"active": false}, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, float64(id), body["id"])
	assert.Equal(t, false, body["active"])

	rec, body = f.do(t, nethttp.MethodPatch, "/api/alerts/undefined", map[string]any{"active": false}, true)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", body["error"])

	rec, _ = f.do(t, nethttp.MethodDelete, "/api/alerts/1", nil, true)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	rec, body = f.do(t, nethttp.MethodDelete, "/api/alerts/1", nil, true)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestAlerts_OnePerSymbol(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, nethttp.MethodPost, "/api/alerts", map[string]any{
		"symbol": "AAPL", "type": "price", "direction": "above", "threshold": 200,
	}, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	id := body["item"].(map[string]any)["id"]

	rec, body = f.do(t, nethttp.MethodPost, "/api/alerts", map[string]any{
		"symbol": "aapl", "type": "price", "direction": "<=", "threshold": 150,
	}, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, id, body["item"].(map[string]any)["id"])

	_, body = f.do(t, nethttp.MethodGet, "/api/alerts", nil, true)
	list := items(t, body)
	require.Len(t, list, 1)
	assert.Equal(t, "<=", list[0].(map[string]any)["direction"])
}

func TestAlerts_CreateValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{name: "missing direction", body: map[string]any{"symbol": "AAPL", "type": "price"}, code: "bad_input"},
		{name: "unknown symbol", body: map[string]any{"symbol": "ZZZ", "type": "price", "direction": ">="}, code: "unknown_symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, nethttp.MethodPost, "/api/alerts", tt.body, true)
			assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestAlerts_TriggerNotifyRequiresInternalKey(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, nethttp.MethodPost, "/api/alerts/trigger-notify", map[string]any{"symbol": "BTC"}, false)
	assert.Equal(t, nethttp.StatusForbidden, rec.Code)

	req := httptest.NewRequest(nethttp.MethodPost, "/api/alerts/trigger-notify", strings.NewReader(`{"symbol":"BTC","currentPrice":64000}`))
	req.Header.Set("X-Internal-Key", "bot-key")
	out := httptest.NewRecorder()
	f.mux.ServeHTTP(out, req)
	assert.Equal(t, nethttp.StatusOK, out.Code)
	assert.Contains(t, f.events.types, "alert_triggered")
}

func TestPortfolio_ScopedMutations(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, nethttp.MethodPost, "/api/portfolio", map[string]any{}, true)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_symbol", body["error"])

	rec, body = f.do(t, nethttp.MethodPost, "/api/portfolio", map[string]any{"symbol": "eth", "quantity": 2}, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	id := int64(body["id"].(float64))
	assert.Positive(t, id)

	f.store.positions[99] = entity.PortfolioPosition{ID: 99, UserID: "someone-else", Symbol: "SOL"}
	rec, _ = f.do(t, nethttp.MethodPatch, "/api/portfolio/99", map[string]any{"notes": "x"}, true)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	rec, _ = f.do(t, nethttp.MethodDelete, "/api/portfolio/99", nil, true)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestEraseAccount_ClearsEverything(t *testing.T) {
	f := newFixture(t)

	f.do(t, nethttp.MethodPost, "/api/watchlist", map[string]any{"symbol": "BTC"}, true)
	f.do(t, nethttp.MethodPost, "/api/alerts", map[string]any{"symbol": "BTC", "type": "price", "direction": ">="}, true)
	f.do(t, nethttp.MethodPost, "/api/portfolio", map[string]any{"symbol": "BTC"}, true)

	rec, body := f.do(t, nethttp.MethodPost, "/api/account/erase", nil, true)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.NotEmpty(t, body["erasedAt"])

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "joat_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "session cookie should be cleared")

	for _, path := range []string{"/api/watchlist", "/api/alerts", "/api/portfolio"} {
		_, body := f.do(t, nethttp.MethodGet, path, nil, true)
		assert.Empty(t, items(t, body), path)
	}
	assert.Contains(t, f.events.types, "account_deleted")
	assert.Contains(t, f.events.types, "user_notification")
}

func TestWhopWebhook_AlwaysOK(t *testing.T) {
	f := newFixture(t)

	for _, payload := range []string{"not json", `{"action":"membership.went_valid","data":{}}`} {
		req := httptest.NewRequest(nethttp.MethodPost, "/api/webhook/whop", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		f.mux.ServeHTTP(rec, req)
		assert.Equal(t, nethttp.StatusOK, rec.Code, payload)
	}

	rec, body := f.do(t, nethttp.MethodGet, "/api/webhook/whop", nil, false)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, nethttp.MethodGet, "/api/health", nil, false)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])

	rec, body = f.do(t, nethttp.MethodGet, "/api/db/version", nil, false)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "PostgreSQL 16.2", body["version"])

	down := NewDashboardHTTPHandler(Services{Health: healthy{err: assert.AnError}}, Config{})
	mux := nethttp.NewServeMux()
	down.Register(mux)
	req := httptest.NewRequest(nethttp.MethodGet, "/api/health/db", nil)
	out := httptest.NewRecorder()
	mux.ServeHTTP(out, req)
	assert.Equal(t, nethttp.StatusServiceUnavailable, out.Code)

	req = httptest.NewRequest(nethttp.MethodGet, "/readyz", nil)
	out = httptest.NewRecorder()
	mux.ServeHTTP(out, req)
	assert.Equal(t, nethttp.StatusServiceUnavailable, out.Code)
}

func TestSafeReturnTo(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/dashboard/alerts", want: "/dashboard/alerts"},
		{in: "//evil.example.com", want: "/dashboard"},
		{in: "https://evil.example.com", want: "/dashboard"},
		{in: "", want: "/dashboard"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeReturnTo(tt.in), tt.in)
	}
}
