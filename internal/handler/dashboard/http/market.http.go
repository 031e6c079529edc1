package http

import (
	"net/http"
	"strings"

	"github.com/krobus00/trading-dashboard/internal/service/market"
	"github.com/krobus00/trading-dashboard/internal/service/signal"
)

func (h *Handler) registerMarket(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/market", h.Market)
	mux.HandleFunc("GET /api/coin", h.Coin)
	mux.HandleFunc("GET /api/coins", h.Coins)
	mux.HandleFunc("GET /api/prices/crypto", h.CryptoPrices)
	mux.HandleFunc("GET /api/prices/stocks", h.StockPrices)
	mux.HandleFunc("GET /api/metrics", h.Metrics)
	mux.HandleFunc("GET /api/news", h.News)
	mux.HandleFunc("GET /api/assets/search", h.SearchAssets)
	mux.HandleFunc("GET /api/stats/signals/count", h.SignalCount)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) Market(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Market.Market(r.Context(), market.ClampLimit(r.URL.Query().Get("limit"), 0, 100))
	if err != nil {
		writeError(w, r, err, "market_error")
		return
	}
	ok(w, map[string]any{"items": items})
}

func (h *Handler) Coin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("id")
	if q == "" {
		q = r.URL.Query().Get("symbol")
	}
	noCache := r.URL.Query().Get("noCache") == "1" || r.URL.Query().Get("noCache") == "true"

	detail, err := h.svc.Market.Coin(r.Context(), q, noCache)
	if err != nil {
		writeError(w, r, err, "coin_error")
		return
	}
	ok(w, detail)
}

func (h *Handler) Coins(w http.ResponseWriter, r *http.Request) {
	symbols := splitList(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		fail(w, http.StatusBadRequest, "missing_symbols")
		return
	}
	ok(w, map[string]any{"items": h.svc.Market.Coins(r.Context(), symbols)})
}

func (h *Handler) CryptoPrices(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Market.CryptoPrices(r.Context(), market.ClampLimit(r.URL.Query().Get("limit"), 0, 250))
	ok(w, map[string]any{"items": items})
}

func (h *Handler) StockPrices(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Market.StockPrices(r.Context(), splitList(r.URL.Query().Get("tickers")))
	ok(w, map[string]any{"items": items})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	ok(w, h.svc.Market.Metrics(r.Context()))
}

func (h *Handler) News(w http.ResponseWriter, r *http.Request) {
	ok(w, h.svc.Market.News(r.Context(), r.URL.Query().Get("symbol")))
}

func (h *Handler) SearchAssets(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Market.SearchAssets(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err, "asset_search_failed")
		return
	}
	ok(w, map[string]any{"items": items})
}

func (h *Handler) SignalCount(w http.ResponseWriter, r *http.Request) {
	ok(w, h.svc.Signals.Count(r.Context()))
}

func (h *Handler) registerSignals(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/signals", h.ListSignals)
	mux.HandleFunc("POST /api/signals", h.CreateSignal)
	mux.HandleFunc("POST /api/signals/seed", h.SeedSignals)
	mux.HandleFunc("PATCH /api/signals/{id}", h.PatchSignal)
	mux.HandleFunc("DELETE /api/signals/{id}", h.DeleteSignal)
}

func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Signals.List(r.Context(), signal.ClampListLimit(r.URL.Query().Get("limit")))
	if err != nil {
		respond(w, http.StatusInternalServerError, false, map[string]any{"error": "signals_error", "items": []any{}})
		return
	}
	ok(w, list)
}

// botOrAdmin lets the signal bot in by shared key, or any admin session.
func (h *Handler) botOrAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.isBot(r) {
		return true
	}
	if sess := h.session(r); sess != nil && sess.IsAdmin {
		return true
	}
	fail(w, http.StatusForbidden, errForbidden.Error())
	return false
}

func (h *Handler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	if !h.botOrAdmin(w, r) {
		return
	}
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, r, err, "insert_error")
		return
	}
	view, err := h.svc.Signals.Create(r.Context(), body)
	if err != nil {
		writeError(w, r, err, "insert_error")
		return
	}
	ok(w, map[string]any{"item": view})
}

func (h *Handler) PatchSignal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "update_failed")
		return
	}
	if !h.botOrAdmin(w, r) {
		return
	}
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, r, err, "update_failed")
		return
	}
	patch, err := signal.BuildPatch(body)
	if err != nil {
		writeError(w, r, err, "update_failed")
		return
	}
	view, err := h.svc.Signals.Patch(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err, "update_failed")
		return
	}
	if view == nil {
		ok(w, map[string]any{"unchanged": true})
		return
	}
	ok(w, map[string]any{"item": view})
}

func (h *Handler) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	if _, allowed := h.requireAdmin(w, r); !allowed {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "delete_error")
		return
	}
	if err := h.svc.Signals.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, "delete_error")
		return
	}
	ok(w, nil)
}

func (h *Handler) SeedSignals(w http.ResponseWriter, r *http.Request) {
	if _, allowed := h.requireAdmin(w, r); !allowed {
		return
	}
	n, err := h.svc.Signals.Seed(r.Context())
	if err != nil {
		writeError(w, r, err, "seed_error")
		return
	}
	ok(w, map[string]any{"inserted": n})
}
