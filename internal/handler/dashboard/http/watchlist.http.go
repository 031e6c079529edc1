package http

import (
	"net/http"

	"github.com/krobus00/trading-dashboard/internal/entity"
)

func (h *Handler) registerWatchlist(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/watchlist", h.ListWatchlist)
	mux.HandleFunc("POST /api/watchlist", h.AddWatchlist)
	mux.HandleFunc("DELETE /api/watchlist", h.RemoveWatchlist)
}

func (h *Handler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	items, err := h.svc.Watchlist.List(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "watchlist_error")
		return
	}
	if items == nil {
		items = []entity.WatchlistItem{}
	}
	ok(w, map[string]any{"items": items})
}

func (h *Handler) AddWatchlist(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var body struct {
		Symbol   string `json:"symbol"`
		Position *int   `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "watchlist_error")
		return
	}
	item, meta, err := h.svc.Watchlist.Add(r.Context(), sess.DiscordID, body.Symbol, body.Position)
	if err != nil {
		writeError(w, r, err, "watchlist_error")
		return
	}
	ok(w, map[string]any{"item": item, "meta": meta})
}

func (h *Handler) RemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "watchlist_error")
		return
	}
	if err := h.svc.Watchlist.Remove(r.Context(), sess.DiscordID, body.Symbol); err != nil {
		writeError(w, r, err, "watchlist_error")
		return
	}
	ok(w, nil)
}
