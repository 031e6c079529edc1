package http

import (
	"net/http"

	"github.com/krobus00/trading-dashboard/internal/entity"
)

func (h *Handler) registerPortfolio(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/portfolio", h.ListPortfolio)
	mux.HandleFunc("POST /api/portfolio", h.CreatePosition)
	mux.HandleFunc("PATCH /api/portfolio/{id}", h.PatchPosition)
	mux.HandleFunc("DELETE /api/portfolio/{id}", h.DeletePosition)
}

func (h *Handler) ListPortfolio(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	items, err := h.svc.Portfolio.List(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	if items == nil {
		items = []entity.PortfolioPosition{}
	}
	ok(w, map[string]any{"items": items})
}

func (h *Handler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	pos, err := h.svc.Portfolio.Create(r.Context(), sess.DiscordID, body)
	if err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	ok(w, map[string]any{"id": pos.ID})
}

func (h *Handler) PatchPosition(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	if err := h.svc.Portfolio.Patch(r.Context(), sess.DiscordID, id, body); err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	ok(w, nil)
}

func (h *Handler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	if err := h.svc.Portfolio.Delete(r.Context(), sess.DiscordID, id); err != nil {
		writeError(w, r, err, "portfolio_error")
		return
	}
	ok(w, nil)
}
