package http

import (
	"net/http"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/alert"
)

func (h *Handler) registerAlerts(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/alerts", h.ListAlerts)
	mux.HandleFunc("POST /api/alerts", h.CreateAlert)
	mux.HandleFunc("POST /api/alerts/trigger-notify", h.TriggerAlert)
	mux.HandleFunc("PATCH /api/alerts/{id}", h.PatchAlert)
	mux.HandleFunc("DELETE /api/alerts/{id}", h.DeleteAlert)
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	items, err := h.svc.Alerts.List(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	if items == nil {
		items = []entity.Alert{}
	}
	ok(w, map[string]any{"items": items})
}

func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	item, meta, err := h.svc.Alerts.Create(r.Context(), sess.DiscordID, body)
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	ok(w, map[string]any{"item": item, "meta": meta})
}

func (h *Handler) PatchAlert(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	id, err := alert.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	body, err := decodeMap(r)
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	item, err := h.svc.Alerts.Patch(r.Context(), sess.DiscordID, id, body)
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	ok(w, map[string]any{"id": item.ID, "active": item.Active})
}

func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	id, err := alert.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	if err := h.svc.Alerts.Delete(r.Context(), sess.DiscordID, id); err != nil {
		writeError(w, r, err, "alerts_error")
		return
	}
	ok(w, nil)
}

// TriggerAlert is called by the alert evaluation bot, not by browsers.
func (h *Handler) TriggerAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Alerts.Authorize(r.Header.Get("X-Internal-Key")); err != nil {
		writeError(w, r, err, "trigger_error")
		return
	}
	var in alert.TriggerInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err, "trigger_error")
		return
	}
	if err := h.svc.Alerts.TriggerNotify(r.Context(), in); err != nil {
		writeError(w, r, err, "trigger_error")
		return
	}
	ok(w, nil)
}
