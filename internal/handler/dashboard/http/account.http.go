package http

import (
	"net/http"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/announcement"
)

func (h *Handler) registerAccount(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/profile/trading", h.TradingProfile)
	mux.HandleFunc("POST /api/profile/trading", h.SaveTradingProfile)
	mux.HandleFunc("GET /api/preferences", h.Preferences)
	mux.HandleFunc("POST /api/preferences", h.SavePreferences)
	mux.HandleFunc("POST /api/account/erase", h.EraseAccount)
	mux.HandleFunc("GET /api/trial/status", h.TrialStatus)
	mux.HandleFunc("POST /api/trial/start", h.StartTrial)
	mux.HandleFunc("GET /api/admin/users", h.ListUsers)
	mux.HandleFunc("PATCH /api/admin/users/{discordId}", h.PatchUser)
	mux.HandleFunc("GET /api/announcements", h.ListAnnouncements)
	mux.HandleFunc("POST /api/announcements", h.CreateAnnouncement)
	mux.HandleFunc("DELETE /api/announcements/{id}", h.DeleteAnnouncement)
}

func (h *Handler) TradingProfile(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	profile, err := h.svc.Accounts.TradingProfile(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "profile_error")
		return
	}
	ok(w, map[string]any{"profile": profile})
}

func (h *Handler) SaveTradingProfile(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var body struct {
		Profile map[string]any `json:"profile"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "profile_error")
		return
	}
	if _, err := h.svc.Accounts.SaveTradingProfile(r.Context(), sess.DiscordID, body.Profile); err != nil {
		writeError(w, r, err, "profile_error")
		return
	}
	ok(w, nil)
}

func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	prefs, err := h.svc.Accounts.Preferences(r.Context(), sess.DiscordID)
	if err != nil || prefs == nil {
		prefs = entity.JSONMap{}
	}
	ok(w, map[string]any{"preferences": prefs})
}

func (h *Handler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var body struct {
		Preferences map[string]any `json:"preferences"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "err")
		return
	}
	if _, err := h.svc.Accounts.SavePreferences(r.Context(), sess.DiscordID, body.Preferences); err != nil {
		writeError(w, r, err, "err")
		return
	}
	ok(w, nil)
}

func (h *Handler) EraseAccount(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	erasedAt, err := h.svc.Accounts.Erase(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "account_erase_failed")
		return
	}
	h.clearSessionCookie(w)
	ok(w, map[string]any{"erasedAt": entity.FormatISOMillis(erasedAt)})
}

func (h *Handler) TrialStatus(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	status, err := h.svc.Accounts.TrialStatus(r.Context(), sess.DiscordID)
	if err != nil {
		ok(w, map[string]any{"active": false})
		return
	}
	ok(w, status)
}

func (h *Handler) StartTrial(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	status, err := h.svc.Accounts.StartTrial(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "err")
		return
	}
	ok(w, map[string]any{"endsAt": status.EndsAt})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, allowed := h.requireAdmin(w, r); !allowed {
		return
	}
	ok(w, map[string]any{"items": h.svc.Accounts.ListUsers(r.Context())})
}

func (h *Handler) PatchUser(w http.ResponseWriter, r *http.Request) {
	if _, allowed := h.requireAdmin(w, r); !allowed {
		return
	}
	var body struct {
		Username *string `json:"username"`
		Plan     *string `json:"plan"`
		IsAdmin  *bool   `json:"isAdmin"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "err")
		return
	}
	patch := entity.AdminUserPatch{Username: body.Username, Plan: body.Plan, IsAdmin: body.IsAdmin}
	if err := h.svc.Accounts.PatchUser(r.Context(), r.PathValue("discordId"), patch); err != nil {
		writeError(w, r, err, "err")
		return
	}
	ok(w, nil)
}

func (h *Handler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"items": h.svc.Announcements.List(r.Context())})
}

func (h *Handler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	if _, allowed := h.requireAdmin(w, r); !allowed {
		return
	}
	var body struct {
		Title    string  `json:"title"`
		Body     *string `json:"body"`
		Audience *string `json:"audience"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "err")
		return
	}
	item, err := h.svc.Announcements.Create(r.Context(), body.Title, body.Body, body.Audience)
	if err != nil {
		writeError(w, r, err, "err")
		return
	}
	ok(w, map[string]any{"item": item})
}

func (h *Handler) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	if _, allowed := h.requireAdmin(w, r); !allowed {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, announcement.ErrInvalidID, "err")
		return
	}
	if err := h.svc.Announcements.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, "err")
		return
	}
	ok(w, nil)
}
