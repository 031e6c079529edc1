package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/mentor"
)

func (h *Handler) registerMentor(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/mentor/chat", h.MentorChat)
	mux.HandleFunc("POST /api/mentor/feedback", h.MentorFeedback)
	mux.HandleFunc("GET /api/mentor/chat/history", h.MentorHistory)
	mux.HandleFunc("DELETE /api/mentor/chat/history", h.ClearMentorHistory)
	mux.HandleFunc("POST /api/mentor/chat/pin", h.PinMentorMessage)
	mux.HandleFunc("POST /api/mentor/chat/settings", h.MentorSettings)
	mux.HandleFunc("GET /api/admin/mentor-feedback", h.ListMentorFeedback)
	mux.HandleFunc("DELETE /api/admin/mentor-feedback/{id}", h.DeleteMentorFeedback)
}

func (h *Handler) MentorChat(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var req mentor.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err, "mentor_error")
		return
	}
	resp, err := h.svc.Mentor.Chat(r.Context(), requester(sess), req)
	if err != nil {
		writeError(w, r, err, "mentor_error")
		return
	}
	ok(w, resp)
}

func (h *Handler) MentorFeedback(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var in mentor.FeedbackInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	deleted, err := h.svc.Mentor.RecordFeedback(r.Context(), requester(sess), in)
	if err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	if deleted {
		ok(w, map[string]any{"deleted": true})
		return
	}
	ok(w, nil)
}

func (h *Handler) MentorHistory(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	messages, settings, err := h.svc.Mentor.History(r.Context(), sess.DiscordID)
	if err != nil {
		writeError(w, r, err, "history_error")
		return
	}
	if messages == nil {
		messages = []entity.MentorMessage{}
	}
	ok(w, map[string]any{"messages": messages, "settings": settings})
}

func (h *Handler) ClearMentorHistory(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	if err := h.svc.Mentor.ClearHistory(r.Context(), sess.DiscordID); err != nil {
		writeError(w, r, err, "history_error")
		return
	}
	ok(w, map[string]any{"messages": []entity.MentorMessage{}, "settings": h.svc.Mentor.Settings(r.Context(), sess.DiscordID)})
}

func (h *Handler) PinMentorMessage(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var body struct {
		MessageID string `json:"messageId"`
		Pinned    bool   `json:"pinned"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "pin_error")
		return
	}
	if err := h.svc.Mentor.Pin(r.Context(), sess.DiscordID, body.MessageID, body.Pinned); err != nil {
		writeError(w, r, err, "pin_error")
		return
	}
	ok(w, map[string]any{"messageId": body.MessageID, "pinned": body.Pinned})
}

func (h *Handler) MentorSettings(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var body struct {
		MessageCapacity any `json:"messageCapacity"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err, "settings_error")
		return
	}
	settings, err := h.svc.Mentor.UpdateSettings(r.Context(), sess.DiscordID, body.MessageCapacity)
	if err != nil {
		writeError(w, r, err, "settings_error")
		return
	}
	ok(w, map[string]any{"settings": settings})
}

func (h *Handler) ListMentorFeedback(w http.ResponseWriter, r *http.Request) {
	if _, authed := h.requireAdmin(w, r); !authed {
		return
	}
	items, err := h.svc.Mentor.ListFeedback(r.Context())
	if err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	if items == nil {
		items = []entity.MentorFeedback{}
	}
	ok(w, map[string]any{"items": items})
}

func (h *Handler) DeleteMentorFeedback(w http.ResponseWriter, r *http.Request) {
	if _, authed := h.requireAdmin(w, r); !authed {
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, errBadRequest, "feedback_error")
		return
	}
	if err := h.svc.Mentor.DeleteFeedback(r.Context(), id); err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	ok(w, nil)
}
