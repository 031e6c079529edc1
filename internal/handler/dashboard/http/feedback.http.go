package http

import (
	"net/http"

	"github.com/krobus00/trading-dashboard/internal/service/feedback"
)

func (h *Handler) registerFeedback(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/feedback", h.SubmitFeedback)
	mux.HandleFunc("GET /api/admin/feedback", h.ListFeedback)
	mux.HandleFunc("PATCH /api/admin/feedback/{id}", h.PatchFeedback)
	mux.HandleFunc("DELETE /api/admin/feedback/{id}", h.DeleteFeedback)
}

func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireUser(w, r)
	if !authed {
		return
	}
	var in feedback.SubmitInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	author := feedback.Author{
		ID:              sess.DiscordID,
		Username:        sess.Username,
		DiscordUsername: sess.DiscordUsername,
		Plan:            sess.Plan,
	}
	id, err := h.svc.Feedback.Submit(r.Context(), author, in)
	if err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	ok(w, map[string]any{"id": id})
}

func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	if _, authed := h.requireAdmin(w, r); !authed {
		return
	}
	ok(w, map[string]any{"items": h.svc.Feedback.List(r.Context())})
}

func (h *Handler) PatchFeedback(w http.ResponseWriter, r *http.Request) {
	sess, authed := h.requireAdmin(w, r)
	if !authed {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	var in feedback.PatchInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	item, err := h.svc.Feedback.Patch(r.Context(), sess.DiscordID, id, in)
	if err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	ok(w, map[string]any{"item": item})
}

func (h *Handler) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	if _, authed := h.requireAdmin(w, r); !authed {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	if err := h.svc.Feedback.Delete(r.Context(), id); err != nil {
		writeError(w, r, err, "feedback_error")
		return
	}
	ok(w, nil)
}
