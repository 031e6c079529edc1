package http

import (
	"io"
	"net/http"

	"github.com/krobus00/trading-dashboard/internal/service/membership"
	"github.com/sirupsen/logrus"
)

func (h *Handler) registerWebhook(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/webhook/whop", h.ValidateWhopWebhook)
	mux.HandleFunc("POST /api/webhook/whop", h.WhopWebhook)
}

func (h *Handler) ValidateWhopWebhook(w http.ResponseWriter, _ *http.Request) {
	ok(w, nil)
}

// WhopWebhook always answers 200 so the sender does not retry deliveries we chose to skip.
func (h *Handler) WhopWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logrus.Warnf("read whop webhook body: %v", err)
		writeJSON(w, http.StatusOK, membership.Result{OK: false, Error: "invalid_body"})
		return
	}
	signature := r.Header.Get("Whop-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Whop-Signature")
	}
	writeJSON(w, http.StatusOK, h.svc.Membership.HandleWebhook(r.Context(), raw, signature))
}
