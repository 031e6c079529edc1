package http

import (
	"net/http"
	"runtime"
	"time"
)

func (h *Handler) registerHealth(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/health/db", h.HealthDB)
	mux.HandleFunc("GET /api/db/version", h.DBVersion)
	mux.HandleFunc("/healthz", h.Liveness)
	mux.HandleFunc("/readyz", h.Readiness)
}

func (h *Handler) dbStatus(r *http.Request) string {
	if h.svc.Health == nil {
		return "unavailable"
	}
	if err := h.svc.Health.Ping(r.Context()); err != nil {
		return "unavailable"
	}
	return "ok"
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	ok(w, map[string]any{
		"status":    "ok",
		"uptimeSec": int64(time.Since(h.startedAt).Seconds()),
		"rss":       mem.Sys,
		"heapUsed":  mem.HeapAlloc,
		"db":        h.dbStatus(r),
	})
}

func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	if status := h.dbStatus(r); status != "ok" {
		respond(w, http.StatusServiceUnavailable, false, map[string]any{"db": status})
		return
	}
	ok(w, map[string]any{"db": "ok"})
}

func (h *Handler) DBVersion(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health == nil {
		fail(w, http.StatusServiceUnavailable, "db_unavailable")
		return
	}
	version, err := h.svc.Health.Version(r.Context())
	if err != nil {
		writeError(w, r, err, "db_unavailable")
		return
	}
	ok(w, map[string]any{"version": version})
}

func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.dbStatus(r) != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
