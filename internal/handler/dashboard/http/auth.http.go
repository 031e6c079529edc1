package http

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const defaultReturnTo = "/dashboard"

type oauthState struct {
	ReturnTo string `json:"returnTo"`
}

func (h *Handler) registerAuth(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/discord/login", h.DiscordLogin)
	mux.HandleFunc("GET /api/auth/discord/callback", h.DiscordCallback)
	mux.HandleFunc("GET /api/session", h.Session)
	mux.HandleFunc("POST /api/logout", h.Logout)
	mux.HandleFunc("POST /api/profile", h.UpdateProfile)
}

// safeReturnTo keeps redirects on the frontend origin.
func safeReturnTo(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return defaultReturnTo
	}
	return raw
}

func encodeState(returnTo string) string {
	raw, _ := json.Marshal(oauthState{ReturnTo: safeReturnTo(returnTo)})
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeState(state string) string {
	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return defaultReturnTo
	}
	var decoded oauthState
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.ReturnTo == "" {
		return defaultReturnTo
	}
	return safeReturnTo(decoded.ReturnTo)
}

func (h *Handler) DiscordLogin(w http.ResponseWriter, r *http.Request) {
	if h.svc.OAuth == nil || !h.svc.OAuth.OAuthConfigured() {
		http.Error(w, "Missing DISCORD_CLIENT_ID", http.StatusInternalServerError)
		return
	}
	returnTo := r.URL.Query().Get("returnTo")
	if returnTo == "" {
		returnTo = defaultReturnTo
	}
	http.Redirect(w, r, h.svc.OAuth.AuthorizeURL(encodeState(returnTo)), http.StatusFound)
}

func (h *Handler) DiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, oauthErr := q.Get("code"), q.Get("error")
	if oauthErr != "" || code == "" {
		if oauthErr == "" {
			oauthErr = "cancelled"
		}
		http.Redirect(w, r, h.cfg.FrontendURL+"/signin?error="+url.QueryEscape(oauthErr), http.StatusFound)
		return
	}

	id, err := h.svc.Accounts.Login(r.Context(), code)
	if err != nil {
		logrus.Errorf("oauth callback: %v", err)
		http.Error(w, "OAuth failed", http.StatusInternalServerError)
		return
	}
	if err := h.setSessionCookie(w, *id); err != nil {
		logrus.Errorf("issue session: %v", err)
		http.Error(w, "OAuth error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.cfg.FrontendURL+decodeState(q.Get("state")), http.StatusFound)
}

// Session re-issues the cookie so an active user never expires.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id := h.identity(r)
	if id == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	if err := h.setSessionCookie(w, *id); err != nil {
		logrus.WithField("discordID", id.DiscordID).Warnf("refresh session cookie: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": h.session(r)})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	ok(w, nil)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := h.identity(r)
	if id == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Not authenticated"})
		return
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid username"})
		return
	}

	updated, err := h.svc.Accounts.UpdateUsername(r.Context(), *id, body.Username)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid username"})
		return
	}
	if err := h.setSessionCookie(w, updated); err != nil {
		logrus.WithField("discordID", id.DiscordID).Warnf("issue session: %v", err)
	}
	sess, err := h.svc.Accounts.Session(r.Context(), updated)
	if err != nil {
		writeError(w, r, err, "profile_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}
