package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/account"
	"github.com/krobus00/trading-dashboard/internal/service/alert"
	"github.com/krobus00/trading-dashboard/internal/service/announcement"
	"github.com/krobus00/trading-dashboard/internal/service/feedback"
	"github.com/krobus00/trading-dashboard/internal/service/market"
	"github.com/krobus00/trading-dashboard/internal/service/membership"
	"github.com/krobus00/trading-dashboard/internal/service/mentor"
	"github.com/krobus00/trading-dashboard/internal/service/portfolio"
	"github.com/krobus00/trading-dashboard/internal/service/signal"
	"github.com/krobus00/trading-dashboard/internal/service/watchlist"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

var (
	errUnauth      = errors.New("unauth")
	errForbidden   = errors.New("forbidden")
	errInvalidJSON = errors.New("invalid_json")
	errInvalidID   = errors.New("invalid_id")
	errBadRequest  = errors.New("bad_request")
)

type OAuth interface {
	AuthorizeURL(state string) string
	OAuthConfigured() bool
}

type HealthChecker interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

type Services struct {
	Sessions      *account.SessionManager
	Accounts      *account.AccountService
	OAuth         OAuth
	Market        *market.MarketService
	Signals       *signal.SignalService
	Watchlist     *watchlist.WatchlistService
	Alerts        *alert.AlertService
	Portfolio     *portfolio.PortfolioService
	Mentor        *mentor.MentorService
	Feedback      *feedback.FeedbackService
	Announcements *announcement.AnnouncementService
	Membership    *membership.MembershipService
	Health        HealthChecker
}

type Config struct {
	CookieName   string
	CookieSecure bool
	FrontendURL  string
	BotSecrets   []string
}

type Handler struct {
	svc       Services
	cfg       Config
	startedAt time.Time
}

func NewDashboardHTTPHandler(svc Services, cfg Config) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "joat_session"
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Handler{svc: svc, cfg: cfg, startedAt: time.Now()}
}

func (h *Handler) Register(mux *http.ServeMux) {
	h.registerMarket(mux)
	h.registerSignals(mux)
	h.registerAuth(mux)
	h.registerAccount(mux)
	h.registerWatchlist(mux)
	h.registerAlerts(mux)
	h.registerPortfolio(mux)
	h.registerMentor(mux)
	h.registerFeedback(mux)
	h.registerWebhook(mux)
	h.registerHealth(mux)
}

// errorStatus maps service error codes to HTTP statuses. The code doubles as the
// response "error" value.
var errorStatus = []struct {
	err    error
	status int
}{
	{errUnauth, http.StatusUnauthorized},
	{errForbidden, http.StatusForbidden},
	{alert.ErrForbidden, http.StatusForbidden},
	{errInvalidJSON, http.StatusBadRequest},
	{errInvalidID, http.StatusBadRequest},
	{errBadRequest, http.StatusBadRequest},
	{market.ErrMissingQuery, http.StatusBadRequest},
	{market.ErrCoinNotFound, http.StatusNotFound},
	{signal.ErrMissingSymbol, http.StatusBadRequest},
	{signal.ErrUnknownSymbol, http.StatusBadRequest},
	{signal.ErrInvalidStatus, http.StatusBadRequest},
	{signal.ErrNotFound, http.StatusNotFound},
	{watchlist.ErrBadSymbol, http.StatusBadRequest},
	{watchlist.ErrUnknownSymbol, http.StatusBadRequest},
	{alert.ErrBadInput, http.StatusBadRequest},
	{alert.ErrInvalidID, http.StatusBadRequest},
	{alert.ErrUnknownSymbol, http.StatusBadRequest},
	{alert.ErrMissingSymbol, http.StatusBadRequest},
	{alert.ErrNotFound, http.StatusNotFound},
	{alert.ErrDuplicate, http.StatusConflict},
	{portfolio.ErrMissingSymbol, http.StatusBadRequest},
	{portfolio.ErrNotFound, http.StatusNotFound},
	{account.ErrAlreadySubscribed, http.StatusBadRequest},
	{account.ErrTrialAlreadyUsed, http.StatusBadRequest},
	{mentor.ErrMissingMessage, http.StatusBadRequest},
	{mentor.ErrMissingMessageID, http.StatusBadRequest},
	{mentor.ErrNotFound, http.StatusNotFound},
	{feedback.ErrInvalidTitle, http.StatusBadRequest},
	{feedback.ErrInvalidDescription, http.StatusBadRequest},
	{feedback.ErrInvalidID, http.StatusBadRequest},
	{feedback.ErrNoChanges, http.StatusBadRequest},
	{feedback.ErrNotFound, http.StatusNotFound},
	{announcement.ErrMissingTitle, http.StatusBadRequest},
	{announcement.ErrInvalidID, http.StatusBadRequest},
}

// respond writes payload with "ok" set, flattening struct payloads into the envelope.
func respond(w http.ResponseWriter, status int, ok bool, payload any) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			if uerr := json.Unmarshal(raw, &fields); uerr != nil || fields == nil {
				fields = map[string]json.RawMessage{}
			}
		}
	}
	if ok {
		fields["ok"] = json.RawMessage("true")
	} else {
		fields["ok"] = json.RawMessage("false")
	}
	writeJSON(w, status, fields)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, payload any) {
	respond(w, http.StatusOK, true, payload)
}

func fail(w http.ResponseWriter, status int, code string) {
	respond(w, status, false, map[string]any{"error": code})
}

// writeError maps known codes and hides everything else behind fallback.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			fail(w, e.status, e.err.Error())
			return
		}
	}
	logrus.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error(err)
	fail(w, http.StatusInternalServerError, fallback)
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errInvalidJSON
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}

func decodeMap(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func (h *Handler) identity(r *http.Request) *account.Identity {
	if h.svc.Sessions == nil {
		return nil
	}
	cookie, err := r.Cookie(h.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	id, err := h.svc.Sessions.Parse(cookie.Value)
	if err != nil {
		return nil
	}
	return id
}

// session resolves the signed-in user with plan and admin flag read from storage.
func (h *Handler) session(r *http.Request) *entity.Session {
	id := h.identity(r)
	if id == nil {
		return nil
	}
	sess, err := h.svc.Accounts.Session(r.Context(), *id)
	if err != nil {
		logrus.WithField("discordID", id.DiscordID).Warnf("load session account: %v", err)
		return &entity.Session{
			UserID:    id.DiscordID,
			DiscordID: id.DiscordID,
			Username:  id.Username,
			AvatarURL: id.AvatarURL,
			Plan:      constant.PlanFree,
		}
	}
	return sess
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*entity.Session, bool) {
	sess := h.session(r)
	if sess == nil {
		fail(w, http.StatusUnauthorized, errUnauth.Error())
		return nil, false
	}
	return sess, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (*entity.Session, bool) {
	sess := h.session(r)
	if sess == nil || !sess.IsAdmin {
		fail(w, http.StatusForbidden, errForbidden.Error())
		return nil, false
	}
	return sess, true
}

func (h *Handler) isBot(r *http.Request) bool {
	key := r.Header.Get("X-Bot-Key")
	if key == "" {
		key = r.Header.Get("X-Bot-Token")
	}
	if key == "" {
		return false
	}
	for _, secret := range h.cfg.BotSecrets {
		if secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id account.Identity) error {
	token, expires, err := h.svc.Sessions.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func requester(sess *entity.Session) mentor.Requester {
	return mentor.Requester{ID: sess.DiscordID, Username: sess.Username, Plan: sess.Plan, IsAdmin: sess.IsAdmin}
}
