package membership

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/announcement"
	"github.com/sirupsen/logrus"
)

const (
	GoodbyeMessage  = "Hi there, your Jack Of All Trades membership is no longer active, so we deleted your saved alerts, watchlists, mentor chats, and portfolio data. If this was a mistake just resubscribe and you'll start fresh."
	DeletionNotice  = "Your membership has ended and your Jack Of All Trades account data has been removed. If this was unexpected, please contact support."
	deletionTitle   = "Account removed"
	SkipMissingUser = "missing_discord_user_id"
	SkipMissingProd = "missing_product_id"
	SkipUnmapped    = "unmapped_product"
)

var (
	activeEvents = []string{
		"member.created", "member.updated", "member.renewed",
		"membership.activated", "membership_activated",
		"membership.updated", "membership_updated",
		"invoice.paid", "invoice_paid",
		"payment.succeeded", "payment_succeeded",
		"payment.successful", "payment_successful",
	}
	endedEvents = []string{
		"member.cancelled", "member.canceled",
		"membership.cancelled", "membership.canceled",
		"membership.deactivated", "membership_deactivated",
		"payment.failed", "payment_failed",
		"invoice.past_due", "invoice_past_due",
	}

	eventKeys   = []string{"action", "type", "event_type", "event", "name"}
	discordKeys = [][]string{
		{"data", "discord_user_id"},
		{"data", "user", "discord_user_id"},
		{"data", "user_id"},
		{"data", "discord_id"},
		{"data", "member", "discord_user_id"},
		{"data", "membership", "discord_user_id"},
		{"data", "membership", "user", "discord_user_id"},
		{"data", "member", "user", "discord_user_id"},
		{"member", "discord_user_id"},
		{"member", "user", "discord_user_id"},
		{"user", "discord_id"},
		{"discord_user_id"},
		{"user_id"},
	}
	productKeys = [][]string{
		{"data", "product_id"},
		{"data", "product", "id"},
		{"data", "membership", "product_id"},
		{"data", "membership", "product", "id"},
		{"data", "member", "product_id"},
		{"data", "member", "product", "id"},
		{"member", "product_id"},
		{"product_id"},
		{"product", "id"},
	}
)

type UserStore interface {
	SetPlan(ctx context.Context, discordID, plan string) error
}

type Eraser interface {
	EraseUser(ctx context.Context, discordID string) error
}

type Announcer interface {
	Create(ctx context.Context, title string, body, audience *string) (*entity.Announcement, error)
}

type Discord interface {
	SendDMBestEffort(ctx context.Context, userID, content string) bool
	SyncPlanRole(ctx context.Context, userID, plan string) error
}

// Result is what the webhook endpoint reports back; it is always delivered with HTTP 200.
type Result struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type MembershipService struct {
	users        UserStore
	eraser       Eraser
	announcer    Announcer
	discord      Discord
	publisher    entity.EventPublisher
	secret       string
	productPlans map[string]string
	now          func() time.Time
}

func NewMembershipService(users UserStore, eraser Eraser, announcer Announcer, discord Discord, publisher entity.EventPublisher, secret string, productPlans map[string]string) *MembershipService {
	return &MembershipService{
		users:        users,
		eraser:       eraser,
		announcer:    announcer,
		discord:      discord,
		publisher:    publisher,
		secret:       secret,
		productPlans: productPlans,
		now:          time.Now,
	}
}

// VerifySignature checks a "t=<ts>,v1=<hex>" header against the raw body, with and
// without the timestamp prefix.
func VerifySignature(secret, header string, raw []byte) bool {
	parts := map[string]string{}
	for _, kv := range strings.Split(header, ",") {
		k, v, _ := strings.Cut(kv, "=")
		parts[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	ts := firstNonEmpty(parts["t"], parts["ts"])
	sig := firstNonEmpty(parts["v1"], parts["sig"])
	if sig == "" {
		return false
	}

	bases := []string{string(raw)}
	if ts != "" {
		bases = append([]string{ts + "." + string(raw)}, bases...)
	}
	for _, base := range bases {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(base))
		if hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(sig)) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func lookup(payload map[string]any, path []string) string {
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", v))
	}
	return ""
}

func firstPath(payload map[string]any, paths [][]string) string {
	for _, p := range paths {
		if v := lookup(payload, p); v != "" {
			return v
		}
	}
	return ""
}

// HandleWebhook applies a membership event. Processing errors are reported in the
// result rather than returned so the sender never retries.
func (s *MembershipService) HandleWebhook(ctx context.Context, raw []byte, signature string) Result {
	logger := logrus.WithField("component", "whop_webhook")

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warnf("decode payload: %v", err)
		return Result{OK: true, Error: "webhook_error", Message: err.Error()}
	}

	event := "unknown"
	for _, key := range eventKeys {
		if v := lookup(payload, []string{key}); v != "" {
			event = v
			break
		}
	}
	logger = logger.WithField("event", event)

	if s.secret != "" {
		switch {
		case signature == "":
			logger.Warn("no signature header, skipping verification")
		case !VerifySignature(s.secret, signature, raw):
			logger.Warn("signature verification failed")
		default:
			logger.Debug("signature verified")
		}
	}

	discordID := firstPath(payload, discordKeys)
	if discordID == "" {
		logger.Warn("skipping: missing discord user id")
		return Result{OK: true, Skipped: true, Reason: SkipMissingUser}
	}
	logger = logger.WithField("discordID", discordID)

	productID := firstPath(payload, productKeys)
	if productID == "" {
		logger.Warn("skipping: missing product id")
		return Result{OK: true, Skipped: true, Reason: SkipMissingProd}
	}

	active := slices.Contains(activeEvents, event)
	ended := slices.Contains(endedEvents, event)

	plan := constant.PlanFree
	if active {
		mapped, ok := s.productPlans[productID]
		if !ok {
			logger.WithField("productID", productID).Warn("skipping: unmapped product")
			return Result{OK: true, Skipped: true, Reason: SkipUnmapped}
		}
		plan = mapped
	}

	if ended {
		if err := s.eraser.EraseUser(ctx, discordID); err != nil {
			logger.Errorf("erase user: %v", err)
			return Result{OK: true, Error: "webhook_error", Message: err.Error()}
		}
		s.discord.SendDMBestEffort(ctx, discordID, GoodbyeMessage)
	} else if err := s.users.SetPlan(ctx, discordID, plan); err != nil {
		logger.Errorf("set plan: %v", err)
		return Result{OK: true, Error: "webhook_error", Message: err.Error()}
	}

	if err := s.discord.SyncPlanRole(ctx, discordID, plan); err != nil {
		logger.Warnf("discord role sync: %v", err)
	}

	if ended {
		s.announceRemoval(ctx, discordID, event)
		logger.Info("membership ended, account data removed")
		return Result{OK: true, Deleted: true}
	}

	logger.WithField("plan", plan).Info("membership plan applied")
	return Result{OK: true}
}

func (s *MembershipService) announceRemoval(ctx context.Context, discordID, event string) {
	body, audience := DeletionNotice, announcement.UserAudience(discordID)
	if _, err := s.announcer.Create(ctx, deletionTitle, &body, &audience); err != nil {
		logrus.WithField("discordID", discordID).Warnf("announcement insert: %v", err)
	}

	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, constant.DashboardEventAccountDeleted, entity.AccountDeletedEvent{
		UserID:    discordID,
		Reason:    event,
		Message:   DeletionNotice,
		Timestamp: entity.FormatISOMillis(s.now()),
	})
	if err != nil {
		logrus.WithField("discordID", discordID).Warnf("publish account deleted: %v", err)
	}
}
