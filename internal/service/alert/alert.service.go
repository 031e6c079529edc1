package alert

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/sirupsen/logrus"
)

var (
	ErrBadInput      = errors.New("bad_input")
	ErrInvalidID     = errors.New("invalid_id")
	ErrUnknownSymbol = errors.New("unknown_symbol")
	ErrMissingSymbol = errors.New("missing_symbol")
	ErrNotFound      = errors.New("not_found")
	ErrForbidden     = errors.New("forbidden")
	ErrDuplicate     = errors.New("duplicate_alert")
)

type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]entity.Alert, error)
	GetForUser(ctx context.Context, id int64, userID string) (*entity.Alert, error)
	Create(ctx context.Context, alert *entity.Alert) error
	Update(ctx context.Context, alert *entity.Alert) error
	Delete(ctx context.Context, id int64, userID string) (int64, error)
	MarkTriggered(ctx context.Context, id int64, userID string, at time.Time) error
}

type AssetResolver interface {
	ResolveAssetMeta(ctx context.Context, raw string) (*entity.AssetMeta, error)
}

// TriggerInput is reported by the alert evaluation bot when a threshold is crossed.
type TriggerInput struct {
	AlertID       any      `json:"alertId"`
	UserID        string   `json:"userId"`
	Symbol        string   `json:"symbol"`
	Direction     string   `json:"direction"`
	Threshold     *float64 `json:"threshold"`
	CurrentPrice  *float64 `json:"currentPrice"`
	Type          string   `json:"type"`
	AssetType     string   `json:"assetType"`
	DisplaySymbol string   `json:"displaySymbol"`
	DisplayName   string   `json:"displayName"`
	Active        *bool    `json:"active"`
	ChangeValue   *float64 `json:"changeValue"`
	TriggeredAt   string   `json:"triggeredAt"`
}

type AlertService struct {
	repo        Repository
	resolver    AssetResolver
	publisher   entity.EventPublisher
	internalKey string
	now         func() time.Time
}

func NewAlertService(repo Repository, resolver AssetResolver, publisher entity.EventPublisher, internalKey string) *AlertService {
	return &AlertService{
		repo:        repo,
		resolver:    resolver,
		publisher:   publisher,
		internalKey: internalKey,
		now:         time.Now,
	}
}

// ParseID accepts positive integer ids only.
func ParseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "undefined" || raw == "null" {
		return 0, ErrInvalidID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

func (s *AlertService) List(ctx context.Context, userID string) ([]entity.Alert, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]entity.Alert, 0, len(rows))
	for _, row := range rows {
		row.Symbol = strings.ToUpper(row.Symbol)
		if row.Symbol == "" {
			continue
		}
		if row.DisplaySymbol.Valid && row.DisplaySymbol.String != "" {
			row.DisplaySymbol = null.StringFrom(strings.ToUpper(row.DisplaySymbol.String))
		} else {
			row.DisplaySymbol = null.StringFrom(row.Symbol)
		}

		if !row.AssetType.Valid || !row.DisplayName.Valid || row.DisplayName.String == "" {
			s.backfill(ctx, &row)
		}
		if !row.DisplayName.Valid || row.DisplayName.String == "" {
			row.DisplayName = null.StringFrom(row.Symbol)
		}
		items = append(items, row)
	}
	return items, nil
}

func (s *AlertService) backfill(ctx context.Context, row *entity.Alert) {
	meta, err := s.resolver.ResolveAssetMeta(ctx, row.Symbol)
	if err != nil || meta == nil {
		return
	}
	applyMeta(row, meta)
	if err := s.repo.Update(ctx, row); err != nil {
		logrus.WithFields(logrus.Fields{"alertID": row.ID, "userID": row.UserID}).Warnf("alert backfill update: %v", err)
	}
}

// Create requires symbol, type and direction. Active defaults to true. A user
// holds one alert per symbol, so creating again replaces the condition.
func (s *AlertService) Create(ctx context.Context, userID string, body map[string]any) (*entity.Alert, *entity.AssetMeta, error) {
	symbol := util.String(body["symbol"])
	alertType := util.String(body["type"])
	direction := util.String(body["direction"])
	if symbol == "" || alertType == "" || direction == "" {
		return nil, nil, ErrBadInput
	}

	meta, err := s.resolver.ResolveAssetMeta(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	if meta == nil {
		return nil, nil, ErrUnknownSymbol
	}

	alert := &entity.Alert{
		UserID:    userID,
		Symbol:    meta.Symbol,
		Type:      entity.NormalizeAlertType(strings.ToLower(alertType)),
		Direction: entity.NormalizeAlertDirection(direction),
		Threshold: util.NullDecimal(body["threshold"]),
		WindowTF:  util.NullString(body["windowTf"]),
		Cooldown:  util.NullString(body["cooldown"]),
		Active:    body["active"] != false,
	}
	applyMeta(alert, meta)

	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, nil, err
	}
	return alert, meta, nil
}

// Patch merges the present fields into the stored alert. Alerts owned by
// another user are reported as not found.
func (s *AlertService) Patch(ctx context.Context, userID string, id int64, body map[string]any) (*entity.Alert, error) {
	current, err := s.repo.GetForUser(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	current.Symbol = strings.ToUpper(current.Symbol)
	if symbol := util.String(body["symbol"]); symbol != "" {
		meta, err := s.resolver.ResolveAssetMeta(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, ErrUnknownSymbol
		}
		current.Symbol = meta.Symbol
		applyMeta(current, meta)
	}

	if t := util.String(body["type"]); t != "" {
		current.Type = entity.NormalizeAlertType(strings.ToLower(t))
	}
	if d := util.String(body["direction"]); d != "" {
		current.Direction = entity.NormalizeAlertDirection(d)
	}
	if v, ok := body["threshold"]; ok {
		current.Threshold = util.NullDecimal(v)
	}
	if v, ok := body["windowTf"]; ok {
		current.WindowTF = util.NullString(v)
	}
	if v, ok := body["cooldown"]; ok {
		current.Cooldown = util.NullString(v)
	}
	if v, ok := body["active"]; ok {
		current.Active = v != false
	}

	err = s.repo.Update(ctx, current)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *AlertService) Delete(ctx context.Context, userID string, id int64) error {
	affected, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Authorize checks the internal key header when one is configured.
func (s *AlertService) Authorize(key string) error {
	if s.internalKey == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.internalKey)) != 1 {
		return ErrForbidden
	}
	return nil
}

// TriggerNotify stamps the alert when it is identifiable and broadcasts it.
func (s *AlertService) TriggerNotify(ctx context.Context, in TriggerInput) error {
	if strings.TrimSpace(in.Symbol) == "" {
		return ErrMissingSymbol
	}

	now := s.now()
	logger := logrus.WithFields(logrus.Fields{"userID": in.UserID, "symbol": in.Symbol})

	var alertID any = now.UnixMilli()
	if id := util.Float(in.AlertID); id != nil && *id > 0 {
		alertID = int64(*id)
		if in.UserID != "" {
			if err := s.repo.MarkTriggered(ctx, int64(*id), in.UserID, now); err != nil {
				logger.Warnf("mark alert triggered: %v", err)
			}
		}
	}

	triggeredAt := in.TriggeredAt
	if triggeredAt == "" {
		triggeredAt = entity.FormatISOMillis(now)
	}

	symbol := in.DisplaySymbol
	if symbol == "" {
		symbol = in.Symbol
	}
	direction := in.Direction
	if direction == "" {
		direction = entity.AlertDirectionAbove
	}
	alertType := in.Type
	if alertType == "" {
		alertType = entity.AlertTypePrice
	}

	event := entity.AlertTriggeredEvent{Alert: entity.TriggeredAlert{
		ID:            alertID,
		UserID:        optional(in.UserID),
		Symbol:        strings.ToUpper(symbol),
		Direction:     direction,
		Threshold:     in.Threshold,
		CurrentPrice:  in.CurrentPrice,
		Type:          alertType,
		AssetType:     optional(in.AssetType),
		DisplaySymbol: optional(in.DisplaySymbol),
		DisplayName:   optional(in.DisplayName),
		CreatedAt:     triggeredAt,
		TriggeredAt:   triggeredAt,
		Active:        in.Active != nil && *in.Active,
		Change:        in.ChangeValue,
	}}

	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(ctx, constant.DashboardEventAlertTriggered, event); err != nil {
		logger.Warnf("publish alert_triggered: %v", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func applyMeta(alert *entity.Alert, meta *entity.AssetMeta) {
	if meta.AssetType != "" {
		alert.AssetType = null.StringFrom(meta.AssetType)
	}
	displaySymbol := meta.DisplaySymbol
	if displaySymbol == "" {
		displaySymbol = meta.Symbol
	}
	alert.DisplaySymbol = null.StringFrom(strings.ToUpper(displaySymbol))
	name := meta.Name
	if name == "" {
		name = meta.Symbol
	}
	alert.DisplayName = null.StringFrom(name)
}
