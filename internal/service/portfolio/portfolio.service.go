package portfolio

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/util"
)

var (
	ErrMissingSymbol = errors.New("missing_symbol")
	ErrNotFound      = errors.New("not_found")
)

// patchFields maps request keys onto position columns.
var patchFields = map[string]string{
	"symbol":          "symbol",
	"quantity":        "quantity",
	"costBasis":       "cost_basis",
	"targetPrice":     "target_price",
	"risk":            "risk",
	"timeframe":       "timeframe",
	"notes":           "notes",
	"confidence":      "confidence",
	"strategy":        "strategy",
	"closedAt":        "closed_at",
	"exitPrice":       "exit_price",
	"pnl":             "pnl",
	"lastNotifiedPnl": "last_notified_pnl",
}

var numericColumns = map[string]bool{
	"quantity":          true,
	"cost_basis":        true,
	"target_price":      true,
	"confidence":        true,
	"exit_price":        true,
	"pnl":               true,
	"last_notified_pnl": true,
}

type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]entity.PortfolioPosition, error)
	Create(ctx context.Context, p *entity.PortfolioPosition) error
	Update(ctx context.Context, id int64, userID string, fields map[string]any) (int64, error)
	Delete(ctx context.Context, id int64, userID string) (int64, error)
}

type PortfolioService struct {
	repo Repository
}

func NewPortfolioService(repo Repository) *PortfolioService {
	return &PortfolioService{repo: repo}
}

func (s *PortfolioService) List(ctx context.Context, userID string) ([]entity.PortfolioPosition, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *PortfolioService) Create(ctx context.Context, userID string, body map[string]any) (*entity.PortfolioPosition, error) {
	symbol := strings.ToUpper(util.String(body["symbol"]))
	if symbol == "" {
		return nil, ErrMissingSymbol
	}

	position := &entity.PortfolioPosition{
		UserID:      userID,
		Symbol:      symbol,
		Quantity:    util.NullDecimal(body["quantity"]),
		CostBasis:   util.NullDecimal(body["costBasis"]),
		TargetPrice: util.NullDecimal(body["targetPrice"]),
		Risk:        util.NullString(body["risk"]),
		Timeframe:   util.NullString(body["timeframe"]),
		Notes:       util.NullString(body["notes"]),
		Confidence:  util.NullDecimal(body["confidence"]),
		Strategy:    util.NullString(body["strategy"]),
	}
	if err := s.repo.Create(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}

// Patch only touches the keys present in body. A null value clears the column.
func (s *PortfolioService) Patch(ctx context.Context, userID string, id int64, body map[string]any) error {
	fields := PatchFields(body)
	affected, err := s.repo.Update(ctx, id, userID, fields)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func PatchFields(body map[string]any) map[string]any {
	fields := map[string]any{}
	for key, column := range patchFields {
		v, ok := body[key]
		if !ok {
			continue
		}
		switch {
		case column == "symbol":
			if symbol := strings.ToUpper(util.String(v)); symbol != "" {
				fields[column] = symbol
			}
		case column == "closed_at":
			fields[column] = parseTime(v)
		case numericColumns[column]:
			fields[column] = util.NullDecimal(v)
		default:
			fields[column] = util.NullString(v)
		}
	}
	return fields
}

func parseTime(v any) null.Time {
	s := util.String(v)
	if s == "" {
		return null.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return null.Time{}
	}
	return null.TimeFrom(t)
}

func (s *PortfolioService) Delete(ctx context.Context, userID string, id int64) error {
	affected, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
