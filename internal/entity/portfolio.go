package entity

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type PortfolioPosition struct {
	ID              int64               `db:"id" json:"id"`
	UserID          string              `db:"user_id" json:"-"`
	Symbol          string              `db:"symbol" json:"symbol"`
	Quantity        decimal.NullDecimal `db:"quantity" json:"quantity"`
	CostBasis       decimal.NullDecimal `db:"cost_basis" json:"cost_basis"`
	TargetPrice     decimal.NullDecimal `db:"target_price" json:"target_price"`
	Risk            null.String         `db:"risk" json:"risk"`
	Timeframe       null.String         `db:"timeframe" json:"timeframe"`
	Notes           null.String         `db:"notes" json:"notes"`
	Confidence      decimal.NullDecimal `db:"confidence" json:"confidence"`
	Strategy        null.String         `db:"strategy" json:"strategy"`
	ClosedAt        null.Time           `db:"closed_at" json:"closed_at"`
	ExitPrice       decimal.NullDecimal `db:"exit_price" json:"exit_price"`
	PnL             decimal.NullDecimal `db:"pnl" json:"pnl"`
	LastNotifiedPnL decimal.NullDecimal `db:"last_notified_pnl" json:"last_notified_pnl"`
	CreatedAt       null.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       null.Time           `db:"updated_at" json:"updated_at"`
}

func (PortfolioPosition) TableName() string {
	return "portfolio_positions"
}
