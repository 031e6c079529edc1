package entity

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

const (
	AlertTypePrice   = "price"
	AlertTypePercent = "%"

	AlertDirectionAbove = ">="
	AlertDirectionBelow = "<="
)

type Alert struct {
	ID              int64               `db:"id" json:"id"`
	UserID          string              `db:"user_id" json:"-"`
	Symbol          string              `db:"symbol" json:"symbol"`
	Type            string              `db:"type" json:"type"`
	Direction       string              `db:"direction" json:"direction"`
	Threshold       decimal.NullDecimal `db:"threshold" json:"threshold"`
	WindowTF        null.String         `db:"window_tf" json:"window_tf"`
	Cooldown        null.String         `db:"cooldown" json:"cooldown"`
	Active          bool                `db:"active" json:"active"`
	AssetType       null.String         `db:"asset_type" json:"asset_type"`
	DisplaySymbol   null.String         `db:"display_symbol" json:"display_symbol"`
	DisplayName     null.String         `db:"display_name" json:"display_name"`
	CreatedAt       null.Time           `db:"created_at" json:"created_at"`
	LastTriggeredAt null.Time           `db:"last_triggered_at" json:"last_triggered_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// NormalizeAlertType maps free-form input onto the stored alert type.
func NormalizeAlertType(raw string) string {
	if raw == AlertTypePercent {
		return AlertTypePercent
	}
	return AlertTypePrice
}

func NormalizeAlertDirection(raw string) string {
	if raw == AlertDirectionBelow {
		return AlertDirectionBelow
	}
	return AlertDirectionAbove
}
