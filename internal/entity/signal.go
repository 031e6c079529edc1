package entity

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

const (
	SignalStatusActive    = "active"
	SignalStatusPending   = "pending"
	SignalStatusCompleted = "completed"
	SignalStatusClosed    = "closed"

	SignalTypeBuy  = "BUY"
	SignalTypeSell = "SELL"
)

type Signal struct {
	ID              int64               `db:"id"`
	Symbol          string              `db:"symbol"`
	DisplaySymbol   null.String         `db:"display_symbol"`
	SignalType      string              `db:"signal_type"`
	Price           decimal.NullDecimal `db:"price"`
	Timestamp       null.Time           `db:"timestamp"`
	SignalStrength  null.String         `db:"signal_strength"`
	AssetType       null.String         `db:"asset_type"`
	Recommendations null.String         `db:"recommendations"`
	Performance     null.String         `db:"performance"`
	Details         JSONMap             `db:"details"`
	Status          null.String         `db:"status"`
}

func (Signal) TableName() string {
	return "signals"
}

func IsValidSignalStatus(status string) bool {
	switch status {
	case SignalStatusActive, SignalStatusPending, SignalStatusCompleted, SignalStatusClosed:
		return true
	}
	return false
}

// SignalPatch holds the mutable parts of a signal. Nil fields are left untouched.
type SignalPatch struct {
	Status      *string
	Performance *string
	Details     JSONMap
}

func (p SignalPatch) Empty() bool {
	return p.Status == nil && p.Performance == nil && p.Details == nil
}

type SignalEntry struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
	Mid  *float64 `json:"mid"`
}

type SignalTarget struct {
	Label string   `json:"label"`
	Price *float64 `json:"price"`
	Pct   *float64 `json:"pct"`
}

type SignalStop struct {
	Price *float64 `json:"price"`
	Pct   *float64 `json:"pct"`
}

// SignalView is the client facing projection of a signal row.
type SignalView struct {
	ID             any               `json:"id"`
	Symbol         string            `json:"symbol"`
	RawSymbol      string            `json:"rawSymbol"`
	AssetType      string            `json:"assetType"`
	AssetLabel     string            `json:"assetLabel"`
	LogoURL        *string           `json:"logoUrl"`
	Type           string            `json:"type"`
	Price          string            `json:"price"`
	PriceValue     *float64          `json:"priceValue"`
	Entry          *SignalEntry      `json:"entry"`
	EntryRange     string            `json:"entryRange"`
	Targets        []SignalTarget    `json:"targets"`
	Stop           *SignalStop       `json:"stop"`
	StopLoss       string            `json:"stopLoss"`
	Target         string            `json:"target"`
	SignalStrength *string           `json:"signalStrength"`
	Confidence     any               `json:"confidence"`
	Score          *float64          `json:"score"`
	Timeframes     map[string]string `json:"timeframes"`
	ChartURL       *string           `json:"chartUrl"`
	PostedAt       string            `json:"postedAt"`
	Time           string            `json:"time"`
	Description    string            `json:"description"`
	Summary        string            `json:"summary"`
	Status         string            `json:"status"`
	Details        map[string]any    `json:"details"`
	Performance    map[string]any    `json:"performance"`
}

type SignalList struct {
	Source string       `json:"source"`
	Items  []SignalView `json:"items"`
}

type SignalCount struct {
	Count  int64  `json:"count"`
	Source string `json:"source"`
}
