package entity

import "github.com/guregu/null/v6"

type WatchlistItem struct {
	UserID        string      `db:"user_id" json:"-"`
	Symbol        string      `db:"symbol" json:"symbol"`
	Position      int         `db:"position" json:"position"`
	AssetType     null.String `db:"asset_type" json:"asset_type"`
	DisplaySymbol null.String `db:"display_symbol" json:"display_symbol"`
	DisplayName   null.String `db:"display_name" json:"display_name"`
}

func (WatchlistItem) TableName() string {
	return "watchlist"
}
