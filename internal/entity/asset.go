package entity

// AssetMeta is the canonical description of a tradable symbol.
type AssetMeta struct {
	Symbol        string  `json:"symbol"`
	DisplaySymbol string  `json:"displaySymbol"`
	Name          string  `json:"name"`
	AssetType     string  `json:"assetType"`
	Logo          *string `json:"logo"`
	CoinID        string  `json:"coinId,omitempty"`
}

type AssetSuggestion struct {
	Symbol        string  `json:"symbol"`
	DisplaySymbol string  `json:"displaySymbol"`
	Name          string  `json:"name"`
	AssetType     string  `json:"assetType"`
	Logo          *string `json:"logo"`
	Source        string  `json:"source"`
	Score         float64 `json:"-"`
}
