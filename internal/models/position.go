package models

// LivePosition is the exchange-side position attached by position sync.
// It is display-only and never feeds the lifecycle.
type LivePosition struct {
	Side        Side    `json:"side"`
	Volume      float64 `json:"volume"`
	Entry       float64 `json:"entry"`
	Leverage    int     `json:"leverage"`
	Liquidation float64 `json:"liquidation"`
	PnL         float64 `json:"pnl"`
}
