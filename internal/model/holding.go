package model

// Position is an owned (symbol, category) pair.
type Position struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Category string `json:"category" yaml:"category"`
}

// Key collapses a position into its identity string.
func (p Position) Key() string {
	return p.Symbol + "\x00" + p.Category
}

// HoldingItem is one position in a user's holdings snapshot. Index is
// reassigned on every reconciliation pass and only fixes rendering order.
type HoldingItem struct {
	Position
	Index int `json:"index" yaml:"index"`
}
