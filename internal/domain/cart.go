package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one product entry in a cart. UnitPrice is captured when the
// product is added and never refreshed from the catalog.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is UnitPrice × Quantity, unrounded.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the persisted snapshot of a cart store. Lines keep insertion order.
type Cart struct {
	Key       string     `json:"key"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}
