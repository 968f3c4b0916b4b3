// Package pricing derives cart totals. Every function here is pure: no I/O,
// no shared state, and no rounding until Display.
package pricing

import (
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Rules holds the checkout pricing parameters.
type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	// PromoCodes maps an upper-cased code to its discount rate (0.10 = 10%).
	PromoCodes map[string]decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: decimal.NewFromInt(500),
		FlatShippingFee:       decimal.NewFromInt(50),
		PromoCodes: map[string]decimal.Decimal{
			"SAVE10": decimal.RequireFromString("0.10"),
		},
	}
}

// Discount is the tagged result of applying a promo code. Applied is false
// for an empty or unknown code; a known code with a zero rate is Applied.
type Discount struct {
	Applied bool            `json:"applied"`
	Code    string          `json:"code,omitempty"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  decimal.Decimal `json:"amount"`
}

// Snapshot is the full set of derived totals for a cart at one point in time.
type Snapshot struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountApplied bool            `json:"discount_applied"`
	PromoCode       string          `json:"promo_code,omitempty"`
	DiscountRate    decimal.Decimal `json:"discount_rate"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

type Calculator struct {
	rules Rules
}

func NewCalculator(rules Rules) Calculator {
	return Calculator{rules: rules}
}

func (c Calculator) Rules() Rules {
	return c.rules
}

// Subtotal is Σ unitPrice × quantity over the lines.
func Subtotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// Discount matches promoCode case-insensitively against the known codes.
func (c Calculator) Discount(subtotal decimal.Decimal, promoCode string) Discount {
	code := strings.ToUpper(strings.TrimSpace(promoCode))
	if code == "" {
		return Discount{Rate: decimal.Zero, Amount: decimal.Zero}
	}
	rate, ok := c.rules.PromoCodes[code]
	if !ok {
		return Discount{Code: code, Rate: decimal.Zero, Amount: decimal.Zero}
	}
	return Discount{
		Applied: true,
		Code:    code,
		Rate:    rate,
		Amount:  subtotal.Mul(rate),
	}
}

// ShippingFee is waived once the subtotal reaches the free-shipping threshold.
func (c Calculator) ShippingFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.rules.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.rules.FlatShippingFee
}

// GrandTotal never goes below zero.
func GrandTotal(subtotal, discountAmount, shippingFee decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discountAmount).Add(shippingFee)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Quote recomputes every figure from the raw lines.
func (c Calculator) Quote(lines []domain.CartLine, promoCode string) Snapshot {
	subtotal := Subtotal(lines)
	discount := c.Discount(subtotal, promoCode)
	shipping := c.ShippingFee(subtotal)
	return Snapshot{
		Subtotal:        subtotal,
		DiscountApplied: discount.Applied,
		PromoCode:       discount.Code,
		DiscountRate:    discount.Rate,
		DiscountAmount:  discount.Amount,
		ShippingFee:     shipping,
		GrandTotal:      GrandTotal(subtotal, discount.Amount, shipping),
	}
}

// Display rounds an amount to two decimal places for presentation.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
