package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodGateway        PaymentMethod = "gateway"
	PaymentMethodCashOnDelivery PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodGateway || m == PaymentMethodCashOnDelivery
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

// Order is the order header. Subtotal, DiscountAmount and ShippingFee are
// stored next to TotalAmount so the header can be checked against its lines.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PromoCode       string          `json:"promo_code,omitempty"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	TransactionID   *string         `json:"transaction_id"`
	CreatedAt       time.Time       `json:"created_at"`
	Lines           []OrderLine     `json:"lines,omitempty"`
}

type OrderLine struct {
	OrderID             string          `json:"order_id"`
	ProductID           string          `json:"product_id"`
	Quantity            int             `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price_at_purchase"`
}

// LinesTotal sums quantity × unit price over the given lines.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// ExpectedTotal is the header total implied by the line items and the
// recorded adjustments.
func (o *Order) ExpectedTotal() decimal.Decimal {
	total := LinesTotal(o.Lines).Sub(o.DiscountAmount).Add(o.ShippingFee)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
