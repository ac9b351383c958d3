package order

import (
	"encoding/json"
	"math"
	"time"
)

// LineItem is an immutable copy of what was bought, taken from the cart and
// catalog at creation time. It is never recomputed from live prices.
type LineItem struct {
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	SKU           string  `json:"sku"`
	ImageURL      *string `json:"imageUrl,omitempty"`
	Quantity      int     `json:"quantity"`
	PriceSnapshot float64 `json:"priceSnapshot"`
}

func (l LineItem) LineTotal() float64 {
	return roundMoney(float64(l.Quantity) * l.PriceSnapshot)
}

type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Address       string          `json:"address"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []LineItem      `json:"items"`
	Subtotal      float64         `json:"subtotal"`
	ShippingFee   float64         `json:"shippingFee"`
	Total         float64         `json:"total"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Gateway       *string         `json:"paymentGateway,omitempty"`
	PaymentRef    *string         `json:"paymentRef,omitempty"`
	PaymentMeta   json.RawMessage `json:"paymentMeta,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
	CancelledBy   *string         `json:"cancelledBy,omitempty"`
	CancelReason  *string         `json:"cancelReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// IsOwnedBy reports whether userID placed the order.
func (o *Order) IsOwnedBy(userID string) bool {
	return o != nil && o.UserID == userID
}

// PaymentUpdate is the payment-axis write applied by the gateway adapter.
type PaymentUpdate struct {
	Status  PaymentStatus
	Gateway string
	Ref     string
	Meta    json.RawMessage
	PaidAt  *time.Time
}

// MinorUnits converts a major-unit amount into integer minor units
// (e.g. rupees to paisa), rounding half away from zero.
func MinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
