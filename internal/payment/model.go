package payment

import (
	"encoding/json"
	"time"
)

const (
	GatewayKhalti = "khalti"

	// MinAmountPaisa is Khalti's smallest accepted payment (Rs. 10).
	MinAmountPaisa int64 = 1000
)

// Upstream lookup statuses that map to something other than failed.
const (
	khaltiStatusCompleted = "completed"
	khaltiStatusPending   = "pending"
)

type InitiateRequest struct {
	OrderID     string
	OrderName   string
	AmountPaisa int64
}

type InitiateResult struct {
	Pidx       string          `json:"pidx"`
	PaymentURL string          `json:"payment_url"`
	ExpiresAt  string          `json:"expires_at,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

type LookupResult struct {
	Pidx          string          `json:"pidx"`
	Status        string          `json:"status"`
	TotalAmount   int64           `json:"total_amount"`
	TransactionID *string         `json:"transaction_id"`
	Raw           json.RawMessage `json:"-"`
}

// InitiateResponse is returned to the client. AlreadyPaid is set instead of
// a payment URL when the order needs no further payment.
type InitiateResponse struct {
	Pidx        string `json:"pidx,omitempty"`
	PaymentURL  string `json:"payment_url,omitempty"`
	AlreadyPaid bool   `json:"alreadyPaid,omitempty"`
}

// Log is one append-only record of a gateway interaction.
type Log struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	UserID      string          `json:"userId"`
	Gateway     string          `json:"gateway"`
	Action      string          `json:"action"`
	Status      string          `json:"status"`
	Amount      int64           `json:"amount"`
	ExternalRef *string         `json:"externalRef,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

const (
	LogActionInitiate = "initiate"
	LogActionVerify   = "verify"
)
