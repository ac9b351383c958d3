package refund

import (
	"strings"
	"time"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusProcessed Status = "processed"
)

var transitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusProcessed},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the refund still awaits an operator.
func (s Status) IsOpen() bool {
	return s == StatusRequested || s == StatusApproved
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusRequested, StatusApproved, StatusRejected, StatusProcessed:
		return st, true
	}
	return "", false
}

// Request is a customer's refund claim against a paid order. Amount is in
// minor units. Approving or processing it does not move money; processed
// records that an operator refunded out of band.
type Request struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"orderId"`
	UserID      string     `json:"userId"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	ReviewedBy  *string    `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ProcessedBy *string    `json:"processedBy,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	AdminNote   *string    `json:"adminNote,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type RequestInput struct {
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}
