package order

import "strings"

// Status is the fulfillment axis of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped},
	StatusShipped:   {StatusDelivered},
}

// ParseStatus accepts any of the five statuses, case-insensitively.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// PaymentStatus is the payment axis of an order. It moves independently of
// Status.
type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:    {PaymentInitiated},
	PaymentInitiated: {PaymentInitiated, PaymentPaid, PaymentFailed},
	PaymentFailed:    {PaymentInitiated, PaymentPaid, PaymentFailed},
}

func (p PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Anomaly codes reported by Order.Anomalies.
const (
	AnomalyCancelledButPaid     = "cancelled_but_paid"
	AnomalyPaidWithoutTimestamp = "paid_without_timestamp"
)

// Anomalies lists combinations of the two axes that are stored as-is but
// need an operator's attention.
func (o *Order) Anomalies() []string {
	var out []string
	if o.Status == StatusCancelled && o.PaymentStatus == PaymentPaid {
		out = append(out, AnomalyCancelledButPaid)
	}
	if o.PaymentStatus == PaymentPaid && o.PaidAt == nil {
		out = append(out, AnomalyPaidWithoutTimestamp)
	}
	return out
}
