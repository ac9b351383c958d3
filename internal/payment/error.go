package payment

import (
	"fmt"

	"storefront-be/internal/apperr"
)

var (
	ErrInvalidAmount      = apperr.Validation("invalid_amount", fmt.Sprintf("Amount must be at least %d paisa", MinAmountPaisa))
	ErrNotPayable         = apperr.New(apperr.KindInvalidTransition, "not_payable", "Only pending orders can be paid")
	ErrNotInitiated       = apperr.Validation("payment_not_initiated", "Payment has not been initiated for this order")
	ErrReferenceRequired  = apperr.Validation("pidx_required", "pidx is required")
	ErrReferenceMismatch  = apperr.Validation("pidx_mismatch", "Payment reference does not match this order")
	ErrOrderIDRequired    = apperr.Validation("order_id_required", "orderId is required")
	ErrPaymentIncomplete  = apperr.Validation("payment_incomplete", "Payment not completed")
	ErrGateway            = apperr.New(apperr.KindGateway, "gateway_error", "Payment gateway error")
	ErrGatewayUnavailable = apperr.New(apperr.KindGateway, "gateway_unavailable", "Payment gateway is temporarily unavailable")
	ErrAmountMismatch     = apperr.New(apperr.KindGateway, "amount_mismatch", "Paid amount does not match the order total")
)

// GatewayError carries the upstream message through to the client.
func GatewayError(message string) error {
	if message == "" {
		return ErrGateway
	}
	return ErrGateway.WithMessage(message)
}

func PaymentIncompleteError(upstreamStatus string) error {
	return ErrPaymentIncomplete.WithMessage("Payment not completed: " + upstreamStatus)
}
