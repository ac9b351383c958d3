package refund

import (
	"fmt"

	"storefront-be/internal/apperr"
)

var (
	ErrRefundNotFound          = apperr.NotFound("refund_not_found", "Refund request not found")
	ErrInvalidRefundTransition = apperr.New(apperr.KindInvalidTransition, "invalid_refund_transition", "Invalid refund transition")
	ErrOrderNotPaid            = apperr.Validation("order_not_paid", "Only paid orders can be refunded")
	ErrInvalidAmount           = apperr.Validation("invalid_refund_amount", "Refund amount must be greater than zero and at most the order total")
	ErrRefundExceedsPaid       = apperr.Validation("refund_exceeds_paid", "Refund amount exceeds what is left to refund on this order")
	ErrReasonRequired          = apperr.Validation("refund_reason_required", "Refund reason is required")
	ErrInvalidStatusFilter     = apperr.Validation("invalid_refund_status", "Invalid refund status")
	ErrRefundOpen              = apperr.New(apperr.KindConflict, "refund_already_open", "A refund request is already open for this order")
)

func InvalidRefundTransitionError(from, to Status) error {
	return ErrInvalidRefundTransition.WithMessage(
		fmt.Sprintf("Refund cannot move from %s to %s", from, to),
	)
}
