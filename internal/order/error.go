package order

import (
	"fmt"
	"net/http"

	"storefront-be/internal/apperr"
)

var (
	ErrEmptyCart                = apperr.Validation("empty_cart", "Cart is empty")
	ErrAddressRequired          = apperr.Validation("address_required", "Delivery address is required")
	ErrUnsupportedPaymentMethod = apperr.Validation("unsupported_payment_method", "Unsupported payment method")
	ErrProductUnavailable       = apperr.Validation("product_unavailable", "Product is no longer available")
	ErrInvalidSnapshot          = apperr.Validation("invalid_snapshot", "Cart item is invalid")
	ErrInvalidStatus            = apperr.Validation("invalid_status", "Invalid order status")
	ErrOrderNotFound            = apperr.NotFound("order_not_found", "Order not found")
	ErrNotCancellable           = apperr.New(apperr.KindInvalidTransition, "not_cancellable", "Only pending orders can be cancelled")

	// Stock conflicts are reported as 400 to clients.
	ErrInsufficientStock = apperr.New(apperr.KindConflict, "insufficient_stock", "Insufficient stock").WithStatus(http.StatusBadRequest)
	ErrStockChanged      = apperr.New(apperr.KindConflict, "stock_changed", "Stock changed, please review your cart").WithStatus(http.StatusBadRequest)
	ErrCartChanged       = apperr.New(apperr.KindConflict, "cart_changed", "Cart changed during checkout, please retry")
)

func ProductUnavailableError(productID string) error {
	return ErrProductUnavailable.WithMessage(fmt.Sprintf("Product %s is no longer available", productID))
}

func InsufficientStockError(productID, name string) error {
	return ErrInsufficientStock.WithMessage(fmt.Sprintf("Insufficient stock for %s", label(productID, name)))
}

func InvalidSnapshotError(productID, reason string) error {
	return ErrInvalidSnapshot.WithMessage(fmt.Sprintf("Cart item %s is invalid: %s", productID, reason))
}

func StockChangedError(productID, name string) error {
	return ErrStockChanged.WithMessage(fmt.Sprintf("Stock changed for %s, please review your cart", label(productID, name)))
}

func label(productID, name string) string {
	if name != "" {
		return name
	}
	return productID
}
