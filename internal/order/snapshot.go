package order

import (
	"context"
	"fmt"
	"math"
	"strings"

	"storefront-be/internal/cart"
	"storefront-be/internal/logger"
	"storefront-be/internal/product"

	"go.uber.org/zap"
)

const (
	PaymentMethodCOD = "cod"

	flatShippingFee = 0.0
)

type CreateOrderInput struct {
	Address       string `json:"address"`
	PaymentMethod string `json:"paymentMethod"`
}

// Snapshot is a validated, priced copy of the cart ready for reservation.
type Snapshot struct {
	UserID        string
	Address       string
	PaymentMethod string
	Items         []LineItem
	CartItemIDs   []string
	Subtotal      float64
	ShippingFee   float64
	Total         float64
}

type CartReader interface {
	GetByUser(ctx context.Context, userID string) (*cart.Cart, error)
}

type ProductReader interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error)
}

// SnapshotResolver turns a user's cart into a Snapshot. It only reads.
type SnapshotResolver struct {
	carts    CartReader
	products ProductReader
}

func NewSnapshotResolver(carts CartReader, products ProductReader) *SnapshotResolver {
	return &SnapshotResolver{carts: carts, products: products}
}

func (r *SnapshotResolver) Resolve(ctx context.Context, userID string, in CreateOrderInput) (*Snapshot, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "order"),
		zap.String("method", "SnapshotResolver.Resolve"),
		zap.String("user_id", userID),
	)

	address := strings.TrimSpace(in.Address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method != PaymentMethodCOD {
		return nil, ErrUnsupportedPaymentMethod
	}

	c, err := r.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	products, err := r.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	snap := &Snapshot{
		UserID:        userID,
		Address:       address,
		PaymentMethod: method,
		Items:         make([]LineItem, 0, len(c.Items)),
		CartItemIDs:   make([]string, 0, len(c.Items)),
		ShippingFee:   flatShippingFee,
	}

	// A product may sit on several cart lines; stock is checked against the
	// combined quantity.
	needed := make(map[string]int, len(c.Items))
	var subtotal float64

	for _, it := range c.Items {
		if it.Quantity < 1 {
			return nil, InvalidSnapshotError(it.ProductID, "quantity must be at least 1")
		}
		if math.IsNaN(it.PriceSnapshot) || math.IsInf(it.PriceSnapshot, 0) || it.PriceSnapshot < 0 {
			return nil, InvalidSnapshotError(it.ProductID, "price is not a valid amount")
		}

		p, ok := products[it.ProductID]
		if !ok || !p.Orderable() {
			return nil, ProductUnavailableError(it.ProductID)
		}

		needed[it.ProductID] += it.Quantity
		if p.Stock < needed[it.ProductID] {
			log.Info("insufficient stock at checkout",
				zap.String("product_id", p.ID),
				zap.Int("stock", p.Stock),
				zap.Int("requested", needed[it.ProductID]),
			)
			return nil, InsufficientStockError(p.ID, p.Name)
		}

		line := LineItem{
			ProductID:     p.ID,
			Name:          p.Name,
			Slug:          p.Slug,
			SKU:           p.SKU,
			ImageURL:      p.ImageURL,
			Quantity:      it.Quantity,
			PriceSnapshot: it.PriceSnapshot,
		}
		subtotal += line.LineTotal()
		snap.Items = append(snap.Items, line)
		snap.CartItemIDs = append(snap.CartItemIDs, it.ID)
	}

	snap.Subtotal = roundMoney(subtotal)
	snap.Total = roundMoney(snap.Subtotal + snap.ShippingFee)

	log.Debug("cart snapshot resolved",
		zap.Int("line_count", len(snap.Items)),
		zap.Float64("total", snap.Total),
	)
	return snap, nil
}
