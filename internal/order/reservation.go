package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MetricReservations     = "order_reservations_committed"
	MetricStockConflicts   = "order_stock_conflicts"
	MetricCompensations    = "order_stock_compensations"
	MetricCompensationGaps = "order_stock_compensation_failures"
)

// UnitRunner runs a unit of work in the store's configured mode.
type UnitRunner interface {
	Run(ctx context.Context, fn func(q db.Querier) error) error
	Mode() db.TxMode
}

type StockStore interface {
	DecrementStock(ctx context.Context, q db.Querier, productID string, qty int) (bool, error)
	IncrementStock(ctx context.Context, q db.Querier, productID string, qty int) error
}

type OrderWriter interface {
	Insert(ctx context.Context, q db.Querier, o *Order) error
}

type CartClearer interface {
	Clear(ctx context.Context, q db.Querier, userID string, itemIDs []string) (int64, error)
}

// stockMove is the net stock change for one product.
type stockMove struct {
	productID string
	name      string
	quantity  int
}

// stockMoves folds lines into one move per product, sorted by product id.
// Every unit of work touches product rows in this order.
func stockMoves(items []LineItem) []stockMove {
	idx := make(map[string]int, len(items))
	moves := make([]stockMove, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			moves[i].quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(moves)
		moves = append(moves, stockMove{productID: it.ProductID, name: it.Name, quantity: it.Quantity})
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].productID < moves[j].productID })
	return moves
}

// Coordinator turns a Snapshot into a persisted order. Stock decrements,
// the order insert and the cart clear succeed or fail together when the
// runner is transactional. In sequential mode each step is applied on its
// own and, unless disabled, already-applied decrements are returned when a
// later step fails.
type Coordinator struct {
	runner     UnitRunner
	stock      StockStore
	orders     OrderWriter
	carts      CartClearer
	compensate bool
	metrics    *metrics.Registry
	now        func() time.Time
	newID      func() string
}

type CoordinatorOption func(*Coordinator)

// WithFallbackCompensation toggles stock compensation in sequential mode.
func WithFallbackCompensation(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.compensate = enabled }
}

func WithMetrics(reg *metrics.Registry) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = reg }
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(runner UnitRunner, stock StockStore, orders OrderWriter, carts CartClearer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		runner:     runner,
		stock:      stock,
		orders:     orders,
		carts:      carts,
		compensate: true,
		metrics:    metrics.NewRegistry(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Reserve(ctx context.Context, userID string, snap *Snapshot) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "order"),
		zap.String("method", "Coordinator.Reserve"),
		zap.String("user_id", userID),
		zap.String("tx_mode", string(c.runner.Mode())),
	)
	timer := metrics.StartTimer()

	now := c.now()
	o := &Order{
		ID:            c.newID(),
		UserID:        userID,
		Address:       snap.Address,
		PaymentMethod: snap.PaymentMethod,
		Items:         snap.Items,
		Subtotal:      snap.Subtotal,
		ShippingFee:   snap.ShippingFee,
		Total:         snap.Total,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sequential := c.runner.Mode() == db.TxModeSequential
	moves := stockMoves(o.Items)
	want := int64(len(snap.CartItemIDs))
	var applied []stockMove

	err := c.runner.Run(ctx, func(q db.Querier) error {
		applied = applied[:0]

		for _, mv := range moves {
			ok, err := c.stock.DecrementStock(ctx, q, mv.productID, mv.quantity)
			if errors.Is(err, product.ErrLockConflict) {
				ok, err = false, nil
			}
			if err != nil {
				return fmt.Errorf("reserve %s: %w", mv.productID, err)
			}
			if !ok {
				c.metrics.Counter(MetricStockConflicts).Inc()
				return StockChangedError(mv.productID, mv.name)
			}
			applied = append(applied, mv)
		}

		if err := c.orders.Insert(ctx, q, o); err != nil {
			return err
		}

		// Only the cart lines the snapshot priced are removed; lines added
		// since then stay in the cart.
		cleared, err := c.carts.Clear(ctx, q, userID, snap.CartItemIDs)
		if sequential {
			// The order is already stored; a stale cart is the lesser problem.
			if err != nil {
				log.Error("order stored but cart clear failed", zap.String("order_id", o.ID), zap.Error(err))
			} else if cleared < want {
				log.Warn("order stored but some cart lines were already gone",
					zap.String("order_id", o.ID),
					zap.Int64("cleared", cleared),
					zap.Int64("expected", want),
				)
			}
			return nil
		}
		if err != nil {
			return err
		}
		if cleared < want {
			return ErrCartChanged
		}
		return nil
	})
	if err != nil {
		if sequential && len(applied) > 0 {
			c.restore(ctx, log, applied)
		}
		log.Info("reservation failed", zap.Error(err), zap.Duration("duration", timer.Duration()))
		return nil, err
	}

	c.metrics.Counter(MetricReservations).Inc()
	log.Info("order reserved",
		zap.String("order_id", o.ID),
		zap.Int("line_count", len(o.Items)),
		zap.Float64("total", o.Total),
		zap.Duration("duration", timer.Duration()),
	)
	return o, nil
}

// restore returns stock taken by a failed sequential reservation. It keeps
// going past individual failures so as much stock as possible comes back.
func (c *Coordinator) restore(ctx context.Context, log *zap.Logger, applied []stockMove) {
	if !c.compensate {
		log.Warn("sequential reservation failed, stock left decremented",
			zap.Int("decremented_products", len(applied)),
		)
		return
	}

	ctx = context.WithoutCancel(ctx)
	err := c.runner.Run(ctx, func(q db.Querier) error {
		var errs []error
		for _, mv := range applied {
			if err := c.stock.IncrementStock(ctx, q, mv.productID, mv.quantity); err != nil {
				c.metrics.Counter(MetricCompensationGaps).Inc()
				errs = append(errs, fmt.Errorf("restore %s x%d: %w", mv.productID, mv.quantity, err))
				continue
			}
			c.metrics.Counter(MetricCompensations).Inc()
		}
		return errors.Join(errs...)
	})
	if err != nil {
		log.Error("stock compensation incomplete", zap.Error(err))
		return
	}
	log.Warn("sequential reservation failed, stock compensated",
		zap.Int("restored_products", len(applied)),
	)
}
