package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

const maxCancelReasonRunes = 500

type OrderCanceller interface {
	MarkCancelled(ctx context.Context, q db.Querier, id, actor string, reason *string, at time.Time) (bool, error)
}

// Compensator cancels a pending order and puts its reserved stock back.
type Compensator struct {
	runner UnitRunner
	orders OrderCanceller
	stock  StockStore
	now    func() time.Time
}

func NewCompensator(runner UnitRunner, orders OrderCanceller, stock StockStore) *Compensator {
	return &Compensator{
		runner: runner,
		orders: orders,
		stock:  stock,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Cancel flips o to cancelled and returns each product's ordered quantity
// to stock, in product id order. It reports false, with no writes, when o
// is no longer a pending uncancelled order.
func (c *Compensator) Cancel(ctx context.Context, o *Order, actor, reason string) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "order"),
		zap.String("method", "Compensator.Cancel"),
		zap.String("order_id", o.ID),
		zap.String("actor", actor),
	)

	at := c.now()
	note := truncateReason(reason)
	cancelled := false

	err := c.runner.Run(ctx, func(q db.Querier) error {
		ok, err := c.orders.MarkCancelled(ctx, q, o.ID, actor, note, at)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cancelled = true

		var errs []error
		for _, mv := range stockMoves(o.Items) {
			if err := c.stock.IncrementStock(ctx, q, mv.productID, mv.quantity); err != nil {
				errs = append(errs, fmt.Errorf("restore %s x%d: %w", mv.productID, mv.quantity, err))
			}
		}
		return errors.Join(errs...)
	})
	if err != nil {
		if c.runner.Mode() == db.TxModeSequential && cancelled {
			log.Error("order cancelled but stock restore incomplete", zap.Error(err))
		}
		return false, err
	}

	if cancelled {
		if o.PaymentStatus == PaymentPaid {
			log.Warn("paid order cancelled, refund needs manual review")
		}
		log.Info("order cancelled", zap.Int("line_count", len(o.Items)))
	}
	return cancelled, nil
}

func truncateReason(reason string) *string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	if utf8.RuneCountInString(reason) > maxCancelReasonRunes {
		reason = string([]rune(reason)[:maxCancelReasonRunes])
	}
	return &reason
}
