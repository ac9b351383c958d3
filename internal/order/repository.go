package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// Insert writes the order and its lines in a single statement.
	Insert(ctx context.Context, q db.Querier, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// MarkCancelled flips a pending, not yet cancelled order to cancelled.
	// It reports false when the guard no longer holds.
	MarkCancelled(ctx context.Context, q db.Querier, id, actor string, reason *string, at time.Time) (bool, error)
	// UpdatePayment applies a payment-axis write unless the order is
	// already paid. It reports false when nothing was written.
	UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, user_id, address, payment_method, subtotal, shipping_fee, total,
	status, payment_status, payment_gateway, payment_ref, payment_meta,
	paid_at, cancelled_at, cancelled_by, cancel_reason, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, q db.Querier, o *Order) error {
	n := len(o.Items)
	ids := make([]string, n)
	positions := make([]int64, n)
	productIDs := make([]string, n)
	names := make([]string, n)
	slugs := make([]string, n)
	skus := make([]string, n)
	images := make([]sql.NullString, n)
	quantities := make([]int64, n)
	prices := make([]float64, n)

	for i, it := range o.Items {
		ids[i] = uuid.NewString()
		positions[i] = int64(i)
		productIDs[i] = it.ProductID
		names[i] = it.Name
		slugs[i] = it.Slug
		skus[i] = it.SKU
		if it.ImageURL != nil {
			images[i] = sql.NullString{String: *it.ImageURL, Valid: true}
		}
		quantities[i] = int64(it.Quantity)
		prices[i] = it.PriceSnapshot
	}

	_, err := q.ExecContext(ctx, `
		WITH new_order AS (
			INSERT INTO orders (
				id, user_id, address, payment_method, subtotal, shipping_fee, total,
				status, payment_status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING id
		)
		INSERT INTO order_items (
			id, order_id, position, product_id, name, slug, sku, image_url, quantity, price_snapshot
		)
		SELECT item.id, new_order.id, item.position, item.product_id, item.name,
		       item.slug, item.sku, item.image_url, item.quantity, item.price_snapshot
		FROM new_order
		CROSS JOIN unnest(
			$11::uuid[], $12::int[], $13::uuid[], $14::text[], $15::text[],
			$16::text[], $17::text[], $18::int[], $19::numeric[]
		) AS item(id, position, product_id, name, slug, sku, image_url, quantity, price_snapshot)
	`,
		o.ID, o.UserID, o.Address, o.PaymentMethod, o.Subtotal, o.ShippingFee, o.Total,
		o.Status, o.PaymentStatus, o.CreatedAt,
		pq.Array(ids), pq.Array(positions), pq.Array(productIDs), pq.Array(names), pq.Array(slugs),
		pq.Array(skus), pq.Array(images), pq.Array(quantities), pq.Array(prices),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*Order
		ids    []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return []*Order{}, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}
	return orders, nil
}

func (r *repository) itemsFor(ctx context.Context, orderIDs []string) (map[string][]LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, slug, sku, image_url, quantity, price_snapshot
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      LineItem
		)
		if err := rows.Scan(
			&orderID, &it.ProductID, &it.Name, &it.Slug, &it.SKU,
			&it.ImageURL, &it.Quantity, &it.PriceSnapshot,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return out, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrOrderNotFound
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) MarkCancelled(ctx context.Context, q db.Querier, id, actor string, reason *string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = 'cancelled',
		    cancelled_at = $1,
		    cancelled_by = $2,
		    cancel_reason = $3,
		    updated_at = $1
		WHERE id = $4
		  AND status = 'pending'
		  AND cancelled_at IS NULL
	`, at, actor, reason, id)
	if err != nil {
		return false, fmt.Errorf("mark order cancelled: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order cancelled rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *repository) UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdatePayment"),
		zap.String("order_id", id),
	)

	var meta any
	if len(upd.Meta) > 0 {
		meta = []byte(upd.Meta)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    payment_gateway = COALESCE(NULLIF($2, ''), payment_gateway),
		    payment_ref = COALESCE(NULLIF($3, ''), payment_ref),
		    payment_meta = COALESCE($4::jsonb, payment_meta),
		    paid_at = COALESCE(paid_at, $5),
		    updated_at = NOW()
		WHERE id = $6
		  AND payment_status <> 'paid'
	`, upd.Status, upd.Gateway, upd.Ref, meta, upd.PaidAt, id)
	if err != nil {
		log.Error("failed to update payment", zap.Error(err))
		return false, fmt.Errorf("update order payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order payment rows affected: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*Order, error) {
	var (
		o    Order
		meta []byte
	)
	if err := s.Scan(
		&o.ID, &o.UserID, &o.Address, &o.PaymentMethod,
		&o.Subtotal, &o.ShippingFee, &o.Total,
		&o.Status, &o.PaymentStatus, &o.Gateway, &o.PaymentRef, &meta,
		&o.PaidAt, &o.CancelledAt, &o.CancelledBy, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		o.PaymentMeta = json.RawMessage(meta)
	}
	return &o, nil
}
