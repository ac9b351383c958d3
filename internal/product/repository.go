package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrLockConflict reports that the database aborted a stock update on a
// deadlock or serialization failure.
var ErrLockConflict = errors.New("stock update lost a lock conflict")

// lockConflict maps deadlock_detected and serialization_failure to
// ErrLockConflict and passes other errors through.
func lockConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == "40P01" || pqErr.Code == "40001") {
		return ErrLockConflict
	}
	return err
}

// Repository is the product-stock store. Stock is only ever changed through
// DecrementStock (conditional) and IncrementStock (compensation).
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
	DecrementStock(ctx context.Context, q db.Querier, productID string, qty int) (bool, error)
	IncrementStock(ctx context.Context, q db.Querier, productID string, qty int) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug, sku, image_url, price, discount_price,
		       stock, is_active, is_deleted, updated_at
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Slug,
			&p.SKU,
			&p.ImageURL,
			&p.Price,
			&p.DiscountPrice,
			&p.Stock,
			&p.IsActive,
			&p.IsDeleted,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = &p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return out, nil
}

// DecrementStock subtracts qty only while the row still has enough stock
// and is orderable at write time. It returns false when the predicate no
// longer holds.
func (r *repository) DecrementStock(ctx context.Context, q db.Querier, productID string, qty int) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2
		  AND stock >= $1
		  AND is_active = TRUE
		  AND is_deleted = FALSE
	`, qty, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", lockConflict(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock rows affected: %w", err)
	}

	return affected == 1, nil
}

// IncrementStock restores qty units. It has no upper bound check: it only
// ever returns units a prior conditional decrement removed.
func (r *repository) IncrementStock(ctx context.Context, q db.Querier, productID string, qty int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2
	`, qty, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", lockConflict(err))
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		logger.FromCtx(ctx).Warn("stock increment matched no product",
			zap.String("layer", "repository"),
			zap.String("product_id", productID),
			zap.Int("quantity", qty),
		)
	}

	return nil
}
