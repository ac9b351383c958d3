package cart

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-be/internal/db"
	"storefront-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the cart read/clear store used at checkout.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	// Clear removes the listed lines of the user's cart and reports how
	// many rows were deleted.
	Clear(ctx context.Context, q db.Querier, userID string, itemIDs []string) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByUser(ctx context.Context, userID string) (*Cart, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetByUser"),
		zap.String("user_id", userID),
	)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, price_snapshot, created_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		log.Error("failed to query cart items", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrFailedGetCart, err)
	}
	defer rows.Close()

	c := &Cart{UserID: userID}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.PriceSnapshot, &it.CreatedAt); err != nil {
			log.Error("failed to scan cart item", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrFailedGetCart, err)
		}
		c.Items = append(c.Items, it)
	}

	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrFailedGetCart, err)
	}

	log.Debug("cart loaded", zap.Int("item_count", len(c.Items)))
	return c, nil
}

func (r *repository) Clear(ctx context.Context, q db.Querier, userID string, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	res, err := q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND id = ANY($2)
	`, userID, pq.Array(itemIDs))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailedClearCart, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailedClearCart, err)
	}
	return n, nil
}
