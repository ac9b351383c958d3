package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"storefront-be/internal/db"
	"storefront-be/internal/metrics"
	"storefront-be/internal/product"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_TotalsAndCartCleared(t *testing.T) {
	f := newFixture(db.TxModeTransactional)
	f.store.addProduct("p1", "Tea", 5)
	f.store.addProduct("p2", "Mug", 5)
	f.store.addCartItem("u1", "p1", 2, 10)
	f.store.addCartItem("u1", "p2", 1, 30)

	o, err := f.svc.Create(context.Background(), "u1", validInput)
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, 50.0, o.Subtotal)
	assert.Equal(t, 0.0, o.ShippingFee)
	assert.Equal(t, 50.0, o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, 0, f.store.cartLen("u1"))
	assert.Equal(t, 3, f.store.stockOf("p1"))
	assert.Equal(t, 4, f.store.stockOf("p2"))

	stored, err := f.svc.Get(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, stored.Total)
}

func TestCreate_NoOversell(t *testing.T) {
	for _, mode := range []db.TxMode{db.TxModeTransactional, db.TxModeSequential} {
		t.Run(string(mode), func(t *testing.T) {
			const stock, attempts = 5, 40

			f := newFixture(mode)
			f.store.addProduct("p1", "Tea", stock)
			for i := 0; i < attempts; i++ {
				f.store.addCartItem(fmt.Sprintf("u%d", i), "p1", 1, 10)
			}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
			)
			start := make(chan struct{})
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(user string) {
					defer wg.Done()
					<-start
					_, err := f.svc.Create(context.Background(), user, validInput)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrStockChanged):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(fmt.Sprintf("u%d", i))
			}
			close(start)
			wg.Wait()

			assert.Equal(t, stock, successes)
			assert.Equal(t, attempts-stock, conflicts)
			assert.Equal(t, 0, f.store.stockOf("p1"))
		})
	}
}

func TestReserve_StockChangedAfterSnapshot(t *testing.T) {
	f := newFixture(db.TxModeTransactional)
	f.store.addProduct("p1", "Tea", 2)
	f.store.addCartItem("u1", "p1", 2, 10)

	snap, err := NewSnapshotResolver(f.store, f.store).Resolve(context.Background(), "u1", validInput)
	require.NoError(t, err)

	// Someone else buys one unit between snapshot and reservation.
	f.store.products["p1"].Stock = 1

	o, err := f.coordinator.Reserve(context.Background(), "u1", snap)
	assert.Nil(t, o)
	assert.ErrorIs(t, err, ErrStockChanged)
	assert.Contains(t, err.Error(), "Tea")
	assert.Equal(t, 400, apperrStatus(err))
	assert.Equal(t, 1, f.store.stockOf("p1"))
}

func TestReserve_TransactionalCartAlreadyConsumed(t *testing.T) {
	f := newFixture(db.TxModeTransactional)
	f.store.addProduct("p1", "Tea", 5)
	f.store.addCartItem("u1", "p1", 1, 10)

	snap, err := NewSnapshotResolver(f.store, f.store).Resolve(context.Background(), "u1", validInput)
	require.NoError(t, err)
	delete(f.store.carts, "u1")

	_, err = f.coordinator.Reserve(context.Background(), "u1", snap)
	assert.ErrorIs(t, err, ErrCartChanged)
	// Rollback is the runner's job; the coordinator does not compensate.
	assert.Zero(t, f.store.increments)
}

func TestReserve_SequentialCompensation(t *testing.T) {
	setup := func(opts ...CoordinatorOption) (*fixture, *Snapshot) {
		f := newFixture(db.TxModeSequential, opts...)
		f.store.addProduct("p1", "Tea", 5)
		f.store.addProduct("p2", "Mug", 5)
		f.store.addCartItem("u1", "p1", 2, 10)
		f.store.addCartItem("u1", "p2", 1, 30)
		snap, err := NewSnapshotResolver(f.store, f.store).Resolve(context.Background(), "u1", validInput)
		require.NoError(t, err)
		return f, snap
	}

	t.Run("InsertFailureRestoresStock", func(t *testing.T) {
		reg := metrics.NewRegistry()
		f, snap := setup(WithMetrics(reg))
		f.store.insertErr = errors.New("insert failed")

		_, err := f.coordinator.Reserve(context.Background(), "u1", snap)
		assert.Error(t, err)
		assert.Equal(t, 5, f.store.stockOf("p1"))
		assert.Equal(t, 5, f.store.stockOf("p2"))
		assert.Equal(t, uint64(2), reg.Snapshot()[MetricCompensations])
		assert.Equal(t, 2, f.store.cartLen("u1"))
	})

	t.Run("LaterDecrementFailureRestoresEarlierLines", func(t *testing.T) {
		f, snap := setup()
		f.store.products["p2"].Stock = 0

		_, err := f.coordinator.Reserve(context.Background(), "u1", snap)
		assert.ErrorIs(t, err, ErrStockChanged)
		assert.Equal(t, 5, f.store.stockOf("p1"))
		assert.Equal(t, 0, f.store.stockOf("p2"))
		assert.Equal(t, 1, f.store.increments)
	})

	t.Run("DisabledLeavesStockDecremented", func(t *testing.T) {
		f, snap := setup(WithFallbackCompensation(false))
		f.store.insertErr = errors.New("insert failed")

		_, err := f.coordinator.Reserve(context.Background(), "u1", snap)
		assert.Error(t, err)
		assert.Equal(t, 3, f.store.stockOf("p1"))
		assert.Equal(t, 4, f.store.stockOf("p2"))
		assert.Zero(t, f.store.increments)
	})

	t.Run("CartClearFailureKeepsOrder", func(t *testing.T) {
		f, snap := setup()
		f.store.clearErr = errors.New("clear failed")

		o, err := f.coordinator.Reserve(context.Background(), "u1", snap)
		require.NoError(t, err)
		assert.Equal(t, 50.0, o.Total)
		assert.Equal(t, 3, f.store.stockOf("p1"))
		assert.Zero(t, f.store.increments)
	})
}

func TestReserve_DecrementErrorPropagates(t *testing.T) {
	f := newFixture(db.TxModeTransactional)
	f.store.addProduct("p1", "Tea", 5)
	f.store.addCartItem("u1", "p1", 1, 10)
	f.store.failDecrement["p1"] = true

	_, err := f.svc.Create(context.Background(), "u1", validInput)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStockChanged)
}

func TestReserve_StockMovesSortedByProduct(t *testing.T) {
	f := newFixture(db.TxModeTransactional)
	f.store.addProduct("p1", "Tea", 5)
	f.store.addProduct("p2", "Mug", 5)
	f.store.addCartItem("u1", "p2", 1, 30)
	f.store.addCartItem("u1", "p1", 2, 10)
	f.store.addCartItem("u1", "p2", 2, 30)

	o, err := f.svc.Create(context.Background(), "u1", validInput)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1:2", "p2:3"}, f.store.decremented)
	assert.Equal(t, 3, f.store.stockOf("p1"))
	assert.Equal(t, 2, f.store.stockOf("p2"))
	// Line order is what the shopper saw.
	require.Len(t, o.Items, 3)
	assert.Equal(t, "p2", o.Items[0].ProductID)
	assert.Equal(t, "p1", o.Items[1].ProductID)
}

func TestReserve_LockConflictIsStockChanged(t *testing.T) {
	reg := metrics.NewRegistry()
	f := newFixture(db.TxModeTransactional, WithMetrics(reg))
	f.store.addProduct("p1", "Tea", 5)
	f.store.addCartItem("u1", "p1", 1, 10)
	f.store.decrementErr = fmt.Errorf("decrement stock: %w", product.ErrLockConflict)

	_, err := f.svc.Create(context.Background(), "u1", validInput)
	assert.ErrorIs(t, err, ErrStockChanged)
	assert.Contains(t, err.Error(), "Tea")
	assert.Equal(t, uint64(1), reg.Snapshot()[MetricStockConflicts])
	assert.Equal(t, 1, f.store.cartLen("u1"))
}

func TestReserve_ClearsOnlySnapshotLines(t *testing.T) {
	for _, mode := range []db.TxMode{db.TxModeTransactional, db.TxModeSequential} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(mode)
			f.store.addProduct("p1", "Tea", 5)
			f.store.addProduct("p2", "Mug", 5)
			f.store.addCartItem("u1", "p1", 1, 10)

			snap, err := NewSnapshotResolver(f.store, f.store).Resolve(context.Background(), "u1", validInput)
			require.NoError(t, err)

			// Added from another tab after the snapshot was priced.
			f.store.addCartItem("u1", "p2", 1, 30)

			_, err = f.coordinator.Reserve(context.Background(), "u1", snap)
			require.NoError(t, err)

			cart, err := f.store.GetByUser(context.Background(), "u1")
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)
			assert.Equal(t, "p2", cart.Items[0].ProductID)
			assert.Equal(t, 5, f.store.stockOf("p2"))
		})
	}
}

func TestReserve_TransactionalCartLinePartlyGone(t *testing.T) {
	f := newFixture(db.TxModeTransactional)
	f.store.addProduct("p1", "Tea", 5)
	f.store.addProduct("p2", "Mug", 5)
	f.store.addCartItem("u1", "p1", 1, 10)
	f.store.addCartItem("u1", "p2", 1, 30)

	snap, err := NewSnapshotResolver(f.store, f.store).Resolve(context.Background(), "u1", validInput)
	require.NoError(t, err)
	f.store.carts["u1"] = f.store.carts["u1"][:1]

	_, err = f.coordinator.Reserve(context.Background(), "u1", snap)
	assert.ErrorIs(t, err, ErrCartChanged)
}
