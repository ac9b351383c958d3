package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orderID1 = "6f1c2a9e-3b1d-4c55-9d7e-0a4b5c6d7e81"
	orderID2 = "8a2d3b0f-4c2e-4d66-8e8f-1b5c6d7e8f92"
)

var orderRowColumns = []string{
	"id", "user_id", "address", "payment_method", "subtotal", "shipping_fee", "total",
	"status", "payment_status", "payment_gateway", "payment_ref", "payment_meta",
	"paid_at", "cancelled_at", "cancelled_by", "cancel_reason", "created_at", "updated_at",
}

var itemColumns = []string{
	"order_id", "product_id", "name", "slug", "sku", "image_url", "quantity", "price_snapshot",
}

func TestRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	img := "https://cdn/tea.png"
	o := &Order{
		ID: orderID1, UserID: "u1", Address: "Kathmandu", PaymentMethod: "cod",
		Subtotal: 50, Total: 50, Status: StatusPending, PaymentStatus: PaymentUnpaid,
		CreatedAt: time.Now(),
		Items: []LineItem{
			{ProductID: "p1", Name: "Tea", Slug: "tea", SKU: "T1", ImageURL: &img, Quantity: 2, PriceSnapshot: 10},
			{ProductID: "p2", Name: "Mug", Slug: "mug", SKU: "M1", Quantity: 1, PriceSnapshot: 30},
		},
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`WITH new_order AS \( INSERT INTO orders .* INSERT INTO order_items .* unnest\(`).
			WithArgs(
				orderID1, "u1", "Kathmandu", "cod", 50.0, 0.0, 50.0, "pending", "unpaid", sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 2))

		assert.NoError(t, repo.Insert(context.Background(), db, o))
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec(`WITH new_order AS`).WillReturnError(errors.New("fk violation"))

		err := repo.Insert(context.Background(), db, o)
		assert.ErrorContains(t, err, "insert order")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("WithItems", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT id, user_id, .* FROM orders WHERE id = \$1 AND deleted_at IS NULL`).
			WithArgs(orderID1).
			WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
				orderID1, "u1", "Kathmandu", "cod", 50.0, 0.0, 50.0,
				"pending", "initiated", "khalti", "pidx-1", []byte(`{"pidx":"pidx-1"}`),
				nil, nil, nil, nil, now, now,
			))
		mock.ExpectQuery(`SELECT order_id, product_id, .* FROM order_items WHERE order_id = ANY\(\$1\) ORDER BY order_id, position`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(orderID1, "p1", "Tea", "tea", "T1", "https://cdn/tea.png", 2, 10.0).
				AddRow(orderID1, "p2", "Mug", "mug", "M1", nil, 1, 30.0))

		o, err := repo.GetByID(ctx, orderID1)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, PaymentInitiated, o.PaymentStatus)
		assert.Equal(t, "pidx-1", *o.PaymentRef)
		assert.JSONEq(t, `{"pidx":"pidx-1"}`, string(o.PaymentMeta))
		assert.Nil(t, o.PaidAt)
		require.Len(t, o.Items, 2)
		assert.Equal(t, "https://cdn/tea.png", *o.Items[0].ImageURL)
		assert.Nil(t, o.Items[1].ImageURL)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders`).
			WithArgs(orderID2).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, orderID2)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("MalformedID", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM orders WHERE user_id = \$1 AND deleted_at IS NULL ORDER BY created_at DESC, id DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(orderID2, "u1", "A", "cod", 30.0, 0.0, 30.0, "shipped", "paid", "khalti", "pidx-2", nil, now, nil, nil, nil, now, now).
			AddRow(orderID1, "u1", "B", "cod", 20.0, 0.0, 20.0, "pending", "unpaid", nil, nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery(`FROM order_items`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow(orderID1, "p1", "Tea", "tea", "T1", nil, 2, 10.0).
			AddRow(orderID2, "p2", "Mug", "mug", "M1", nil, 1, 30.0))

	orders, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, orderID2, orders[0].ID)
	assert.NotNil(t, orders[0].PaidAt)
	assert.Len(t, orders[0].Items, 1)
	assert.Equal(t, "Tea", orders[1].Items[0].Name)

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery(`FROM orders WHERE user_id`).
			WithArgs("u9").
			WillReturnRows(sqlmock.NewRows(orderRowColumns))

		orders, err := repo.ListByUser(context.Background(), "u9")
		require.NoError(t, err)
		assert.NotNil(t, orders)
		assert.Empty(t, orders)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	query := `UPDATE orders SET status = \$1, updated_at = NOW\(\) WHERE id = \$2 AND deleted_at IS NULL`

	mock.ExpectExec(query).WithArgs("shipped", orderID1).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.UpdateStatus(context.Background(), orderID1, StatusShipped))

	mock.ExpectExec(query).WithArgs("shipped", orderID2).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), orderID2, StatusShipped), ErrOrderNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MarkCancelled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	at := time.Now()
	reason := "too slow"
	query := `UPDATE orders SET status = 'cancelled', .* WHERE id = \$4 AND status = 'pending' AND cancelled_at IS NULL`

	mock.ExpectExec(query).WithArgs(at, "u1", "too slow", orderID1).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.MarkCancelled(context.Background(), db, orderID1, "u1", &reason, at)
	assert.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(query).WithArgs(at, "u1", nil, orderID1).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.MarkCancelled(context.Background(), db, orderID1, "u1", nil, at)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdatePayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	query := `UPDATE orders SET payment_status = \$1, .* paid_at = COALESCE\(paid_at, \$5\), .* WHERE id = \$6 AND payment_status <> 'paid'`

	t.Run("Applied", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs("initiated", "khalti", "pidx-1", sqlmock.AnyArg(), nil, orderID1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.UpdatePayment(context.Background(), orderID1, PaymentUpdate{
			Status: PaymentInitiated, Gateway: "khalti", Ref: "pidx-1", Meta: []byte(`{"pidx":"pidx-1"}`),
		})
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AlreadyPaid", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.UpdatePayment(context.Background(), orderID1, PaymentUpdate{Status: PaymentFailed})
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
