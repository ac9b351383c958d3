package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-be/internal/cart"
	"storefront-be/internal/db"
	"storefront-be/internal/product"
)

// memStore is an in-memory stand-in for the product, cart and order tables.
// Every method takes the store lock, so stock decrements are atomic
// compare-and-set operations just like the conditional UPDATE.
type memStore struct {
	mu       sync.Mutex
	products map[string]*product.Product
	carts    map[string][]cart.Item
	orders   map[string]*Order

	insertErr     error
	clearErr      error
	incrementErr  error
	failDecrement map[string]bool
	decrementErr  error
	increments    int
	nextItem      int

	// decremented and incremented record product:qty in call order.
	decremented []string
	incremented []string
}

func newMemStore() *memStore {
	return &memStore{
		products:      make(map[string]*product.Product),
		carts:         make(map[string][]cart.Item),
		orders:        make(map[string]*Order),
		failDecrement: make(map[string]bool),
	}
}

func (m *memStore) addProduct(id, name string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = &product.Product{ID: id, Name: name, Slug: name, SKU: "SKU-" + id, Stock: stock, IsActive: true}
}

func (m *memStore) addCartItem(userID, productID string, qty int, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItem++
	m.carts[userID] = append(m.carts[userID], cart.Item{
		ID:            fmt.Sprintf("%s-%d", userID, m.nextItem),
		ProductID:     productID,
		Quantity:      qty,
		PriceSnapshot: price,
		CreatedAt:     time.Now(),
	})
}

func (m *memStore) stockOf(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) cartLen(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[userID])
}

func (m *memStore) setStatus(id string, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = st
}

// cart.Repository / CartReader / CartClearer

func (m *memStore) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]cart.Item(nil), m.carts[userID]...)
	return &cart.Cart{UserID: userID, Items: items}, nil
}

func (m *memStore) Clear(ctx context.Context, q db.Querier, userID string, itemIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return 0, m.clearErr
	}
	drop := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = true
	}
	var n int64
	kept := m.carts[userID][:0:0]
	for _, it := range m.carts[userID] {
		if drop[it.ID] {
			n++
			continue
		}
		kept = append(kept, it)
	}
	m.carts[userID] = kept
	return n, nil
}

// product.Repository

func (m *memStore) GetByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *memStore) DecrementStock(ctx context.Context, q db.Querier, productID string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDecrement[productID] {
		return false, errors.New("decrement failed")
	}
	if m.decrementErr != nil {
		return false, m.decrementErr
	}
	m.decremented = append(m.decremented, fmt.Sprintf("%s:%d", productID, qty))
	p, ok := m.products[productID]
	if !ok || !p.Orderable() || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (m *memStore) IncrementStock(ctx context.Context, q db.Querier, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.increments++
	m.incremented = append(m.incremented, fmt.Sprintf("%s:%d", productID, qty))
	if p, ok := m.products[productID]; ok {
		p.Stock += qty
	}
	return nil
}

// Repository

func (m *memStore) Insert(ctx context.Context, q db.Querier, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (m *memStore) MarkCancelled(ctx context.Context, q db.Querier, id, actor string, reason *string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != StatusPending || o.CancelledAt != nil {
		return false, nil
	}
	o.Status = StatusCancelled
	o.CancelledAt = &at
	o.CancelledBy = &actor
	o.CancelReason = reason
	return true, nil
}

func (m *memStore) UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.PaymentStatus == PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = upd.Status
	if o.PaidAt == nil {
		o.PaidAt = upd.PaidAt
	}
	return true, nil
}

// fakeRunner hands a nil Querier to fn; memStore ignores it.
type fakeRunner struct {
	mode  db.TxMode
	calls int
	mu    sync.Mutex
}

func (r *fakeRunner) Run(ctx context.Context, fn func(q db.Querier) error) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return fn(nil)
}

func (r *fakeRunner) Mode() db.TxMode { return r.mode }

type fixture struct {
	store       *memStore
	runner      *fakeRunner
	coordinator *Coordinator
	svc         Service
}

func newFixture(mode db.TxMode, opts ...CoordinatorOption) *fixture {
	store := newMemStore()
	runner := &fakeRunner{mode: mode}
	coordinator := NewCoordinator(runner, store, store, store, opts...)
	svc := NewService(
		store,
		NewSnapshotResolver(store, store),
		coordinator,
		NewCompensator(runner, store, store),
	)
	return &fixture{store: store, runner: runner, coordinator: coordinator, svc: svc}
}

var validInput = CreateOrderInput{Address: "Kathmandu, Ward 4", PaymentMethod: "cod"}
