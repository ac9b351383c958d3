package order

import (
	"context"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	Create(ctx context.Context, userID string, in CreateOrderInput) (*Order, error)
	Get(ctx context.Context, userID, orderID string) (*Order, error)
	ListMine(ctx context.Context, userID string) ([]*Order, error)
	Cancel(ctx context.Context, userID, orderID, reason string) (*Order, error)
	UpdateStatus(ctx context.Context, actorID, orderID, status string) (*Order, error)
}

type service struct {
	repo        Repository
	resolver    *SnapshotResolver
	coordinator *Coordinator
	compensator *Compensator
}

func NewService(repo Repository, resolver *SnapshotResolver, coordinator *Coordinator, compensator *Compensator) Service {
	return &service{
		repo:        repo,
		resolver:    resolver,
		coordinator: coordinator,
		compensator: compensator,
	}
}

func (s *service) Create(ctx context.Context, userID string, in CreateOrderInput) (*Order, error) {
	snap, err := s.resolver.Resolve(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	return s.coordinator.Reserve(ctx, userID, snap)
}

// Get returns the order only to its owner; anyone else sees not found.
func (s *service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(userID) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *service) ListMine(ctx context.Context, userID string) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Cancel(ctx context.Context, userID, orderID, reason string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Cancel"),
		zap.String("order_id", orderID),
	)

	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.CancelledAt != nil {
		log.Debug("order already cancelled")
		return o, nil
	}
	if o.Status != StatusPending {
		return nil, ErrNotCancellable
	}

	return s.cancel(ctx, o, userID, reason)
}

func (s *service) cancel(ctx context.Context, o *Order, actor, reason string) (*Order, error) {
	ok, err := s.compensator.Cancel(ctx, o, actor, reason)
	if err != nil {
		return nil, err
	}

	fresh, err := s.repo.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	// Lost a race: either another request cancelled it first, which is
	// fine, or it moved past pending.
	if !ok && fresh.CancelledAt == nil {
		return nil, ErrNotCancellable
	}
	return fresh, nil
}

// UpdateStatus is the admin override. Any of the five statuses is accepted;
// moves outside the normal flow are logged, not refused. Cancelling a
// pending order still goes through the compensator so stock comes back.
func (s *service) UpdateStatus(ctx context.Context, actorID, orderID, status string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateStatus"),
		zap.String("order_id", orderID),
		zap.String("actor", actorID),
	)

	next, ok := ParseStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if next == StatusCancelled && o.Status == StatusPending && o.CancelledAt == nil {
		return s.cancel(ctx, o, actorID, "")
	}

	if o.Status != next && !o.Status.CanTransition(next) {
		log.Warn("admin status change outside normal flow",
			zap.String("from", string(o.Status)),
			zap.String("to", string(next)),
		)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, next); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if anomalies := updated.Anomalies(); len(anomalies) > 0 {
		log.Warn("order state anomaly", zap.Strings("anomalies", anomalies))
	}
	return updated, nil
}
