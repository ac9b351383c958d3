package refund

import (
	"context"
	"strings"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/order"

	"go.uber.org/zap"
)

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
}

type Service interface {
	Request(ctx context.Context, userID string, in RequestInput) (*Request, error)
	Approve(ctx context.Context, adminID, id, note string) (*Request, error)
	Reject(ctx context.Context, adminID, id, note string) (*Request, error)
	MarkProcessed(ctx context.Context, adminID, id, note string) (*Request, error)
	List(ctx context.Context, status string) ([]*Request, error)
	ListMine(ctx context.Context, userID string) ([]*Request, error)
}

type service struct {
	repo   Repository
	orders OrderReader
	now    func() time.Time
}

func NewService(repo Repository, orders OrderReader) Service {
	return &service{
		repo:   repo,
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Request(ctx context.Context, userID string, in RequestInput) (*Request, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Refund.Request"),
		zap.String("order_id", in.OrderID),
	)

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	o, err := s.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(userID) {
		return nil, order.ErrOrderNotFound
	}
	if o.PaymentStatus != order.PaymentPaid {
		return nil, ErrOrderNotPaid
	}
	if in.Amount <= 0 || in.Amount > order.MinorUnits(o.Total) {
		return nil, ErrInvalidAmount
	}

	committed, err := s.repo.SumCommitted(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if remaining := order.MinorUnits(o.Total) - committed; in.Amount > remaining {
		log.Info("refund over remaining amount",
			zap.Int64("amount", in.Amount),
			zap.Int64("remaining", remaining),
		)
		return nil, ErrRefundExceedsPaid
	}

	req := &Request{
		OrderID: o.ID,
		UserID:  userID,
		Amount:  in.Amount,
		Reason:  reason,
		Status:  StatusRequested,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	log.Info("refund requested", zap.String("refund_id", req.ID), zap.Int64("amount", req.Amount))
	return req, nil
}

func (s *service) Approve(ctx context.Context, adminID, id, note string) (*Request, error) {
	return s.transition(ctx, adminID, id, StatusApproved, note)
}

func (s *service) Reject(ctx context.Context, adminID, id, note string) (*Request, error) {
	return s.transition(ctx, adminID, id, StatusRejected, note)
}

// MarkProcessed records that the money went back to the customer out of
// band.
func (s *service) MarkProcessed(ctx context.Context, adminID, id, note string) (*Request, error) {
	return s.transition(ctx, adminID, id, StatusProcessed, note)
}

func (s *service) transition(ctx context.Context, adminID, id string, to Status, note string) (*Request, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Refund.transition"),
		zap.String("refund_id", id),
		zap.String("to", string(to)),
		zap.String("actor", adminID),
	)

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(to) {
		return nil, InvalidRefundTransitionError(current.Status, to)
	}

	var notePtr *string
	if n := strings.TrimSpace(note); n != "" {
		notePtr = &n
	}

	updated, err := s.repo.Transition(ctx, id, current.Status, to, adminID, notePtr, s.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Another admin moved it first.
		fresh, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		log.Warn("refund changed concurrently", zap.String("status", string(fresh.Status)))
		return nil, InvalidRefundTransitionError(fresh.Status, to)
	}

	log.Info("refund transitioned", zap.String("from", string(current.Status)))
	return updated, nil
}

func (s *service) List(ctx context.Context, status string) ([]*Request, error) {
	if strings.TrimSpace(status) == "" {
		return s.repo.List(ctx, nil)
	}
	st, ok := ParseStatus(status)
	if !ok {
		return nil, ErrInvalidStatusFilter
	}
	return s.repo.List(ctx, &st)
}

func (s *service) ListMine(ctx context.Context, userID string) ([]*Request, error) {
	return s.repo.ListByUser(ctx, userID)
}
