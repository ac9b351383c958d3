package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/order"

	"go.uber.org/zap"
)

// OrderStore is the slice of the order repository the adapter needs.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	UpdatePayment(ctx context.Context, id string, upd order.PaymentUpdate) (bool, error)
}

type Service interface {
	Initiate(ctx context.Context, userID, orderID string) (*InitiateResponse, error)
	Verify(ctx context.Context, userID, orderID, pidx string) (*order.Order, error)
	Logs(ctx context.Context, orderID string) ([]*Log, error)
}

type service struct {
	orders  OrderStore
	gateway Gateway
	logs    LogRepository
	now     func() time.Time
}

func NewService(orders OrderStore, gateway Gateway, logs LogRepository) Service {
	return &service{
		orders:  orders,
		gateway: gateway,
		logs:    logs,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) ownedOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrOrderIDRequired
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(userID) {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (s *service) Initiate(ctx context.Context, userID, orderID string) (*InitiateResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Payment.Initiate"),
		zap.String("order_id", orderID),
	)

	o, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == order.PaymentPaid {
		log.Info("order already paid, skipping gateway")
		return &InitiateResponse{AlreadyPaid: true}, nil
	}
	if o.Status != order.StatusPending {
		return nil, ErrNotPayable
	}

	amount := order.MinorUnits(o.Total)
	if amount < MinAmountPaisa {
		return nil, ErrInvalidAmount
	}

	res, err := s.gateway.Initiate(ctx, InitiateRequest{
		OrderID:     o.ID,
		OrderName:   "Order " + o.ID,
		AmountPaisa: amount,
	})
	if err != nil {
		s.appendLog(ctx, &Log{
			OrderID: o.ID, UserID: userID, Gateway: s.gateway.Name(),
			Action: LogActionInitiate, Status: "error", Amount: amount,
			Payload: errorPayload(err),
		})
		return nil, err
	}

	applied, err := s.orders.UpdatePayment(ctx, o.ID, order.PaymentUpdate{
		Status:  order.PaymentInitiated,
		Gateway: s.gateway.Name(),
		Ref:     res.Pidx,
		Meta:    res.Raw,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, &Log{
		OrderID: o.ID, UserID: userID, Gateway: s.gateway.Name(),
		Action: LogActionInitiate, Status: string(order.PaymentInitiated), Amount: amount,
		ExternalRef: &res.Pidx, Payload: res.Raw,
	})

	if !applied {
		// A concurrent verify marked it paid while we were at the gateway.
		log.Warn("order paid during initiation, new pidx discarded", zap.String("pidx", res.Pidx))
		return &InitiateResponse{AlreadyPaid: true}, nil
	}

	log.Info("payment initiated", zap.String("pidx", res.Pidx), zap.Int64("amount", amount))
	return &InitiateResponse{Pidx: res.Pidx, PaymentURL: res.PaymentURL}, nil
}

// Verify asks the gateway about pidx and records the outcome. An order that
// is already paid is returned as-is without another gateway call.
func (s *service) Verify(ctx context.Context, userID, orderID, pidx string) (*order.Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Payment.Verify"),
		zap.String("order_id", orderID),
	)

	o, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == order.PaymentPaid {
		return o, nil
	}

	pidx = strings.TrimSpace(pidx)
	if pidx == "" {
		return nil, ErrReferenceRequired
	}
	if o.PaymentRef == nil {
		return nil, ErrNotInitiated
	}

	// An order initiated more than once has several live pidx values; any
	// of them may be the one the customer actually paid.
	current := *o.PaymentRef == pidx
	if !current {
		issued, err := s.logs.HasReference(ctx, o.ID, pidx)
		if err != nil {
			return nil, err
		}
		if !issued {
			log.Warn("verify called with foreign pidx", zap.String("pidx", pidx))
			return nil, ErrReferenceMismatch
		}
	}

	expected := order.MinorUnits(o.Total)
	res, err := s.gateway.Lookup(ctx, pidx)
	if err != nil {
		s.appendLog(ctx, &Log{
			OrderID: o.ID, UserID: userID, Gateway: s.gateway.Name(),
			Action: LogActionVerify, Status: "error", Amount: expected,
			ExternalRef: &pidx, Payload: errorPayload(err),
		})
		return nil, err
	}

	mapped := mapLookupStatus(res.Status)
	if mapped == order.PaymentPaid && res.TotalAmount != expected {
		log.Error("gateway amount differs from order total",
			zap.Int64("expected", expected),
			zap.Int64("paid", res.TotalAmount),
		)
		s.appendLog(ctx, &Log{
			OrderID: o.ID, UserID: userID, Gateway: s.gateway.Name(),
			Action: LogActionVerify, Status: "amount_mismatch", Amount: res.TotalAmount,
			ExternalRef: &pidx, Payload: res.Raw,
		})
		return nil, ErrAmountMismatch
	}

	if !current && mapped != order.PaymentPaid {
		// A superseded attempt that did not complete must not overwrite the
		// state of the newer one.
		s.appendLog(ctx, &Log{
			OrderID: o.ID, UserID: userID, Gateway: s.gateway.Name(),
			Action: LogActionVerify, Status: string(mapped), Amount: res.TotalAmount,
			ExternalRef: &pidx, Payload: res.Raw,
		})
		log.Info("superseded payment attempt not completed",
			zap.String("pidx", pidx),
			zap.String("upstream_status", res.Status),
		)
		return nil, PaymentIncompleteError(res.Status)
	}

	upd := order.PaymentUpdate{
		Status:  mapped,
		Gateway: s.gateway.Name(),
		Ref:     pidx,
		Meta:    res.Raw,
	}
	if mapped == order.PaymentPaid {
		now := s.now()
		upd.PaidAt = &now
	}

	if _, err := s.orders.UpdatePayment(ctx, o.ID, upd); err != nil {
		return nil, err
	}

	s.appendLog(ctx, &Log{
		OrderID: o.ID, UserID: userID, Gateway: s.gateway.Name(),
		Action: LogActionVerify, Status: string(mapped), Amount: res.TotalAmount,
		ExternalRef: &pidx, Payload: res.Raw,
	})

	fresh, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	// A concurrent verify may have won; its paid state stands.
	if fresh.PaymentStatus == order.PaymentPaid {
		if fresh.Status == order.StatusCancelled {
			log.Warn("payment completed on a cancelled order, refund needs manual review")
		}
		log.Info("payment verified",
			zap.String("pidx", pidx),
			zap.Stringp("transaction_id", res.TransactionID),
		)
		return fresh, nil
	}

	log.Info("payment not completed", zap.String("upstream_status", res.Status))
	return nil, PaymentIncompleteError(res.Status)
}

func (s *service) Logs(ctx context.Context, orderID string) ([]*Log, error) {
	return s.logs.ListByOrder(ctx, orderID)
}

// appendLog never fails the caller; a lost audit row is only logged.
func (s *service) appendLog(ctx context.Context, l *Log) {
	if err := s.logs.Append(ctx, l); err != nil {
		logger.FromCtx(ctx).Error("failed to append payment log",
			zap.String("order_id", l.OrderID),
			zap.String("action", l.Action),
			zap.Error(err),
		)
	}
}

// mapLookupStatus maps Khalti's lookup vocabulary onto the payment axis.
func mapLookupStatus(upstream string) order.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(upstream)) {
	case khaltiStatusCompleted:
		return order.PaymentPaid
	case khaltiStatusPending:
		return order.PaymentInitiated
	default:
		return order.PaymentFailed
	}
}

func errorPayload(err error) []byte {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
