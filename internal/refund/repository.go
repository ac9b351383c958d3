package refund

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is Postgres' SQLSTATE for a unique index conflict. The
// partial index on open refunds raises it for a second open request.
const uniqueViolation = "23505"

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, status *Status) ([]*Request, error)
	ListByUser(ctx context.Context, userID string) ([]*Request, error)
	// SumCommitted totals the amounts of every non-rejected refund on the
	// order.
	SumCommitted(ctx context.Context, orderID string) (int64, error)
	// Transition moves the refund from -> to and stamps the actor. It
	// returns nil, nil when the refund is no longer in from.
	Transition(ctx context.Context, id string, from, to Status, actor string, note *string, at time.Time) (*Request, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const refundColumns = `
	id, order_id, user_id, amount, reason, status, reviewed_by, reviewed_at,
	processed_by, processed_at, admin_note, created_at, updated_at`

func (r *repository) Create(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO refund_requests (id, order_id, user_id, amount, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, req.ID, req.OrderID, req.UserID, req.Amount, req.Reason, req.Status).
		Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrRefundOpen
		}
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRefundNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refund request: %w", err)
	}
	return req, nil
}

func (r *repository) List(ctx context.Context, status *Status) ([]*Request, error) {
	if status != nil {
		return r.query(ctx, `
			SELECT `+refundColumns+`
			FROM refund_requests
			WHERE status = $1
			ORDER BY created_at DESC, id DESC
		`, *status)
	}
	return r.query(ctx, `
		SELECT `+refundColumns+`
		FROM refund_requests
		ORDER BY created_at DESC, id DESC
	`)
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]*Request, error) {
	return r.query(ctx, `
		SELECT `+refundColumns+`
		FROM refund_requests
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (r *repository) SumCommitted(ctx context.Context, orderID string) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refund_requests
		WHERE order_id = $1 AND status <> $2
	`, orderID, StatusRejected).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum refund amounts: %w", err)
	}
	return total, nil
}

func (r *repository) Transition(ctx context.Context, id string, from, to Status, actor string, note *string, at time.Time) (*Request, error) {
	byColumn, atColumn := "reviewed_by", "reviewed_at"
	if to == StatusProcessed {
		byColumn, atColumn = "processed_by", "processed_at"
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE refund_requests
		SET status = $1,
		    %s = $2,
		    %s = $3,
		    admin_note = COALESCE($4, admin_note),
		    updated_at = $3
		WHERE id = $5 AND status = $6
		RETURNING `+refundColumns, byColumn, atColumn),
		to, actor, at, note, id, from,
	)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transition refund request: %w", err)
	}
	return req, nil
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]*Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	defer rows.Close()

	out := []*Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund requests: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(s rowScanner) (*Request, error) {
	var req Request
	if err := s.Scan(
		&req.ID, &req.OrderID, &req.UserID, &req.Amount, &req.Reason, &req.Status,
		&req.ReviewedBy, &req.ReviewedAt, &req.ProcessedBy, &req.ProcessedAt,
		&req.AdminNote, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
