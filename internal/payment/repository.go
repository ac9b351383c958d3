package payment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// LogRepository appends gateway interactions. Rows are never updated.
type LogRepository interface {
	Append(ctx context.Context, l *Log) error
	ListByOrder(ctx context.Context, orderID string) ([]*Log, error)
	// HasReference reports whether ref was issued to orderID by a
	// successful initiate.
	HasReference(ctx context.Context, orderID, ref string) (bool, error)
}

type logRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Append(ctx context.Context, l *Log) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	var payload any
	if len(l.Payload) > 0 {
		payload = []byte(l.Payload)
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payment_logs (
			id, order_id, user_id, gateway, action, status, amount, external_ref, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		RETURNING created_at
	`,
		l.ID, l.OrderID, l.UserID, l.Gateway, l.Action, l.Status, l.Amount, l.ExternalRef, payload,
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("append payment log: %w", err)
	}
	return nil
}

func (r *logRepository) ListByOrder(ctx context.Context, orderID string) ([]*Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, gateway, action, status, amount, external_ref, payload, created_at
		FROM payment_logs
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment logs: %w", err)
	}
	defer rows.Close()

	logs := []*Log{}
	for rows.Next() {
		var (
			l       Log
			payload []byte
		)
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.UserID, &l.Gateway, &l.Action, &l.Status,
			&l.Amount, &l.ExternalRef, &payload, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment log: %w", err)
		}
		if len(payload) > 0 {
			l.Payload = payload
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment logs: %w", err)
	}
	return logs, nil
}

func (r *logRepository) HasReference(ctx context.Context, orderID, ref string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_logs
			WHERE order_id = $1 AND action = $2 AND external_ref = $3
		)
	`, orderID, LogActionInitiate, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment reference: %w", err)
	}
	return exists, nil
}
