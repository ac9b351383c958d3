package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so repository writes
// can run inside or outside a transaction unchanged.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxMode is the store's multi-statement transaction capability. It is
// fixed at startup; it is never inferred from runtime errors.
type TxMode string

const (
	TxModeTransactional TxMode = "transactional"
	TxModeSequential    TxMode = "sequential"
)

func ParseTxMode(s string) (TxMode, error) {
	switch TxMode(strings.ToLower(strings.TrimSpace(s))) {
	case TxModeTransactional, "":
		return TxModeTransactional, nil
	case TxModeSequential:
		return TxModeSequential, nil
	default:
		return "", fmt.Errorf("unknown DB_TX_MODE %q (use transactional or sequential)", s)
	}
}

// Runner executes a unit of work either inside one transaction or
// statement by statement against the pool, depending on its mode.
type Runner struct {
	db   *sql.DB
	mode TxMode
}

func NewRunner(db *sql.DB, mode TxMode) *Runner {
	return &Runner{db: db, mode: mode}
}

func (r *Runner) Mode() TxMode { return r.mode }

// Run calls fn with a Querier. In transactional mode every statement fn
// issues commits or rolls back together; in sequential mode each statement
// is applied immediately and nothing is rolled back on failure.
func (r *Runner) Run(ctx context.Context, fn func(q Querier) error) error {
	if r.mode == TxModeSequential {
		return fn(r.db)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "db"),
		zap.String("method", "Runner.Run"),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			} else {
				log.Debug("transaction rolled back")
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}

	committed = true
	return nil
}
