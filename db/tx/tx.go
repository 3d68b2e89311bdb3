package tx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"reminderbot/core/log"
)

type contextKey string

const txContextKey contextKey = "database_transaction"

// WithTransaction stores a transaction in the context
func WithTransaction(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey, tx)
}

// TransactionFromContext extracts a transaction from the context
func TransactionFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(*sqlx.Tx)
	return tx, ok
}

// Transactional is implemented by both *sqlx.DB and *sqlx.Tx
type Transactional interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	// Rebind converts '?' placeholders to the driver's bindvar style
	Rebind(query string) string
}

// GetTransactional returns the context's transaction if there is one, otherwise db
func GetTransactional(ctx context.Context, db *sqlx.DB) Transactional {
	if tx, ok := TransactionFromContext(ctx); ok {
		return tx
	}
	return db
}

// InTransaction runs fn inside a transaction carried by the context passed to it.
// Nested calls join the outer transaction.
func InTransaction(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context) error) (err error) {
	if _, ok := TransactionFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("❌ Transaction panic detected, rolling back: %v", r)
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(WithTransaction(ctx, tx)); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
