package tx_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/db/tx"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "tx.sqlite"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return db
}

func insert(ctx context.Context, db *sqlx.DB, id string) error {
	q := tx.GetTransactional(ctx, db)
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO items (id) VALUES (?)`), id)
	return err
}

func count(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM items`))
	return n
}

func TestInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("Commits on success", func(t *testing.T) {
		db := newTestDB(t)
		err := tx.InTransaction(ctx, db, func(ctx context.Context) error {
			_, ok := tx.TransactionFromContext(ctx)
			assert.True(t, ok)
			return insert(ctx, db, "a")
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("Rolls back on error", func(t *testing.T) {
		db := newTestDB(t)
		boom := errors.New("boom")
		err := tx.InTransaction(ctx, db, func(ctx context.Context) error {
			require.NoError(t, insert(ctx, db, "a"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, count(t, db))
	})

	t.Run("Nested calls join the outer transaction", func(t *testing.T) {
		db := newTestDB(t)
		err := tx.InTransaction(ctx, db, func(ctx context.Context) error {
			outer, _ := tx.TransactionFromContext(ctx)
			return tx.InTransaction(ctx, db, func(ctx context.Context) error {
				inner, _ := tx.TransactionFromContext(ctx)
				assert.Same(t, outer, inner)
				return insert(ctx, db, "a")
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("Rolls back and re-panics", func(t *testing.T) {
		db := newTestDB(t)
		assert.Panics(t, func() {
			_ = tx.InTransaction(ctx, db, func(ctx context.Context) error {
				_ = insert(ctx, db, "a")
				panic("boom")
			})
		})
		assert.Equal(t, 0, count(t, db))
	})
}
