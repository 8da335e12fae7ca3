package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := WithTransaction(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `UPDATE orders SET status = 'processing'`)
			return err
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := WithTransaction(ctx, db, func(tx *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Begin failure", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("no conn"))

		err := WithTransaction(ctx, db, func(tx *sql.Tx) error { return nil })
		assert.ErrorContains(t, err, "begin transaction")
	})
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorClassConflict, ClassifyError(&pq.Error{Code: "23505"}))
	assert.Equal(t, ErrorClassTransient, ClassifyError(&pq.Error{Code: "40001"}))
	assert.Equal(t, ErrorClassTransient, ClassifyError(&pq.Error{Code: "40P01"}))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(&pq.Error{Code: "23503"}))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(errors.New("plain")))

	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))

	assert.True(t, IsRetryable(&pq.Error{Code: "40P01"}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))
}

func TestViolatedConstraint(t *testing.T) {
	assert.Equal(t, "orders_pkey", ViolatedConstraint(&pq.Error{Code: "23505", Constraint: "orders_pkey"}))
	assert.Equal(t, "", ViolatedConstraint(&pq.Error{Code: "23503", Constraint: "order_items_order_id_fkey"}))
	assert.Equal(t, "", ViolatedConstraint(errors.New("plain")))
}

func TestWithRetry(t *testing.T) {
	defer func(d time.Duration) { retryBaseBackoff = d }(retryBaseBackoff)
	retryBaseBackoff = time.Millisecond

	ctx := context.Background()

	t.Run("Retries deadlock then commits", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err = WithRetry(ctx, db, 3, func(tx *sql.Tx) error {
			calls++
			if calls == 1 {
				return &pq.Error{Code: "40P01"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Permanent error is not retried", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err = WithRetry(ctx, db, 3, func(tx *sql.Tx) error {
			calls++
			return &pq.Error{Code: "23505"}
		})
		assert.True(t, IsUniqueViolation(err))
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Gives up after max retries", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		for i := 0; i < 3; i++ {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}

		calls := 0
		err = WithRetry(ctx, db, 2, func(tx *sql.Tx) error {
			calls++
			return &pq.Error{Code: "40001"}
		})
		assert.ErrorContains(t, err, "max retries (2) exceeded")
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 3, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
