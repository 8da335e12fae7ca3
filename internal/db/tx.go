package db

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"
)

// WithTransaction runs fn inside a transaction, rolling back when fn fails.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

var retryBaseBackoff = 50 * time.Millisecond

// WithRetry is WithTransaction that reruns fn after deadlocks, serialization
// failures and lock timeouts, up to maxRetries extra attempts.
func WithRetry(ctx context.Context, db *sql.DB, maxRetries int, fn func(*sql.Tx) error) error {
	backoff := retryBaseBackoff

	for attempt := 0; ; attempt++ {
		err := WithTransaction(ctx, db, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == maxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, err)
		}

		sleep := backoff
		if quarter := int64(backoff / 4); quarter > 0 {
			sleep += time.Duration(rand.Int64N(quarter))
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}
