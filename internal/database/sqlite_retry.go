package database

import (
	"context"
	"database/sql"
	"math/rand"
	"strings"
	"time"
)

const (
	maxRetries = 50
	baseDelay  = 10 * time.Millisecond
	maxDelay   = 25 * time.Millisecond
)

// isRetryableError checks if the error is a retryable SQLite error
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "busy")
}

// retryDelay returns the backoff with up to 50% jitter for the attempt
func retryDelay(attempt int) time.Duration {
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryableExec executes a SQL statement with retry logic for lock conflicts
func (db *Database) retryableExec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.mainDB.ExecContext(ctx, query, args...)
		if !isRetryableError(err) {
			return result, err
		}
		if serr := sleepCtx(ctx, retryDelay(attempt)); serr != nil {
			return result, serr
		}
	}

	return result, err
}

// retryableQueryRowScan executes a QueryRow and Scan with retry logic
func (db *Database) retryableQueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err = db.mainDB.QueryRowContext(ctx, query, args...).Scan(dest...)
		if !isRetryableError(err) {
			return err
		}
		if serr := sleepCtx(ctx, retryDelay(attempt)); serr != nil {
			return serr
		}
	}

	return err
}
