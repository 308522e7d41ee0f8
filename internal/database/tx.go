package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrStorageFailure is returned when a transient storage error persists after retries
	ErrStorageFailure = errors.New("storage failure")
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
)

// WithinTx runs fn inside a transaction, retrying the whole transaction on transient errors.
// fn may run more than once and must only touch state through tx.
func (db *DB) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return db.retry(ctx, func() error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// retry runs op with exponential backoff while it fails with a transient error
func (db *DB) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = db.retryBackoff
	b.MaxInterval = 20 * db.retryBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(db.maxRetries+1)))

	if err != nil && IsTransient(err) {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return err
}

// IsTransient reports whether err is worth retrying: lock contention,
// serialization conflicts or a dropped connection
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "53300", "57P03":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
