// Package pgxutil holds small helpers shared by the pgx-backed repositories.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TxConfig groups parameters for WithTx.
type TxConfig struct {
	Opts *sql.TxOptions
	Fn   func(*sql.Tx) error
}

// WithTx runs the given function within a database/sql transaction, rolling
// back on error and committing otherwise.
func WithTx(ctx context.Context, db *sql.DB, cfg TxConfig) (err error) {
	tx, err := db.BeginTx(ctx, cfg.Opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()
	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
