package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ticketwise/enhancer/internal/data/pgxutil"
	"github.com/ticketwise/enhancer/internal/errors"
)

// ErrTenantScopeRequired is returned when a tenant-scoped operation is
// attempted without a tenant id. The default is fail-closed: no query
// against tenant-owned tables executes without an active scope.
var ErrTenantScopeRequired = errors.Validation("tenant scope is required")

// ScopeFactory produces per-operation tenant scopes. Every transaction it
// opens sets the app.tenant_id GUC with SET LOCAL, which the row-level
// security policies on tenant-owned tables key on. The setting dies with the
// transaction, so a scope can never leak across jobs sharing a pooled
// connection.
type ScopeFactory struct {
	db *sql.DB
}

// NewScopeFactory creates a ScopeFactory over the given database handle.
func NewScopeFactory(db *sql.DB) *ScopeFactory {
	return &ScopeFactory{db: db}
}

// WithTenant runs fn inside a transaction with the tenant scope established.
// An empty tenant id refuses before touching the database.
func (f *ScopeFactory) WithTenant(ctx context.Context, tenantID string, fn func(*sql.Tx) error) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantScopeRequired
	}
	return pgxutil.WithTx(ctx, f.db, pgxutil.TxConfig{
		Fn: func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
				return fmt.Errorf("set tenant scope: %w", err)
			}
			return fn(tx)
		},
	})
}
