package data

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup when migrations are enabled.
//
// job_history carries row-level security keyed on the app.tenant_id setting.
// With no active tenant scope the policy predicate is NULL, so queries return
// zero rows rather than leaking another tenant's data.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
  id             text PRIMARY KEY,
  name           text NOT NULL,
  backend_type   text NOT NULL,
  active         boolean NOT NULL DEFAULT true,
  signing_secret text NOT NULL,
  credentials    text NOT NULL DEFAULT '',
  preferences    jsonb NOT NULL DEFAULT '{}'::jsonb,
  ticket_id_expr text NOT NULL DEFAULT 'ticket.id',
  created_at     timestamptz NOT NULL DEFAULT now(),
  updated_at     timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
  correlation_id     uuid PRIMARY KEY,
  tenant_id          text NOT NULL REFERENCES tenants(id),
  external_ticket_id text NOT NULL,
  status             text NOT NULL DEFAULT 'pending',
  priority           integer NOT NULL DEFAULT 0,
  raw_payload        jsonb NOT NULL,
  received_at        timestamptz NOT NULL,
  scheduled_at       timestamptz NOT NULL DEFAULT now(),
  started_at         timestamptz,
  completed_at       timestamptz,
  retry_count        integer NOT NULL DEFAULT 0,
  max_retries        integer NOT NULL DEFAULT 3,
  last_error         text,
  lease_expires_at   timestamptz,
  created_at         timestamptz NOT NULL DEFAULT now(),
  updated_at         timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS jobs_tenant_idx ON jobs (tenant_id);
CREATE INDEX IF NOT EXISTS jobs_reserve_idx ON jobs (status, scheduled_at, priority);
CREATE UNIQUE INDEX IF NOT EXISTS jobs_tenant_ticket_active_idx
  ON jobs (tenant_id, external_ticket_id)
  WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS job_history (
  correlation_id          uuid PRIMARY KEY,
  tenant_id               text NOT NULL REFERENCES tenants(id),
  status                  text NOT NULL DEFAULT 'pending',
  started_at              timestamptz,
  completed_at            timestamptz,
  context_nodes_succeeded integer NOT NULL DEFAULT 0,
  context_nodes_failed    integer NOT NULL DEFAULT 0,
  synthesis_mode          text NOT NULL DEFAULT '',
  error_message           text,
  processing_time_ms      bigint NOT NULL DEFAULT 0,
  created_at              timestamptz NOT NULL DEFAULT now(),
  updated_at              timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS job_history_tenant_idx ON job_history (tenant_id);

ALTER TABLE job_history ENABLE ROW LEVEL SECURITY;
ALTER TABLE job_history FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS job_history_tenant_isolation ON job_history;
CREATE POLICY job_history_tenant_isolation ON job_history
  USING (tenant_id = current_setting('app.tenant_id', true))
  WITH CHECK (tenant_id = current_setting('app.tenant_id', true));
`

// RunMigrations applies the engine schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
