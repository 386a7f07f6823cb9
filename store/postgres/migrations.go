package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Herald store. It can be
// registered with an external grove orchestrator instead of calling Migrate.
var Migrations = migrate.NewGroup("herald")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_herald_endpoints",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_endpoints (
    id                   TEXT PRIMARY KEY,
    tenant_id            TEXT NOT NULL,
    url                  TEXT NOT NULL,
    secret               TEXT NOT NULL,
    events               TEXT[] NOT NULL DEFAULT '{}',
    description          TEXT NOT NULL DEFAULT '',
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    consecutive_failures INT NOT NULL DEFAULT 0,
    last_triggered_at    TIMESTAMPTZ,
    headers              JSONB NOT NULL DEFAULT '{}',
    rate_limit           INT NOT NULL DEFAULT 0,
    metadata             JSONB NOT NULL DEFAULT '{}',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_herald_endpoints_tenant ON herald_endpoints (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_herald_endpoints_events ON herald_endpoints USING GIN (events) WHERE is_active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_endpoints`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_herald_attempts",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_attempts (
    event_id     TEXT PRIMARY KEY,
    endpoint_id  TEXT NOT NULL,
    tenant_id    TEXT NOT NULL,
    event_type   TEXT NOT NULL,
    success      BOOLEAN NOT NULL,
    status_code  INT NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    response     TEXT NOT NULL DEFAULT '',
    latency_ms   INT NOT NULL DEFAULT 0,
    attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_herald_attempts_endpoint ON herald_attempts (endpoint_id, attempted_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_attempts`)
				return err
			},
		},
	)
}
