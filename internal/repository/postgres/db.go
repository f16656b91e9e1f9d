package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// Open открывает пул database/sql поверх pgx и проверяет соединение.
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id              UUID PRIMARY KEY,
	trace_id        TEXT NOT NULL,
	limit_key       TEXT NOT NULL,
	agent_id        TEXT NOT NULL,
	tool            TEXT NOT NULL,
	provider        TEXT,
	workflow_id     TEXT,
	stage           TEXT,
	status          TEXT NOT NULL,
	reason          TEXT,
	mode            TEXT NOT NULL,
	risk_score      INT NOT NULL DEFAULT 0,
	pii_types       JSONB,
	upstream_status INT,
	cost            DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms     BIGINT NOT NULL,
	error           TEXT,
	timestamp       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_logs_agent_ts ON audit_logs (agent_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'active',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS policy_sets (
	name           TEXT PRIMARY KEY,
	default_effect TEXT NOT NULL DEFAULT 'deny',
	rules          JSONB NOT NULL DEFAULT '[]',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate создает таблицы шлюза, если их нет.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
