package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medops-bknd/internal/config"
	"medops-bknd/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// New connects to Postgres and returns a Bun DB handle.
func New(dsn string, cfg *config.Config) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(120*time.Second),
		pgdriver.WithDialTimeout(15*time.Second),
		pgdriver.WithReadTimeout(120*time.Second),
		pgdriver.WithWriteTimeout(30*time.Second),
		// Startup params apply to every pooled connection, not just the first.
		pgdriver.WithConnParams(map[string]interface{}{
			"search_path":                         "app, public",
			"statement_timeout":                   "120s",
			"idle_in_transaction_session_timeout": "180s",
		}),
	)

	sqldb := sql.OpenDB(connector)
	db := bun.NewDB(sqldb, pgdialect.New())

	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(10)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	sqldb.SetConnMaxIdleTime(10 * time.Minute)

	if cfg.BunDebug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// notifyFunction publishes {table, op, row} on the given channel after each
// row write. Deletes carry the old row so consumers can drop it by key.
const notifyFunction = `
CREATE OR REPLACE FUNCTION app.notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(TG_ARGV[0], json_build_object(
		'table', TG_TABLE_NAME,
		'op', TG_OP,
		'row', row_to_json(COALESCE(NEW, OLD))
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS hospitals_status_idx ON app.hospitals (status)`,
	`CREATE INDEX IF NOT EXISTS capacity_logs_hospital_idx ON app.hospital_capacity_logs (hospital_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS dispatch_requests_status_idx ON app.dispatch_requests (status)`,
	`CREATE INDEX IF NOT EXISTS transfer_requests_status_idx ON app.transfer_requests (status)`,
	`CREATE INDEX IF NOT EXISTS staff_hospital_idx ON app.staff (hospital_id, department)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON app.notifications (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS queue_events_created_idx ON app.queue_events (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_user_idx ON app.refresh_tokens (user_id)`,
}

// EnsureSchema creates the app schema, its tables and the change triggers
// that feed channel. Safe to run on every boot.
func EnsureSchema(ctx context.Context, db *bun.DB, channel string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS app`); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
			return fmt.Errorf("create pgcrypto: %w", err)
		}

		for _, model := range models.All() {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("create table for %T: %w", model, err)
			}
		}
		for _, stmt := range indexes {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, notifyFunction); err != nil {
			return fmt.Errorf("create notify function: %w", err)
		}
		for _, table := range models.LiveTables {
			trigger := table + "_notify_change"
			if _, err := tx.ExecContext(ctx, `DROP TRIGGER IF EXISTS ? ON app.?`,
				bun.Ident(trigger), bun.Ident(table)); err != nil {
				return fmt.Errorf("drop trigger %s: %w", trigger, err)
			}
			if _, err := tx.ExecContext(ctx, `CREATE TRIGGER ? AFTER INSERT OR UPDATE OR DELETE ON app.?
				FOR EACH ROW EXECUTE FUNCTION app.notify_change(?)`,
				bun.Ident(trigger), bun.Ident(table), channel); err != nil {
				return fmt.Errorf("create trigger %s: %w", trigger, err)
			}
		}
		return nil
	})
}
