package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= 4 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS nodes (
				node_id TEXT PRIMARY KEY,
				long_name TEXT,
				short_name TEXT,
				last_heard_at INTEGER,
				rssi INTEGER NULL,
				snr REAL NULL,
				updated_at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS nodes_last_heard_at_idx ON nodes(last_heard_at DESC);`,
			`CREATE TABLE IF NOT EXISTS chats (
				chat_key TEXT PRIMARY KEY,
				type INTEGER NOT NULL,
				title TEXT NOT NULL,
				last_sent_by_me_at INTEGER NULL,
				updated_at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS chats_last_sent_by_me_idx ON chats(last_sent_by_me_at DESC);`,
			`CREATE TABLE IF NOT EXISTS messages (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				chat_key TEXT NOT NULL,
				device_message_id TEXT NULL,
				direction INTEGER NOT NULL,
				body TEXT NOT NULL,
				status INTEGER NOT NULL,
				at INTEGER NOT NULL,
				meta_json TEXT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS messages_chat_at_idx ON messages(chat_key, at ASC);`,
			`CREATE UNIQUE INDEX IF NOT EXISTS messages_chat_device_unique_idx ON messages(chat_key, device_message_id) WHERE device_message_id IS NOT NULL;`,
		}

		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration statement: %w", err)
			}
		}
	}

	if version < 2 {
		stmts := []string{
			`ALTER TABLE nodes ADD COLUMN battery_level INTEGER NULL;`,
			`ALTER TABLE nodes ADD COLUMN voltage REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN board_model TEXT NULL;`,
			`ALTER TABLE nodes ADD COLUMN device_role TEXT NULL;`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration statement: %w", err)
			}
		}
	}

	if version < 3 {
		stmts := []string{
			`ALTER TABLE nodes ADD COLUMN latitude REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN longitude REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN temperature REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN humidity REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN pressure REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN air_quality_index REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN power_voltage REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN power_current REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN is_unmessageable INTEGER NULL;`,
			`ALTER TABLE nodes ADD COLUMN channel INTEGER NULL;`,
			`ALTER TABLE nodes ADD COLUMN channel_utilization REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN air_util_tx REAL NULL;`,
			`ALTER TABLE nodes ADD COLUMN uptime_seconds INTEGER NULL;`,
			`ALTER TABLE nodes ADD COLUMN public_key BLOB NULL;`,
			`ALTER TABLE nodes ADD COLUMN is_licensed INTEGER NULL;`,
			`ALTER TABLE nodes ADD COLUMN firmware_version TEXT NULL;`,
			`ALTER TABLE nodes ADD COLUMN reboot_count INTEGER NULL;`,
			`CREATE TABLE IF NOT EXISTS traceroutes (
				request_id INTEGER PRIMARY KEY,
				target_node_id TEXT NOT NULL,
				started_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				completed_at INTEGER NULL,
				status TEXT NOT NULL,
				forward_route_json TEXT NULL,
				forward_snr_json TEXT NULL,
				return_route_json TEXT NULL,
				return_snr_json TEXT NULL,
				error_text TEXT NULL,
				duration_ms INTEGER NULL
			);`,
			`CREATE INDEX IF NOT EXISTS traceroutes_target_idx ON traceroutes(target_node_id, started_at DESC);`,
			`CREATE TABLE IF NOT EXISTS telemetry_samples (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				node_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				value REAL NOT NULL,
				at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS telemetry_node_kind_at_idx ON telemetry_samples(node_id, kind, at DESC);`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				at INTEGER NOT NULL,
				actor TEXT NOT NULL,
				action TEXT NOT NULL,
				resource TEXT NOT NULL,
				details TEXT NULL,
				ip TEXT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS audit_log_at_idx ON audit_log(at DESC);`,
			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			);`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration statement: %w", err)
			}
		}
	}

	if version < 4 {
		stmts := []string{
			`ALTER TABLE nodes ADD COLUMN favorite INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE nodes ADD COLUMN ignored INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE nodes ADD COLUMN welcomed_at INTEGER NULL;`,
			`ALTER TABLE nodes ADD COLUMN created_at INTEGER NULL;`,
			`UPDATE nodes SET created_at = last_heard_at WHERE created_at IS NULL;`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration statement: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 4;`); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
