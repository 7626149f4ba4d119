// Package store persists the engine's domain rows in sqlite through
// database/sql, grounded on the pack's embedded-sqlite store idiom.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Store is the single connection pool backing every repository in
// this package. All repositories below are methods on *Store so a
// caller only wires one object through the engine.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or attaches to a sqlite database at dsn (a file path,
// or ":memory:" for an ephemeral store) and runs the schema migration.
func Open(logger *zap.Logger, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	// sqlite allows only one writer at a time; a single connection
	// avoids SQLITE_BUSY under the engine's modest write volume.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.Named("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			market TEXT NOT NULL,
			unit INTEGER NOT NULL,
			timestamp_kst DATETIME NOT NULL,
			timestamp_utc DATETIME NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			trade_price TEXT NOT NULL,
			acc_volume TEXT NOT NULL,
			acc_value TEXT NOT NULL,
			PRIMARY KEY (market, unit, timestamp_kst)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_range ON candles(market, unit, timestamp_kst)`,

		`CREATE TABLE IF NOT EXISTS positions (
			user_id TEXT NOT NULL,
			market TEXT NOT NULL,
			status TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			entry_phase INTEGER NOT NULL DEFAULT 0,
			avg_entry_price TEXT NOT NULL DEFAULT '0',
			total_invested TEXT NOT NULL DEFAULT '0',
			quantity TEXT NOT NULL DEFAULT '0',
			stop_loss_price TEXT NOT NULL DEFAULT '0',
			highest_price TEXT NOT NULL DEFAULT '0',
			trailing_stop TEXT NOT NULL DEFAULT '0',
			trailing_armed BOOLEAN NOT NULL DEFAULT 0,
			entry_ts_1 DATETIME,
			entry_ts_2 DATETIME,
			entry_ts_3 DATETIME,
			realized_pnl TEXT NOT NULL DEFAULT '0',
			unrealized_pnl TEXT NOT NULL DEFAULT '0',
			final_exit_time DATETIME,
			exit_reason TEXT NOT NULL DEFAULT '',
			entry_zscore TEXT NOT NULL DEFAULT '0',
			entry_exec_strength TEXT NOT NULL DEFAULT '0',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, market, entry_ts_1)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions(user_id, status)`,

		`CREATE TABLE IF NOT EXISTS trade_stats (
			market TEXT NOT NULL,
			user_id TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL,
			entry_price TEXT NOT NULL,
			exit_price TEXT NOT NULL,
			profit_rate TEXT NOT NULL,
			entry_zscore TEXT NOT NULL DEFAULT '0',
			entry_exec_strength TEXT NOT NULL DEFAULT '0',
			entry_hour INTEGER NOT NULL,
			success BOOLEAN NOT NULL,
			exit_reason TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_stats_hour ON trade_stats(entry_hour, exit_time)`,

		`CREATE TABLE IF NOT EXISTS hour_params (
			hour INTEGER PRIMARY KEY,
			min_execution_strength TEXT NOT NULL,
			min_zscore TEXT NOT NULL,
			volume_multiplier TEXT NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			win_rate TEXT NOT NULL DEFAULT '0',
			avg_profit_rate TEXT NOT NULL DEFAULT '0',
			enabled BOOLEAN NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS trade_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			market TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			side TEXT NOT NULL,
			price TEXT NOT NULL,
			volume TEXT NOT NULL,
			fee TEXT NOT NULL,
			krw_balance TEXT NOT NULL,
			coin_balance TEXT NOT NULL,
			total_asset TEXT NOT NULL,
			profit_rate TEXT NOT NULL DEFAULT '0',
			strategy TEXT NOT NULL DEFAULT '',
			exit_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_user_market ON trade_records(user_id, market, timestamp)`,

		`CREATE TABLE IF NOT EXISTS cooldowns (
			user_id TEXT PRIMARY KEY,
			until DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS simulation_tasks (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			params_hash TEXT NOT NULL,
			params_json TEXT NOT NULL DEFAULT '{}',
			markets_json TEXT NOT NULL DEFAULT '[]',
			progress_done INTEGER NOT NULL DEFAULT 0,
			progress_total INTEGER NOT NULL DEFAULT 0,
			result_json TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			cancel_requested BOOLEAN NOT NULL DEFAULT 0,
			owner_instance TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sim_tasks_hash_status ON simulation_tasks(params_hash, status)`,
		`CREATE INDEX IF NOT EXISTS idx_sim_tasks_owner_status ON simulation_tasks(owner_instance, status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
