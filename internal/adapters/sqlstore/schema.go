package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// schema is written once for both dialects; the column types differ.
const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	open_time {{TS}} NOT NULL,
	open {{REAL}} NOT NULL,
	high {{REAL}} NOT NULL,
	low {{REAL}} NOT NULL,
	close {{REAL}} NOT NULL,
	volume {{REAL}} NOT NULL,
	PRIMARY KEY (symbol, timeframe, open_time)
);

CREATE TABLE IF NOT EXISTS fvgs (
	id {{ID}},
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	direction TEXT NOT NULL,
	start_price {{REAL}} NOT NULL,
	end_price {{REAL}} NOT NULL,
	formed_at {{TS}} NOT NULL,
	height {{REAL}} NOT NULL,
	pct_of_price {{REAL}} NOT NULL,
	status TEXT NOT NULL,
	inversion_time {{TS}} NULL,
	confirmation TEXT NULL,
	created_at {{TS}} NOT NULL,
	UNIQUE (symbol, timeframe, direction, start_price, end_price, formed_at)
);

CREATE TABLE IF NOT EXISTS liquidity_pools (
	id {{ID}},
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	pool_type TEXT NOT NULL,
	level {{REAL}} NOT NULL,
	formed_at {{TS}} NOT NULL,
	significance TEXT NOT NULL,
	touches INTEGER NOT NULL,
	tapped BOOLEAN NOT NULL DEFAULT FALSE,
	tap_time {{TS}} NULL,
	metadata TEXT NULL,
	created_at {{TS}} NOT NULL,
	UNIQUE (symbol, timeframe, pool_type, formed_at, level)
);

CREATE TABLE IF NOT EXISTS trade_signals (
	id {{ID}},
	ticker TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	direction TEXT NOT NULL,
	fvg_id BIGINT NOT NULL,
	entry_price {{REAL}} NOT NULL,
	stop_loss {{REAL}} NOT NULL,
	liquidity_target {{REAL}} NOT NULL,
	rr {{REAL}} NOT NULL,
	confluences TEXT NOT NULL,
	status TEXT NOT NULL,
	announced BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	execution_id TEXT PRIMARY KEY,
	signal_id BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price {{REAL}} NOT NULL,
	quantity {{REAL}} NOT NULL,
	stop_loss {{REAL}} NOT NULL,
	take_profit {{REAL}} NOT NULL,
	status TEXT NOT NULL,
	exit_price {{REAL}} NULL,
	pnl {{REAL}} NULL,
	close_reason TEXT NULL,
	opened_at {{TS}} NOT NULL,
	closed_at {{TS}} NULL,
	close_announced BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS trade_journal (
	execution_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price {{REAL}} NOT NULL,
	exit_price {{REAL}} NOT NULL,
	quantity {{REAL}} NOT NULL,
	pnl {{REAL}} NOT NULL,
	close_reason TEXT NOT NULL,
	opened_at {{TS}} NOT NULL,
	closed_at {{TS}} NOT NULL,
	archived_at {{TS}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fvgs_symbol_status ON fvgs (symbol, timeframe, status);
CREATE INDEX IF NOT EXISTS idx_pools_lookup ON liquidity_pools (symbol, timeframe, pool_type, formed_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_one_pending ON trade_signals (ticker, timeframe, fvg_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_signals_unannounced ON trade_signals (ticker, timeframe, status, announced);
CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_one_per_signal ON positions (signal_id);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status, close_announced);
CREATE INDEX IF NOT EXISTS idx_journal_closed_at ON trade_journal (closed_at);
`

var columnTypes = map[string]*strings.Replacer{
	DriverSQLite: strings.NewReplacer(
		"{{ID}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{TS}}", "TIMESTAMP",
		"{{REAL}}", "REAL",
	),
	DriverPostgres: strings.NewReplacer(
		"{{ID}}", "BIGSERIAL PRIMARY KEY",
		"{{TS}}", "TIMESTAMPTZ",
		"{{REAL}}", "DOUBLE PRECISION",
	),
}

// initializeSchema creates tables if they don't exist.
func (s *Store) initializeSchema(ctx context.Context) error {
	ddl := columnTypes[s.driver].Replace(schema)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}
