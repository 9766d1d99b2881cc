package snapshot

// Schema holds everything a session needs to resume: its candle series, the
// account row, and the open position set. Closed positions live in the
// journal, not here.
const Schema = `
CREATE TABLE IF NOT EXISTS series (
	session_id TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	timeframe  TEXT NOT NULL,
	ts         DATETIME NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     REAL NOT NULL,
	PRIMARY KEY (session_id, symbol, timeframe, ts)
);

CREATE TABLE IF NOT EXISTS account (
	session_id      TEXT PRIMARY KEY,
	balance         REAL NOT NULL,
	initial_balance REAL NOT NULL,
	realized_pnl    REAL NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	session_id      TEXT NOT NULL,
	position_id     TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            INTEGER NOT NULL,
	quantity        REAL NOT NULL,
	entry_price     REAL NOT NULL,
	stop_loss       REAL NULL,
	take_profit     REAL NULL,
	linked_order_id TEXT NOT NULL DEFAULT '',
	opened_at       DATETIME NOT NULL,
	PRIMARY KEY (session_id, position_id)
);

CREATE INDEX IF NOT EXISTS idx_series_session ON series(session_id, symbol, timeframe);
CREATE INDEX IF NOT EXISTS idx_positions_session ON positions(session_id);
`
