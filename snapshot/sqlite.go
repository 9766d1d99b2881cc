// Package snapshot persists session state to SQLite so a paper-trading
// session can be resumed later: candle series for the market store, plus the
// account and open-position set for the engine. Everything is keyed by an
// opaque session id.
package snapshot

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
)

// SQLite implements market.Persister and sim.Snapshotter over one database
// file. Multiple sessions can share a file; rows never cross session ids.
type SQLite struct {
	db        *sql.DB
	sessionID string
}

func NewSQLite(path, sessionID string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db, sessionID: sessionID}, nil
}

// SaveSeries replaces the stored candles for key. Write-behind: the market
// store calls this on merges and flushes, not per tick.
func (s *SQLite) SaveSeries(ctx context.Context, key market.Key, candles []market.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM series WHERE session_id = ? AND symbol = ? AND timeframe = ?`,
		s.sessionID, key.Symbol, string(key.Timeframe),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series (session_id, symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			s.sessionID, key.Symbol, string(key.Timeframe),
			c.Time, c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSeries returns every stored series for this session.
func (s *SQLite) LoadSeries(ctx context.Context) (map[market.Key][]market.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM series
		WHERE session_id = ?
		ORDER BY symbol, timeframe, ts`, s.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[market.Key][]market.Candle{}
	for rows.Next() {
		var symbol, tf string
		var c market.Candle
		if err := rows.Scan(&symbol, &tf, &c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Time = c.Time.UTC()
		key := market.Key{Symbol: symbol, Timeframe: market.Timeframe(tf)}
		out[key] = append(out[key], c)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteSeries(ctx context.Context, key market.Key) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM series WHERE session_id = ? AND symbol = ? AND timeframe = ?`,
		s.sessionID, key.Symbol, string(key.Timeframe))
	return err
}

// SaveState replaces this session's account row and open-position set in one
// transaction. Safe to call repeatedly with the same state.
func (s *SQLite) SaveState(ctx context.Context, acct sim.Account, open []sim.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO account (session_id, balance, initial_balance, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.sessionID, acct.Balance, acct.InitialBalance, acct.RealizedPnL, time.Now().UTC(),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM positions WHERE session_id = ?`, s.sessionID,
	); err != nil {
		return err
	}

	for _, p := range open {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions
			(session_id, position_id, symbol, side, quantity, entry_price,
			 stop_loss, take_profit, linked_order_id, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.sessionID, p.ID, p.Symbol, int(p.Side), p.Quantity, p.EntryPrice,
			optFloat(p.StopLoss), optFloat(p.TakeProfit), p.LinkedOrderID, p.OpenedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadAccount restores the session's account. ok is false when this session
// has never saved state.
func (s *SQLite) LoadAccount(ctx context.Context) (sim.Account, bool, error) {
	var acct sim.Account
	row := s.db.QueryRowContext(ctx, `
		SELECT balance, initial_balance, realized_pnl
		FROM account WHERE session_id = ?`, s.sessionID)

	err := row.Scan(&acct.Balance, &acct.InitialBalance, &acct.RealizedPnL)
	if err == sql.ErrNoRows {
		return acct, false, nil
	}
	if err != nil {
		return acct, false, err
	}
	return acct, true, nil
}

// LoadPositions restores the session's open positions.
func (s *SQLite) LoadPositions(ctx context.Context) ([]sim.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, symbol, side, quantity, entry_price,
		       stop_loss, take_profit, linked_order_id, opened_at
		FROM positions
		WHERE session_id = ?
		ORDER BY opened_at, position_id`, s.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sim.Position
	for rows.Next() {
		var p sim.Position
		var side int
		var sl, tp sql.NullFloat64
		if err := rows.Scan(
			&p.ID, &p.Symbol, &side, &p.Quantity, &p.EntryPrice,
			&sl, &tp, &p.LinkedOrderID, &p.OpenedAt,
		); err != nil {
			return nil, err
		}
		p.Side = sim.Side(side)
		p.Open = true
		p.OpenedAt = p.OpenedAt.UTC()
		if sl.Valid {
			v := sl.Float64
			p.StopLoss = &v
		}
		if tp.Valid {
			v := tp.Float64
			p.TakeProfit = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func optFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
