package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// RecordTrade upserts by trade_id, so re-emitting the same closed position
// after a failed hand-off is harmless.
func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(trade_id, symbol, side, quantity, entry_price, exit_price,
		 open_time, close_time, stop_loss, take_profit, correlation_id, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Side, t.Quantity, t.EntryPrice, t.ExitPrice,
		t.OpenTime, t.CloseTime, optFloat(t.StopLoss), optFloat(t.TakeProfit),
		t.CorrelationID, t.RealizedPnL, t.Reason,
	)
	return err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	var rec TradeRecord
	var sl, tp sql.NullFloat64

	row := j.db.QueryRow(`
		SELECT trade_id, symbol, side, quantity, entry_price, exit_price,
		       open_time, close_time, stop_loss, take_profit, correlation_id, realized_pnl, reason
		FROM trades
		WHERE trade_id = ?`, tradeID)

	err := row.Scan(
		&rec.TradeID, &rec.Symbol, &rec.Side, &rec.Quantity,
		&rec.EntryPrice, &rec.ExitPrice, &rec.OpenTime, &rec.CloseTime,
		&sl, &tp, &rec.CorrelationID, &rec.RealizedPnL, &rec.Reason,
	)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("trade %q not found", tradeID)
	}
	if err != nil {
		return rec, err
	}

	if sl.Valid {
		v := sl.Float64
		rec.StopLoss = &v
	}
	if tp.Valid {
		v := tp.Float64
		rec.TakeProfit = &v
	}
	rec.OpenTime = rec.OpenTime.UTC()
	rec.CloseTime = rec.CloseTime.UTC()
	return rec, nil
}

// ListTrades returns all records for a symbol ordered by close time, or every
// record when symbol is empty.
func (j *SQLite) ListTrades(symbol string) ([]TradeRecord, error) {
	q := `
		SELECT trade_id, symbol, side, quantity, entry_price, exit_price,
		       open_time, close_time, stop_loss, take_profit, correlation_id, realized_pnl, reason
		FROM trades`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY close_time`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var sl, tp sql.NullFloat64
		if err := rows.Scan(
			&rec.TradeID, &rec.Symbol, &rec.Side, &rec.Quantity,
			&rec.EntryPrice, &rec.ExitPrice, &rec.OpenTime, &rec.CloseTime,
			&sl, &tp, &rec.CorrelationID, &rec.RealizedPnL, &rec.Reason,
		); err != nil {
			return nil, err
		}
		if sl.Valid {
			v := sl.Float64
			rec.StopLoss = &v
		}
		if tp.Valid {
			v := tp.Float64
			rec.TakeProfit = &v
		}
		rec.OpenTime = rec.OpenTime.UTC()
		rec.CloseTime = rec.CloseTime.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func optFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
