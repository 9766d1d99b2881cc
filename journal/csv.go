package journal

import (
	"encoding/csv"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type CSV struct {
	trades *csv.Writer
	f      *os.File
}

func NewCSV(tradesPath string) (*CSV, error) {
	f, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"trade_id", "symbol", "side", "quantity", "entry_price", "exit_price",
		"open_time", "close_time", "stop_loss", "take_profit", "correlation_id", "realized_pnl", "reason",
	}); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &CSV{trades: w, f: f}, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.TradeID,
		t.Symbol,
		t.Side,
		f(t.Quantity),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		fp(t.StopLoss),
		fp(t.TakeProfit),
		t.CorrelationID,
		f(t.RealizedPnL),
		t.Reason,
	})
	if err != nil {
		return err
	}

	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	return j.f.Close()
}

// f renders a price or P&L with fixed 6-decimal precision, without float
// formatting noise.
func f(x float64) string {
	return decimal.NewFromFloat(x).Round(6).String()
}

func fp(x *float64) string {
	if x == nil {
		return ""
	}
	return f(*x)
}
