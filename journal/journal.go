package journal

import "time"

// TradeRecord is the normalized record of a closed position handed to
// external persistence.
type TradeRecord struct {
	TradeID       string
	Symbol        string
	Side          string // "long" or "short"
	Quantity      float64
	EntryPrice    float64
	ExitPrice     float64
	OpenTime      time.Time
	CloseTime     time.Time
	StopLoss      *float64
	TakeProfit    *float64
	CorrelationID string
	RealizedPnL   float64
	Reason        string
}

// Journal receives one record per closed position. RecordTrade must be safe
// to call repeatedly with the same TradeID (idempotent upsert), so a failed
// hand-off can be retried.
type Journal interface {
	RecordTrade(TradeRecord) error
	Close() error
}

// TradeReader is implemented by journals that support reading a trade back by
// id. The engine's close contract guarantees the record is visible here as
// soon as the close call returns.
type TradeReader interface {
	GetTrade(tradeID string) (TradeRecord, error)
}
