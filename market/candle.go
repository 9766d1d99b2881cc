package market

import (
	"fmt"
	"time"
)

// Candle represents OHLC (Open, High, Low, Close) candlestick data for one
// time bucket. Time is the start of the period and is unique within a series.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// InvalidCandleError reports a candle whose OHLC values are inconsistent.
// Such candles are rejected at the boundary and never stored.
type InvalidCandleError struct {
	Time   time.Time
	Reason string
}

func (e *InvalidCandleError) Error() string {
	return fmt.Sprintf("invalid candle at %s: %s", e.Time.Format(time.RFC3339), e.Reason)
}

// Validate checks the OHLC invariants:
//
//	high >= max(open, close)
//	low  <= min(open, close)
//	low  <= high
//	volume >= 0
func (c Candle) Validate() error {
	if c.Time.IsZero() {
		return &InvalidCandleError{Time: c.Time, Reason: "zero timestamp"}
	}
	if c.High < c.Open || c.High < c.Close {
		return &InvalidCandleError{Time: c.Time, Reason: fmt.Sprintf("high %g below open/close", c.High)}
	}
	if c.Low > c.Open || c.Low > c.Close {
		return &InvalidCandleError{Time: c.Time, Reason: fmt.Sprintf("low %g above open/close", c.Low)}
	}
	if c.Low > c.High {
		return &InvalidCandleError{Time: c.Time, Reason: fmt.Sprintf("low %g above high %g", c.Low, c.High)}
	}
	if c.Volume < 0 {
		return &InvalidCandleError{Time: c.Time, Reason: fmt.Sprintf("negative volume %g", c.Volume)}
	}
	return nil
}
