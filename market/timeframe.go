package market

import (
	"fmt"
	"time"
)

// Timeframe is a candle bucket duration. Each (symbol, timeframe) pair owns a
// wholly independent series; timeframes are never derived from one another by
// aggregation.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// Seconds returns the bucket length in seconds, or 0 for an unknown timeframe.
func (tf Timeframe) Seconds() int64 {
	switch tf {
	case M1:
		return 60
	case M5:
		return 300
	case M15:
		return 900
	case M30:
		return 1800
	case H1:
		return 3600
	case H4:
		return 14400
	case D1:
		return 86400
	}
	return 0
}

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

func (tf Timeframe) Valid() bool { return tf.Seconds() > 0 }

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unsupported timeframe string: %s", s)
	}
	return tf, nil
}

// Key identifies one candle series.
type Key struct {
	Symbol    string
	Timeframe Timeframe
}

func (k Key) String() string {
	return k.Symbol + "@" + string(k.Timeframe)
}
