package sim

import (
	"fmt"
	"time"
)

// Side of a position: +1 long, -1 short.
type Side int

const (
	Long  Side = 1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

func (s Side) Valid() bool { return s == Long || s == Short }

func ParseSide(v string) (Side, error) {
	switch v {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	}
	return 0, fmt.Errorf("bad side %q", v)
}

// Position is one simulated holding in a symbol. Quantity is always positive;
// direction lives in Side. EntryPrice is the volume-weighted average across
// same-side fills.
type Position struct {
	ID            string
	Symbol        string
	Side          Side
	Quantity      float64
	EntryPrice    float64
	StopLoss      *float64
	TakeProfit    *float64
	LinkedOrderID string
	OpenedAt      time.Time

	// Set on close.
	ClosedAt    time.Time
	ExitPrice   float64
	RealizedPnL float64
	Open        bool
}

// UnrealizedPnL is (price - entry) * quantity, signed by side.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * float64(p.Side)
}
