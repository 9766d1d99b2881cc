package market

import "time"

// Tick is a single live price observation, not yet bucketed.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}
