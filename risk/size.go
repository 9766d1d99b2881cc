// Package risk holds pure sizing helpers. Nothing here touches engine state.
package risk

import "math"

// PositionSize returns the quantity that puts riskPercent of balance at risk
// between entry and stop. A zero risk distance (entry == stop) is undefined,
// so the result is 0.
func PositionSize(balance, riskPercent, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0
	}
	return balance * riskPercent / 100 / dist
}

// RR is the reward-to-risk ratio of an entry/stop/take-profit setup. A zero
// risk distance yields 0.
func RR(entry, stop, takeProfit float64) float64 {
	riskDist := math.Abs(entry - stop)
	if riskDist == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / riskDist
}
