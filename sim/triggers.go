package sim

// HitStopLoss reports whether price crosses the position's stop level:
// longs trigger at price <= stop, shorts at price >= stop. An unset level
// never triggers.
func HitStopLoss(p *Position, price float64) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Side == Long {
		return price <= *p.StopLoss
	}
	return price >= *p.StopLoss
}

// HitTakeProfit mirrors HitStopLoss with the inequalities flipped.
func HitTakeProfit(p *Position, price float64) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Side == Long {
		return price >= *p.TakeProfit
	}
	return price <= *p.TakeProfit
}
