package sim

import "time"

type OrderStatus string

// OrderFilled is the only status a returned order carries: market orders
// either fill at the quoted price or the request errors before an order
// exists at all.
const OrderFilled OrderStatus = "filled"

// Order is the immutable record of an execution request. Only market orders
// exist in this core: they fill immediately at the quoted price or fail the
// request validation, so there is no cancelled state.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Quantity    float64
	Status      OrderStatus
	FilledPrice float64
	FilledAt    time.Time
}

// OrderRequest describes a market order. StopLoss/TakeProfit are attached
// only when the fill opens a brand-new position; adjusting levels on an
// existing position goes through Engine.UpdateStopLoss/UpdateTakeProfit.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      float64
	Price         float64
	Time          time.Time
	StopLoss      *float64
	TakeProfit    *float64
	CorrelationID string
}
