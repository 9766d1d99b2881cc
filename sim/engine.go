package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/pkg/id"
)

// Snapshotter saves the session state (account and open positions) after
// mutating operations. Implementations must be idempotent per session.
type Snapshotter interface {
	SaveState(ctx context.Context, acct Account, open []Position) error
}

// CloseResult is the event value returned for every closed position. The
// caller dispatches it instead of the engine invoking hidden callbacks: the
// journal hand-off has already completed (or failed, see JournalErr) by the
// time the result is returned.
type CloseResult struct {
	Position Position
	Reason   string

	// CorrelationID links back to an external drawing/order tool object that
	// should be cleaned up. Empty means no cleanup is needed.
	CorrelationID string

	// JournalErr is the non-fatal journal emit failure, if any. The position
	// is closed locally regardless; local state is authoritative, remote sync
	// is best-effort.
	JournalErr error
}

// EngineOptions wires a session-scoped engine. Store and Journal are
// required; Snapshot and Logger are optional.
type EngineOptions struct {
	Store     *market.Store
	Account   *Account
	Journal   journal.Journal
	Snapshot  Snapshotter
	Timeframe market.Timeframe
	Logger    *logrus.Logger
}

// Engine orchestrates order placement, SL/TP enforcement, and the ordered
// hand-off of closed positions to the journal. All engine state is owned by
// one session and mutated under a single mutex, so a tick can never interleave
// with an in-flight close for the same symbol. Closes (including SL/TP
// triggers inside OnTick) complete their journal write before the lock is
// released, which is what makes "close, then immediately read back" safe.
type Engine struct {
	mu        sync.Mutex
	store     *market.Store
	acct      *Account
	book      *Book
	journal   journal.Journal
	snap      Snapshotter
	timeframe market.Timeframe
	log       *logrus.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	acct := opts.Account
	if acct == nil {
		acct = NewAccount(0)
	}
	tf := opts.Timeframe
	if !tf.Valid() {
		tf = market.M1
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store:     opts.Store,
		acct:      acct,
		book:      NewBook(acct),
		journal:   opts.Journal,
		snap:      opts.Snapshot,
		timeframe: tf,
		log:       log,
	}
}

// RestorePositions seeds the book with the open positions of a previous
// session, typically loaded from the session snapshot. Call once at session
// start, before any order or tick; the next snapshot save writes the
// restored set back out along with anything opened since.
func (e *Engine) RestorePositions(positions []Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Restore(positions)
}

// SetActiveTimeframe selects the series live ticks are folded into. Which
// timeframe to display is a caller concern.
func (e *Engine) SetActiveTimeframe(tf market.Timeframe) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tf.Valid() {
		e.timeframe = tf
	}
}

// Account returns a copy of the account state.
func (e *Engine) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.acct
}

// OpenPositions returns copies of the open set in open order.
func (e *Engine) OpenPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := e.book.OpenPositions()
	out := make([]Position, len(open))
	for i, p := range open {
		out[i] = *p
	}
	return out
}

// Equity is balance plus unrealized P&L of all open positions at the given
// prices.
func (e *Engine) Equity(prices map[string]float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Equity(prices)
}

// PlaceMarketOrder creates and immediately fills a market order. StopLoss and
// TakeProfit from the request are attached only when the fill opens a new
// position; merges and reduces leave existing levels alone. The order never
// rejects on insufficient balance. When the fill fully closes an opposite
// position, the close result (journal already handed off) is returned
// alongside the order.
func (e *Engine) PlaceMarketOrder(ctx context.Context, req OrderRequest) (Order, *CloseResult, error) {
	if req.Symbol == "" {
		return Order{}, nil, fmt.Errorf("place order: symbol is empty")
	}
	if !req.Side.Valid() {
		return Order{}, nil, fmt.Errorf("place order: bad side")
	}
	if req.Quantity <= 0 {
		return Order{}, nil, fmt.Errorf("place order: quantity must be positive")
	}
	if req.Price <= 0 {
		return Order{}, nil, fmt.Errorf("place order: price must be positive")
	}
	at := req.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := e.book.ApplyFill(req.Symbol, req.Side, req.Quantity, req.Price, at)
	if outcome.Kind == FillOpened {
		outcome.Position.StopLoss = req.StopLoss
		outcome.Position.TakeProfit = req.TakeProfit
		outcome.Position.LinkedOrderID = req.CorrelationID
	}

	order := Order{
		ID:          id.New(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Status:      OrderFilled,
		FilledPrice: req.Price,
		FilledAt:    at,
	}

	var closed *CloseResult
	if outcome.Kind == FillClosed {
		res := e.finishClose(ctx, outcome.Closed, "OppositeFill")
		closed = &res
	} else {
		e.saveState(ctx)
	}

	return order, closed, nil
}

// OnTick applies a live tick to the active series, then evaluates SL/TP for
// every open position in the symbol. A guard-rejected tick never reaches the
// SL/TP evaluation; during replay live ticks are ignored entirely. Each
// triggered close runs the full close path, journal hand-off included, before
// this call returns, so the next tick can never see a stale position.
func (e *Engine) OnTick(ctx context.Context, tick market.Tick) ([]CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store != nil {
		status := e.store.ApplyTick(market.Key{Symbol: tick.Symbol, Timeframe: e.timeframe}, tick)
		switch status {
		case market.TickRejected, market.TickIgnoredReplay:
			return nil, nil
		}
	}

	pos, ok := e.book.OpenBySymbol(tick.Symbol)
	if !ok {
		return nil, nil
	}

	reason := ""
	switch {
	case HitStopLoss(pos, tick.Price):
		reason = "StopLoss"
	case HitTakeProfit(pos, tick.Price):
		reason = "TakeProfit"
	}
	if reason == "" {
		return nil, nil
	}

	closed, err := e.book.CloseByID(pos.ID, tick.Price, tick.Time)
	if err != nil {
		return nil, err
	}
	res := e.finishClose(ctx, closed, reason)
	return []CloseResult{res}, nil
}

// ClosePosition force-closes the position by id at the current price. It
// returns only after the journal hand-off has completed; a journal failure is
// reported on the result as a warning, never rolled back.
func (e *Engine) ClosePosition(ctx context.Context, posID string, price float64) (CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeByIDLocked(ctx, posID, price, "ManualClose")
}

func (e *Engine) closeByIDLocked(ctx context.Context, posID string, price float64, reason string) (CloseResult, error) {
	closed, err := e.book.CloseByID(posID, price, time.Now().UTC())
	if err != nil {
		return CloseResult{}, err
	}
	return e.finishClose(ctx, closed, reason), nil
}

// CloseAll closes every open position sequentially, preserving deterministic
// account-balance updates. Every open symbol must have a price in the map.
func (e *Engine) CloseAll(ctx context.Context, prices map[string]float64) ([]CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.book.OpenPositions()
	if len(open) == 0 {
		return nil, nil
	}

	// Preflight: a missing price closes nothing.
	for _, pos := range open {
		if _, ok := prices[pos.Symbol]; !ok {
			return nil, fmt.Errorf("close all: no price for %q", pos.Symbol)
		}
	}

	results := make([]CloseResult, 0, len(open))
	for _, pos := range open {
		res, err := e.closeByIDLocked(ctx, pos.ID, prices[pos.Symbol], "ManualClose")
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// UpdateStopLoss replaces the stop level on an open position. Passing nil
// clears it.
func (e *Engine) UpdateStopLoss(posID string, level *float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.book.Get(posID)
	if !ok || !pos.Open {
		return &NotFoundError{ID: posID}
	}
	pos.StopLoss = level
	return nil
}

// UpdateTakeProfit replaces the take-profit level on an open position.
func (e *Engine) UpdateTakeProfit(posID string, level *float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.book.Get(posID)
	if !ok || !pos.Open {
		return &NotFoundError{ID: posID}
	}
	pos.TakeProfit = level
	return nil
}

// Flush persists unsaved tick updates and the session snapshot. Call at
// session end.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	e.saveState(ctx)
	e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	return e.store.Flush(ctx)
}

// finishClose runs the close side effects while the engine lock is held:
// snapshot save, then the awaited journal hand-off. The journal write
// completing before the lock is released is the ordering contract every
// caller relies on.
func (e *Engine) finishClose(ctx context.Context, closed *Position, reason string) CloseResult {
	e.saveState(ctx)

	res := CloseResult{
		Position:      *closed,
		Reason:        reason,
		CorrelationID: closed.LinkedOrderID,
	}

	if e.journal != nil {
		rec := journal.TradeRecord{
			TradeID:       closed.ID,
			Symbol:        closed.Symbol,
			Side:          closed.Side.String(),
			Quantity:      closed.Quantity,
			EntryPrice:    closed.EntryPrice,
			ExitPrice:     closed.ExitPrice,
			OpenTime:      closed.OpenedAt,
			CloseTime:     closed.ClosedAt,
			StopLoss:      closed.StopLoss,
			TakeProfit:    closed.TakeProfit,
			CorrelationID: closed.LinkedOrderID,
			RealizedPnL:   closed.RealizedPnL,
			Reason:        reason,
		}
		if err := e.journal.RecordTrade(rec); err != nil {
			e.log.WithField("position", closed.ID).WithError(err).Warn("journal hand-off failed")
			res.JournalErr = err
		}
	}

	return res
}

func (e *Engine) saveState(ctx context.Context) {
	if e.snap == nil {
		return
	}
	open := e.book.OpenPositions()
	copies := make([]Position, len(open))
	for i, p := range open {
		copies[i] = *p
	}
	if err := e.snap.SaveState(ctx, *e.acct, copies); err != nil {
		e.log.WithError(err).Warn("session snapshot save failed")
	}
}
