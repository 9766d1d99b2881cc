package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/pkg/id"
)

// NotFoundError reports a close or update against an unknown position id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("position %q not found", e.ID)
}

type FillKind int

const (
	FillOpened FillKind = iota
	FillAveraged
	FillReduced
	FillClosed
)

// FillOutcome describes what a fill did to the book.
type FillOutcome struct {
	Kind FillKind

	// Position is the open position after the fill, nil when the fill fully
	// closed it.
	Position *Position

	// Closed is the closed snapshot when Kind == FillClosed.
	Closed *Position

	// RealizedPnL is the profit booked by this fill (partial or full close).
	RealizedPnL float64
}

// Book holds the open and closed simulated positions for one session and
// applies fills to them. At most one open position per symbol exists at a
// time. The book is not internally locked; the owning engine serializes all
// mutation (one session, one event stream).
type Book struct {
	acct   *Account
	open   map[string]*Position // by symbol
	byID   map[string]*Position
	closed []*Position
}

func NewBook(acct *Account) *Book {
	return &Book{
		acct: acct,
		open: make(map[string]*Position),
		byID: make(map[string]*Position),
	}
}

// Restore seeds the book with open positions persisted by a previous
// session. Call before any fill; restored positions collide with nothing.
func (b *Book) Restore(positions []Position) error {
	for _, p := range positions {
		if !p.Open {
			return fmt.Errorf("restore position %q: not open", p.ID)
		}
		if _, ok := b.open[p.Symbol]; ok {
			return fmt.Errorf("restore position %q: %s already has an open position", p.ID, p.Symbol)
		}
		if _, ok := b.byID[p.ID]; ok {
			return fmt.Errorf("restore position %q: duplicate id", p.ID)
		}
		cp := p
		b.open[cp.Symbol] = &cp
		b.byID[cp.ID] = &cp
	}
	return nil
}

// ApplyFill executes a market fill against the book:
//
//   - no open position in symbol: opens one, cost qty*price deducted;
//   - same side: merges, entry re-averaged by volume;
//   - opposite side: closes min(qty, open quantity); the excess beyond the
//     open size is ignored (no reverse position is opened).
//
// The account balance is allowed to go negative; see Account.
func (b *Book) ApplyFill(symbol string, side Side, qty, price float64, at time.Time) FillOutcome {
	pos, ok := b.open[symbol]
	if !ok {
		pos = &Position{
			ID:         id.New(),
			Symbol:     symbol,
			Side:       side,
			Quantity:   qty,
			EntryPrice: price,
			OpenedAt:   at,
			Open:       true,
		}
		b.open[symbol] = pos
		b.byID[pos.ID] = pos
		b.acct.Balance -= qty * price
		return FillOutcome{Kind: FillOpened, Position: pos}
	}

	if pos.Side == side {
		newQty := pos.Quantity + qty
		pos.EntryPrice = (pos.Quantity*pos.EntryPrice + qty*price) / newQty
		pos.Quantity = newQty
		b.acct.Balance -= qty * price
		return FillOutcome{Kind: FillAveraged, Position: pos}
	}

	closeQty := math.Min(qty, pos.Quantity)
	pnl := (price - pos.EntryPrice) * closeQty * float64(pos.Side)
	b.acct.Balance += closeQty*pos.EntryPrice + pnl
	b.acct.RealizedPnL += pnl
	pos.RealizedPnL += pnl

	if closeQty == pos.Quantity {
		b.retire(pos, price, at)
		return FillOutcome{Kind: FillClosed, Closed: pos, RealizedPnL: pnl}
	}

	pos.Quantity -= closeQty
	return FillOutcome{Kind: FillReduced, Position: pos, RealizedPnL: pnl}
}

// CloseByID force-closes the whole position at price, ignoring side matching.
func (b *Book) CloseByID(posID string, price float64, at time.Time) (*Position, error) {
	pos, ok := b.byID[posID]
	if !ok || !pos.Open {
		return nil, &NotFoundError{ID: posID}
	}

	pnl := pos.UnrealizedPnL(price)
	b.acct.Balance += pos.Quantity*pos.EntryPrice + pnl
	b.acct.RealizedPnL += pnl
	pos.RealizedPnL += pnl
	b.retire(pos, price, at)
	return pos, nil
}

func (b *Book) retire(pos *Position, price float64, at time.Time) {
	// Quantity is left at its size at close time so the journal record keeps
	// the closed size.
	pos.ExitPrice = price
	pos.ClosedAt = at
	pos.Open = false
	delete(b.open, pos.Symbol)
	b.closed = append(b.closed, pos)
}

// Unrealized returns the unrealized P&L for the open position in symbol at
// the given price, or 0 when there is none.
func (b *Book) Unrealized(symbol string, price float64) float64 {
	pos, ok := b.open[symbol]
	if !ok {
		return 0
	}
	return pos.UnrealizedPnL(price)
}

// UnrealizedTotal sums unrealized P&L across every open position with a price
// in the map.
func (b *Book) UnrealizedTotal(prices map[string]float64) float64 {
	var total float64
	for symbol, pos := range b.open {
		if price, ok := prices[symbol]; ok {
			total += pos.UnrealizedPnL(price)
		}
	}
	return total
}

// Equity is balance plus total unrealized P&L. With no open positions it
// equals the balance.
func (b *Book) Equity(prices map[string]float64) float64 {
	return b.acct.Balance + b.UnrealizedTotal(prices)
}

// OpenBySymbol returns the open position for symbol, if any.
func (b *Book) OpenBySymbol(symbol string) (*Position, bool) {
	pos, ok := b.open[symbol]
	return pos, ok
}

// Get looks a position up by id, open or closed.
func (b *Book) Get(posID string) (*Position, bool) {
	pos, ok := b.byID[posID]
	return pos, ok
}

// OpenPositions returns the open set ordered by open time (ulid order breaks
// ties deterministically).
func (b *Book) OpenPositions() []*Position {
	out := make([]*Position, 0, len(b.open))
	for _, pos := range b.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Closed returns closed positions in close order.
func (b *Book) Closed() []*Position {
	return b.closed
}
