package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
)

// ScriptOptions controls how a scripted session behaves.
type ScriptOptions struct {
	// If true: process the tick first (OnTick), then the event. This is what
	// you want most of the time, so OPEN uses current tick prices and
	// CLOSE_ALL closes at that tick's prices.
	TickThenEvent bool
}

// RunScript replays ticks from a CSV file and applies optional scripted
// events against the engine.
//
// CSV formats supported:
//
//  1. Basic ticks:
//     time,symbol,price
//
//  2. Ticks + events:
//     time,symbol,price,event,arg1,arg2,arg3,arg4
//
// Events (case-insensitive):
//
//	OPEN:       arg1=symbol  arg2=units (signed: +long, -short)
//	OPEN_SLTP:  arg1=symbol  arg2=units  arg3=stopLoss  arg4=takeProfit
//	CLOSE:      arg1=positionID
//	CLOSE_ALL:  no args (closes at the last seen price per symbol)
//
// Orders fill at the last tick price seen for their symbol, so a script must
// tick a symbol at least once before opening in it.
func RunScript(ctx context.Context, csvPath string, engine *sim.Engine, opts ScriptOptions) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	run := &scriptRun{engine: engine, opts: opts, prices: map[string]float64{}}

	firstRow, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}

	hasHeader := len(firstRow) > 0 && strings.EqualFold(strings.TrimSpace(firstRow[0]), "time")
	if !hasHeader {
		if err := run.handleRow(ctx, firstRow); err != nil {
			return err
		}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}
		if err := run.handleRow(ctx, row); err != nil {
			return err
		}
	}
}

type scriptRun struct {
	engine *sim.Engine
	opts   ScriptOptions
	prices map[string]float64
}

func (s *scriptRun) handleRow(ctx context.Context, row []string) error {
	if len(row) < 3 {
		return fmt.Errorf("bad row (need at least 3 cols time,symbol,price): %v", row)
	}

	t, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
	if err != nil {
		return fmt.Errorf("bad time %q: %w", row[0], err)
	}
	symbol := strings.TrimSpace(row[1])

	price, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return fmt.Errorf("bad price %q: %w", row[2], err)
	}

	tick := market.Tick{Symbol: symbol, Price: price, Time: t}

	event := ""
	args := []string{}
	if len(row) >= 4 {
		event = strings.TrimSpace(row[3])
	}
	if len(row) >= 5 {
		args = row[4:]
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}
	}

	if s.opts.TickThenEvent {
		if err := s.applyTick(ctx, tick); err != nil {
			return err
		}
		if event != "" {
			return s.handleEvent(ctx, event, args, t)
		}
		return nil
	}

	// event first, then tick (rare, but supported)
	if event != "" {
		if err := s.handleEvent(ctx, event, args, t); err != nil {
			return err
		}
	}
	return s.applyTick(ctx, tick)
}

func (s *scriptRun) applyTick(ctx context.Context, tick market.Tick) error {
	s.prices[tick.Symbol] = tick.Price
	_, err := s.engine.OnTick(ctx, tick)
	return err
}

func (s *scriptRun) handleEvent(ctx context.Context, event string, args []string, at time.Time) error {
	switch strings.ToUpper(event) {
	case "OPEN":
		// OPEN,EUR_USD,10000
		symbol, units, err := parseOpenArgs(args)
		if err != nil {
			return fmt.Errorf("OPEN: %w", err)
		}
		return s.open(ctx, symbol, units, nil, nil, at)

	case "OPEN_SLTP":
		// OPEN_SLTP,EUR_USD,10000,1.0980,1.1050
		symbol, units, sl, tp, err := parseOpenSLTPArgs(args)
		if err != nil {
			return fmt.Errorf("OPEN_SLTP: %w", err)
		}
		return s.open(ctx, symbol, units, &sl, &tp, at)

	case "CLOSE":
		// CLOSE,<positionID>
		if len(args) < 1 || args[0] == "" {
			return fmt.Errorf("CLOSE: missing positionID")
		}
		posID := args[0]
		price, err := s.priceForPosition(posID)
		if err != nil {
			return fmt.Errorf("CLOSE: %w", err)
		}
		_, err = s.engine.ClosePosition(ctx, posID, price)
		return err

	case "CLOSE_ALL":
		_, err := s.engine.CloseAll(ctx, s.prices)
		return err

	default:
		return fmt.Errorf("unknown event %q", event)
	}
}

func (s *scriptRun) open(ctx context.Context, symbol string, units float64, sl, tp *float64, at time.Time) error {
	price, ok := s.prices[symbol]
	if !ok {
		return fmt.Errorf("no tick seen yet for %s", symbol)
	}

	side := sim.Long
	if units < 0 {
		side = sim.Short
		units = -units
	}

	_, _, err := s.engine.PlaceMarketOrder(ctx, sim.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Quantity:   units,
		Price:      price,
		Time:       at,
		StopLoss:   sl,
		TakeProfit: tp,
	})
	return err
}

func (s *scriptRun) priceForPosition(posID string) (float64, error) {
	for _, p := range s.engine.OpenPositions() {
		if p.ID == posID {
			if price, ok := s.prices[p.Symbol]; ok {
				return price, nil
			}
			return 0, fmt.Errorf("no tick seen yet for %s", p.Symbol)
		}
	}
	return 0, fmt.Errorf("position %q not open", posID)
}

func parseOpenArgs(args []string) (symbol string, units float64, err error) {
	if len(args) < 2 {
		return "", 0, fmt.Errorf("need arg1=symbol arg2=units")
	}
	symbol = args[0]
	if symbol == "" {
		return "", 0, fmt.Errorf("symbol is empty")
	}
	units, err = strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad units %q: %w", args[1], err)
	}
	if units == 0 {
		return "", 0, fmt.Errorf("units must be non-zero")
	}
	return symbol, units, nil
}

func parseOpenSLTPArgs(args []string) (symbol string, units float64, sl float64, tp float64, err error) {
	if len(args) < 4 {
		return "", 0, 0, 0, fmt.Errorf("need arg1=symbol arg2=units arg3=stopLoss arg4=takeProfit")
	}
	symbol, units, err = parseOpenArgs(args[:2])
	if err != nil {
		return "", 0, 0, 0, err
	}
	sl, err = strconv.ParseFloat(args[2], 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("bad stopLoss %q: %w", args[2], err)
	}
	tp, err = strconv.ParseFloat(args[3], 64)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("bad takeProfit %q: %w", args[3], err)
	}
	return symbol, units, sl, tp, nil
}
