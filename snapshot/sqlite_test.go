package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
)

func newTestSnapshot(t *testing.T, session string) *SQLite {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "session.db"), session)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleCandles(n int) []market.Candle {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.Candle{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   100, High: 101, Low: 99, Close: 100.5, Volume: 10,
		})
	}
	return out
}

func TestSaveAndLoadSeries(t *testing.T) {
	t.Parallel()

	s := newTestSnapshot(t, "sess-1")
	ctx := context.Background()
	key := market.Key{Symbol: "AAPL", Timeframe: market.M1}

	require.NoError(t, s.SaveSeries(ctx, key, sampleCandles(5)))

	loaded, err := s.LoadSeries(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Len(t, loaded[key], 5)
	assert.InDelta(t, 100.5, loaded[key][0].Close, 1e-9)
	assert.Equal(t, time.UTC, loaded[key][0].Time.Location())
}

func TestSaveSeriesReplaces(t *testing.T) {
	t.Parallel()

	s := newTestSnapshot(t, "sess-1")
	ctx := context.Background()
	key := market.Key{Symbol: "AAPL", Timeframe: market.M1}

	require.NoError(t, s.SaveSeries(ctx, key, sampleCandles(5)))
	require.NoError(t, s.SaveSeries(ctx, key, sampleCandles(3)))

	loaded, err := s.LoadSeries(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded[key], 3)
}

func TestDeleteSeries(t *testing.T) {
	t.Parallel()

	s := newTestSnapshot(t, "sess-1")
	ctx := context.Background()
	m1 := market.Key{Symbol: "AAPL", Timeframe: market.M1}
	m5 := market.Key{Symbol: "AAPL", Timeframe: market.M5}

	require.NoError(t, s.SaveSeries(ctx, m1, sampleCandles(5)))
	require.NoError(t, s.SaveSeries(ctx, m5, sampleCandles(2)))
	require.NoError(t, s.DeleteSeries(ctx, m1))

	loaded, err := s.LoadSeries(ctx)
	require.NoError(t, err)
	assert.NotContains(t, loaded, m1)
	assert.Len(t, loaded[m5], 2)
}

func TestSaveStateRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSnapshot(t, "sess-1")
	ctx := context.Background()

	sl := 95.0
	open := []sim.Position{{
		ID:            "P1",
		Symbol:        "AAPL",
		Side:          sim.Long,
		Quantity:      10,
		EntryPrice:    100,
		StopLoss:      &sl,
		LinkedOrderID: "tool-1",
		OpenedAt:      time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Open:          true,
	}}
	acct := sim.Account{Balance: 9000, InitialBalance: 10000, RealizedPnL: -100}

	require.NoError(t, s.SaveState(ctx, acct, open))

	got, ok, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 9000, got.Balance, 1e-9)
	assert.InDelta(t, 10000, got.InitialBalance, 1e-9)
	assert.InDelta(t, -100, got.RealizedPnL, 1e-9)

	positions, err := s.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, sim.Long, p.Side)
	require.NotNil(t, p.StopLoss)
	assert.InDelta(t, 95, *p.StopLoss, 1e-9)
	assert.Nil(t, p.TakeProfit)
	assert.Equal(t, "tool-1", p.LinkedOrderID)
	assert.True(t, p.Open)
}

func TestSaveStateReplacesPositions(t *testing.T) {
	t.Parallel()

	s := newTestSnapshot(t, "sess-1")
	ctx := context.Background()
	acct := sim.Account{Balance: 10000, InitialBalance: 10000}
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.SaveState(ctx, acct, []sim.Position{
		{ID: "P1", Symbol: "AAPL", Side: sim.Long, Quantity: 10, EntryPrice: 100, OpenedAt: at, Open: true},
	}))
	// position closed: next save carries an empty open set
	require.NoError(t, s.SaveState(ctx, acct, nil))

	positions, err := s.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSessionResumeKeepsOpenPositions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	// first session: open a position, state saved through the engine
	first, err := NewSQLite(path, "S")
	require.NoError(t, err)
	e1 := sim.NewEngine(sim.EngineOptions{
		Store:    market.NewStore(market.StoreOptions{}),
		Account:  sim.NewAccount(10000),
		Snapshot: first,
	})
	_, _, err = e1.PlaceMarketOrder(ctx, sim.OrderRequest{
		Symbol: "AAPL", Side: sim.Long, Quantity: 10, Price: 100,
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// resume: restore account and open positions, then keep trading
	second, err := NewSQLite(path, "S")
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	acct, ok, err := second.LoadAccount(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	restored := acct

	e2 := sim.NewEngine(sim.EngineOptions{
		Store:    market.NewStore(market.StoreOptions{}),
		Account:  &restored,
		Snapshot: second,
	})
	positions, err := second.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.NoError(t, e2.RestorePositions(positions))

	_, _, err = e2.PlaceMarketOrder(ctx, sim.OrderRequest{
		Symbol: "EUR_USD", Side: sim.Short, Quantity: 100, Price: 1.10,
	})
	require.NoError(t, err)

	// the new session's first save must not wipe the restored position
	saved, err := second.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	symbols := []string{saved[0].Symbol, saved[1].Symbol}
	assert.Contains(t, symbols, "AAPL")
	assert.Contains(t, symbols, "EUR_USD")
}

func TestLoadAccountMissingSession(t *testing.T) {
	t.Parallel()

	s := newTestSnapshot(t, "sess-1")
	_, ok, err := s.LoadAccount(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionsIsolated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "shared.db")

	a, err := NewSQLite(path, "sess-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewSQLite(path, "sess-b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	key := market.Key{Symbol: "AAPL", Timeframe: market.M1}
	require.NoError(t, a.SaveSeries(ctx, key, sampleCandles(4)))

	loaded, err := b.LoadSeries(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
