package feed

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/rustyeddy/papertrader/market"
)

const candleCSV = `time,open,high,low,close,volume
2026-03-02T09:00:00Z,100,101,99,100.5,10
2026-03-02T09:01:00Z,100.5,102,100,101.5,12
2026-03-02T09:02:00Z,101.5,101.8,101,101.2,8
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCandlesCSV(t *testing.T) {
	t.Parallel()

	candles, err := LoadCandles(writeFile(t, "bars.csv", candleCSV))
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), candles[0].Time)
	assert.InDelta(t, 100.5, candles[0].Close, 1e-9)
	assert.InDelta(t, 102, candles[1].High, 1e-9)
	assert.InDelta(t, 8, candles[2].Volume, 1e-9)
}

func TestLoadCandlesNoHeader(t *testing.T) {
	t.Parallel()

	candles, err := LoadCandles(writeFile(t, "bars.csv",
		"2026-03-02T09:00:00Z,100,101,99,100.5,10\n"))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.InDelta(t, 100, candles[0].Open, 1e-9)
}

func TestLoadCandlesEmptyFileIsNoData(t *testing.T) {
	t.Parallel()

	candles, err := LoadCandles(writeFile(t, "empty.csv", ""))
	assert.NoError(t, err)
	assert.Empty(t, candles)
}

func TestLoadCandlesBadRow(t *testing.T) {
	t.Parallel()

	_, err := LoadCandles(writeFile(t, "bars.csv",
		"2026-03-02T09:00:00Z,100,101\n"))
	assert.Error(t, err)

	_, err = LoadCandles(writeFile(t, "bars2.csv",
		"not-a-time,100,101,99,100.5,10\n"))
	assert.Error(t, err)
}

func TestLoadCandlesXZ(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv.xz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := xz.NewWriter(f)
	require.NoError(t, err)
	_, err = w.Write([]byte(candleCSV))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	candles, err := LoadCandles(path)
	require.NoError(t, err)
	assert.Len(t, candles, 3)
}

func TestLoadCandlesZip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	// two members, out of chronological order across files
	later, err := zw.Create("day2.csv")
	require.NoError(t, err)
	_, err = later.Write([]byte("2026-03-03T09:00:00Z,101,102,100,101.5,7\n"))
	require.NoError(t, err)

	earlier, err := zw.Create("day1.csv")
	require.NoError(t, err)
	_, err = earlier.Write([]byte(candleCSV))
	require.NoError(t, err)

	readme, err := zw.Create("README.txt")
	require.NoError(t, err)
	_, err = readme.Write([]byte("not candle data"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	candles, err := LoadCandles(path)
	require.NoError(t, err)
	require.Len(t, candles, 4)
	assert.True(t, candles[0].Time.Before(candles[3].Time), "members merged in time order")
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), candles[3].Time)
}

func TestLoadInto(t *testing.T) {
	t.Parallel()

	store := market.NewStore(market.StoreOptions{})
	key := market.Key{Symbol: "AAPL", Timeframe: market.M1}

	added, err := LoadInto(context.Background(), store, key, writeFile(t, "bars.csv", candleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Len(t, store.Read(key), 3)

	// empty source leaves the store untouched
	added, err = LoadInto(context.Background(), store, key, writeFile(t, "none.csv", ""))
	require.NoError(t, err)
	assert.Zero(t, added)
}
