// Package feed adapts external data sources to the engine: historical candle
// files for the market store, and scripted tick/event files for driving a
// whole session end to end.
package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/xyproto/unzip"

	"github.com/rustyeddy/papertrader/market"
)

// LoadCandles reads historical bars from path. The format is CSV with
// columns time,open,high,low,close,volume (RFC3339 timestamps), optionally
// compressed: ".xz" streams are decompressed inline, ".zip" archives are
// extracted and every ".csv" member is read. An empty file means no data
// available, not an error.
func LoadCandles(path string) ([]market.Candle, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		return loadXZ(path)
	case ".zip":
		return loadZip(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readCandleCSV(f)
	}
}

// LoadInto loads candles from path and merges them into the store.
func LoadInto(ctx context.Context, store *market.Store, key market.Key, path string) (int, error) {
	candles, err := LoadCandles(path)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	return store.MergeHistorical(ctx, key, candles)
}

func loadXZ(path string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open xz stream %s: %w", path, err)
	}
	return readCandleCSV(r)
}

func loadZip(path string) ([]market.Candle, error) {
	dir, err := os.MkdirTemp("", "candles-zip-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := unzip.Extract(path, dir); err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	var all []market.Candle
	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.ToLower(filepath.Ext(p)) != ".csv" {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		candles, err := readCandleCSV(f)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		all = append(all, candles...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	return all, nil
}

func readCandleCSV(r io.Reader) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	firstRow, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []market.Candle
	hasHeader := len(firstRow) > 0 && strings.EqualFold(strings.TrimSpace(firstRow[0]), "time")
	if !hasHeader {
		c, err := parseCandleRow(firstRow)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}

func parseCandleRow(row []string) (market.Candle, error) {
	var c market.Candle
	if len(row) < 6 {
		return c, fmt.Errorf("bad row (need time,open,high,low,close,volume): %v", row)
	}

	t, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
	if err != nil {
		return c, fmt.Errorf("bad time %q: %w", row[0], err)
	}

	vals := make([]float64, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return c, fmt.Errorf("bad %s %q: %w", names[i], row[i+1], err)
		}
		vals[i] = v
	}

	c = market.Candle{
		Time:   t.UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}
	return c, nil
}
