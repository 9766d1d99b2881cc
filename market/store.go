package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxCandles caps the length of each series; oldest candles are
	// evicted first.
	DefaultMaxCandles = 2000

	// DefaultGuardPercent is the maximum relative deviation (in percent) a
	// live tick may have from the last close before it is discarded.
	DefaultGuardPercent = 5.0
)

// Persister stores and restores candle series across restarts. Implementations
// must be safe for repeated saves of the same key.
type Persister interface {
	SaveSeries(ctx context.Context, key Key, candles []Candle) error
	LoadSeries(ctx context.Context) (map[Key][]Candle, error)
	DeleteSeries(ctx context.Context, key Key) error
}

// ReplayGate is the read-side replay view over the store. While the gate is
// active, Read is filtered to candles at or before the cursor and live ticks
// are dropped (replay is a closed-world view of history, not a live feed).
type ReplayGate interface {
	Active() bool
	Cursor() (time.Time, bool)
}

// StoreOptions configures a Store. Zero values fall back to defaults;
// GuardDisabled switches the tick deviation guard off entirely, which a
// zero GuardPercent alone does not (that means "use the default").
type StoreOptions struct {
	MaxCandles    int
	GuardPercent  float64
	GuardDisabled bool
	Persister     Persister
	Logger        *logrus.Logger
}

// Store owns one candle series per (symbol, timeframe) key. All mutation goes
// through MergeHistorical and ApplyTick; Read never mutates.
type Store struct {
	mu      sync.RWMutex
	series  map[Key]*Series
	max     int
	guard   float64 // fraction, e.g. 0.05
	persist Persister
	gate    ReplayGate
	log     *logrus.Logger

	rejectedTicks  int64
	invalidCandles int64
}

func NewStore(opts StoreOptions) *Store {
	max := opts.MaxCandles
	if max <= 0 {
		max = DefaultMaxCandles
	}
	guard := opts.GuardPercent
	if guard <= 0 {
		guard = DefaultGuardPercent
	}
	if opts.GuardDisabled {
		guard = 0
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		series:  make(map[Key]*Series),
		max:     max,
		guard:   guard / 100,
		persist: opts.Persister,
		log:     log,
	}
}

// SetReplayGate installs the replay cursor filter. Passing nil removes it.
func (s *Store) SetReplayGate(g ReplayGate) {
	s.mu.Lock()
	s.gate = g
	s.mu.Unlock()
}

// Load restores all persisted series. Call once at session start, before any
// merge or tick is applied.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	loaded, err := s.persist.LoadSeries(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, candles := range loaded {
		sr := &Series{Key: key}
		sr.merge(candles, s.max)
		sr.dirty = false
		s.series[key] = sr
	}
	return nil
}

// MergeHistorical merges candles into the series for key. New values overwrite
// old on timestamp collision; the series is re-sorted and truncated to the
// max-length cap from the oldest end. Candles violating the OHLC invariant are
// rejected per-item (joined into the returned error) without aborting the rest
// of the batch. The merged series is persisted; a persistence failure is
// logged as a warning and does not undo the in-memory merge.
func (s *Store) MergeHistorical(ctx context.Context, key Key, candles []Candle) (int, error) {
	if !key.Timeframe.Valid() {
		return 0, fmt.Errorf("merge %s: invalid timeframe", key)
	}

	valid := make([]Candle, 0, len(candles))
	var invalid []error
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			invalid = append(invalid, err)
			continue
		}
		valid = append(valid, c)
	}

	s.mu.Lock()
	sr, ok := s.series[key]
	if !ok {
		sr = &Series{Key: key}
		s.series[key] = sr
	}
	added := sr.merge(valid, s.max)
	s.invalidCandles += int64(len(invalid))
	snapshot := append([]Candle(nil), sr.Candles...)
	genAt := sr.gen
	s.mu.Unlock()

	if len(invalid) > 0 {
		s.log.WithFields(logrus.Fields{
			"key":      key.String(),
			"rejected": len(invalid),
		}).Warn("historical merge rejected malformed candles")
	}

	if s.persist != nil && len(valid) > 0 {
		if err := s.persist.SaveSeries(ctx, key, snapshot); err != nil {
			s.log.WithField("key", key.String()).WithError(err).Warn("series persist failed")
		} else {
			// The save ran with the lock released. Clear dirty only if no
			// tick or merge landed on the series since the snapshot was
			// taken; otherwise the newer state still needs a Flush.
			s.mu.Lock()
			if sr, ok := s.series[key]; ok && sr.gen == genAt {
				sr.dirty = false
			}
			s.mu.Unlock()
		}
	}

	return added, errors.Join(invalid...)
}

// TickStatus reports what happened to a live tick.
type TickStatus int

const (
	// TickApplied means the last candle was updated.
	TickApplied TickStatus = iota
	// TickNoData means no series (or an empty one) exists for the key.
	TickNoData
	// TickRejected means the deviation guard discarded the tick.
	TickRejected
	// TickIgnoredReplay means a replay view is active and live ticks are dropped.
	TickIgnoredReplay
)

// ApplyTick folds a live tick into the last candle of the series for key.
// Empty series: no-op. A tick whose price deviates from the last close by more
// than the guard threshold is discarded and counted; it must never produce a
// mega-candle. The update is intentionally not persisted per tick; call Flush.
func (s *Store) ApplyTick(key Key, t Tick) TickStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate != nil && s.gate.Active() {
		return TickIgnoredReplay
	}

	sr, ok := s.series[key]
	if !ok {
		return TickNoData
	}
	last := sr.last()
	if last == nil {
		return TickNoData
	}

	if s.guard > 0 && last.Close != 0 {
		dev := math.Abs(t.Price-last.Close) / math.Abs(last.Close)
		if dev > s.guard {
			s.rejectedTicks++
			s.log.WithFields(logrus.Fields{
				"key":   key.String(),
				"price": t.Price,
				"close": last.Close,
			}).Warn("tick rejected by deviation guard")
			return TickRejected
		}
	}

	if t.Price > last.High {
		last.High = t.Price
	}
	if t.Price < last.Low {
		last.Low = t.Price
	}
	last.Close = t.Price
	sr.LastUpdated = t.Time
	sr.dirty = true
	sr.gen++
	return TickApplied
}

// Read returns a copy of the stored sequence for key, filtered by the replay
// cursor when replay is engaged.
func (s *Store) Read(key Key) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[key]
	if !ok {
		return nil
	}

	candles := sr.Candles
	if s.gate != nil && s.gate.Active() {
		if cursor, set := s.gate.Cursor(); set {
			n := sort.Search(len(candles), func(i int) bool {
				return candles[i].Time.After(cursor)
			})
			candles = candles[:n]
		}
	}

	out := make([]Candle, len(candles))
	copy(out, candles)
	return out
}

// HasData reports whether key has at least one stored candle.
func (s *Store) HasData(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[key]
	return ok && len(sr.Candles) > 0
}

// TimeRange returns the earliest and latest stored timestamps for key.
func (s *Store) TimeRange(key Key) (from, to time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, found := s.series[key]
	if !found || len(sr.Candles) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return sr.Candles[0].Time, sr.Candles[len(sr.Candles)-1].Time, true
}

// Keys lists every series key currently held.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	return keys
}

// Reset drops the series for key, in memory and in the persister.
func (s *Store) Reset(ctx context.Context, key Key) error {
	s.mu.Lock()
	delete(s.series, key)
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.DeleteSeries(ctx, key); err != nil {
			return fmt.Errorf("reset %s: %w", key, err)
		}
	}
	return nil
}

// Flush persists every series with unsaved tick updates.
func (s *Store) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	s.mu.Lock()
	type pending struct {
		key     Key
		candles []Candle
	}
	var dirty []pending
	for key, sr := range s.series {
		if !sr.dirty {
			continue
		}
		dirty = append(dirty, pending{key, append([]Candle(nil), sr.Candles...)})
		sr.dirty = false
	}
	s.mu.Unlock()

	var errs []error
	for _, p := range dirty {
		if err := s.persist.SaveSeries(ctx, p.key, p.candles); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", p.key, err))
		}
	}
	return errors.Join(errs...)
}

// RejectedTicks returns the number of ticks dropped by the deviation guard.
func (s *Store) RejectedTicks() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejectedTicks
}

// InvalidCandles returns the number of malformed candles rejected on merge.
func (s *Store) InvalidCandles() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidCandles
}
