package market

import (
	"sort"
	"time"
)

// Series is the timestamp-ordered, deduplicated candle list for one Key.
// It is created on first historical load and mutated only through the Store.
type Series struct {
	Key         Key
	Candles     []Candle
	LastUpdated time.Time

	// dirty marks unsaved changes; gen counts every mutation so a persist
	// that ran with the lock released can tell whether a tick landed in the
	// meantime before it clears dirty.
	dirty bool
	gen   int64
}

// merge folds candles into the series by timestamp. New values win on
// collision. The slice is re-sorted and truncated from the oldest end to max.
// Callers must have validated the candles already.
func (s *Series) merge(candles []Candle, max int) int {
	if len(candles) == 0 {
		return 0
	}

	byTime := make(map[int64]int, len(s.Candles))
	for i, c := range s.Candles {
		byTime[c.Time.Unix()] = i
	}

	added := 0
	for _, c := range candles {
		if i, ok := byTime[c.Time.Unix()]; ok {
			s.Candles[i] = c
			continue
		}
		byTime[c.Time.Unix()] = len(s.Candles)
		s.Candles = append(s.Candles, c)
		added++
	}

	sort.Slice(s.Candles, func(i, j int) bool {
		return s.Candles[i].Time.Before(s.Candles[j].Time)
	})

	if max > 0 && len(s.Candles) > max {
		s.Candles = append(s.Candles[:0:0], s.Candles[len(s.Candles)-max:]...)
	}

	s.LastUpdated = time.Now().UTC()
	s.dirty = true
	s.gen++
	return added
}

// last returns a pointer to the newest candle, or nil for an empty series.
func (s *Series) last() *Candle {
	if len(s.Candles) == 0 {
		return nil
	}
	return &s.Candles[len(s.Candles)-1]
}
