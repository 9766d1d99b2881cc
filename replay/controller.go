// Package replay implements historical playback over the candle store.
//
// A Controller is a read-side cursor: while it is active the store filters
// reads to candles at or before the cursor and drops live ticks. Playback
// only ever moves the cursor; it never synthesizes ticks into the live path.
package replay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/papertrader/market"
)

// DefaultStep is the wall-clock time per cursor step at speed 1.0.
const DefaultStep = 100 * time.Millisecond

// State is a snapshot of the controller, safe to hand to callers.
type State struct {
	Active    bool
	Key       market.Key
	Cursor    time.Time
	CursorSet bool
	Playing   bool
	Speed     float64
}

// Controller drives replay over one series at a time. It implements the
// store's ReplayGate, so constructing one installs the cursor filter.
type Controller struct {
	mu    sync.Mutex
	store *market.Store
	log   *logrus.Logger
	step  time.Duration

	active    bool
	key       market.Key
	cursor    time.Time
	cursorSet bool
	playing   bool
	speed     float64
	cancel    context.CancelFunc
}

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	Store  *market.Store
	Step   time.Duration
	Logger *logrus.Logger
}

func NewController(opts Options) *Controller {
	step := opts.Step
	if step <= 0 {
		step = DefaultStep
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Controller{
		store: opts.Store,
		step:  step,
		log:   log,
	}
	if opts.Store != nil {
		opts.Store.SetReplayGate(c)
	}
	return c
}

// Active reports whether replay mode is on. Part of market.ReplayGate.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Cursor returns the replay cursor. Part of market.ReplayGate. ok is false
// when the cursor was never set, in which case reads are unfiltered.
func (c *Controller) Cursor() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.cursorSet
}

// Enter switches replay on for key. The cursor starts at the beginning of
// the stored series; entering with no stored data leaves the cursor unset.
func (c *Controller) Enter(key market.Key) {
	// Query the store before taking c.mu: the store calls back into this
	// controller under its own lock, so holding both inverts the lock order.
	var from time.Time
	haveData := false
	if c.store != nil {
		from, _, haveData = c.store.TimeRange(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = true
	c.key = key
	c.cursorSet = false
	c.cursor = time.Time{}

	if haveData {
		c.cursor = from
		c.cursorSet = true
	} else {
		c.log.WithField("key", key.String()).Debug("replay: no data for key, cursor unset")
	}
}

// Exit switches replay off and stops playback. The cursor is discarded.
func (c *Controller) Exit() {
	c.mu.Lock()
	c.active = false
	c.cursorSet = false
	c.cursor = time.Time{}
	c.stopLocked()
	c.mu.Unlock()
}

// SetCursor jumps the cursor to t. Valid only while active.
func (c *Controller) SetCursor(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.cursor = t
	c.cursorSet = true
}

// Play starts advancing the cursor one timeframe step per wall-clock step,
// scaled by speed (2.0 = twice as fast). It returns immediately; playback
// runs until Pause, Exit, series end, or ctx cancellation. Calling Play
// while already playing restarts with the new speed.
func (c *Controller) Play(ctx context.Context, speed float64) {
	if speed <= 0 {
		speed = 1.0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || !c.cursorSet {
		return
	}
	c.stopLocked()

	interval := time.Duration(float64(c.step) / speed)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.playing = true
	c.speed = speed

	go c.run(runCtx, c.key, interval)
}

// Pause halts playback, keeping the cursor where it is.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Active:    c.active,
		Key:       c.key,
		Cursor:    c.cursor,
		CursorSet: c.cursorSet,
		Playing:   c.playing,
		Speed:     c.speed,
	}
}

// stopLocked cancels any running playback goroutine. Caller holds c.mu.
func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.playing = false
}

func (c *Controller) run(ctx context.Context, key market.Key, interval time.Duration) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	stepSize := key.Timeframe.Duration()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		// Same lock-order rule as Enter: never call the store under c.mu.
		var end time.Time
		haveEnd := false
		if c.store != nil {
			_, end, haveEnd = c.store.TimeRange(key)
		}

		c.mu.Lock()
		if !c.active || !c.playing || c.key != key {
			c.mu.Unlock()
			return
		}
		next := c.cursor.Add(stepSize)
		if haveEnd && !next.Before(end) {
			c.cursor = end
			c.stopLocked()
			c.mu.Unlock()
			c.log.WithField("key", key.String()).Debug("replay: reached end of series")
			return
		}
		c.cursor = next
		c.mu.Unlock()
	}
}
