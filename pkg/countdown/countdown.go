// Package countdown implements the pending-delay entity used for delayed
// screenshots: a periodic tick that reports the remaining time and a terminal
// fire, both owned by one cancellable handle.
package countdown

import (
	"errors"
	"time"

	"github.com/offlinefirst/framegrab/pkg/loop"
)

// DefaultTick is the cadence at which remaining time is reported.
const DefaultTick = 100 * time.Millisecond

// Options configure a countdown.
type Options struct {
	Total  time.Duration
	Tick   time.Duration
	OnTick func(remaining time.Duration)
	OnFire func()
}

// Countdown is a scheduled capture. All methods must be called from the loop
// goroutine that started it; callbacks are delivered on that goroutine too.
type Countdown struct {
	total     time.Duration
	tick      time.Duration
	remaining time.Duration
	ticker    *loop.Timer
	fire      *loop.Timer
	done      bool
	fired     bool
}

// Start schedules a countdown on l. Total must be positive.
func Start(l *loop.Loop, opts Options) (*Countdown, error) {
	if l == nil {
		return nil, errors.New("countdown requires an event loop")
	}
	if opts.Total <= 0 {
		return nil, errors.New("countdown total must be positive")
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	c := &Countdown{
		total:     opts.Total,
		tick:      tick,
		remaining: opts.Total,
	}
	c.ticker = l.Every(tick, func() {
		if c.done {
			return
		}
		c.remaining -= c.tick
		if c.remaining < 0 {
			c.remaining = 0
		}
		if opts.OnTick != nil {
			opts.OnTick(c.remaining)
		}
	})
	c.fire = l.AfterFunc(opts.Total, func() {
		if c.done {
			return
		}
		c.release()
		c.fired = true
		c.remaining = 0
		if opts.OnFire != nil {
			opts.OnFire()
		}
	})
	return c, nil
}

// Cancel releases both the periodic tick and the terminal fire. It is
// idempotent and a no-op once the countdown has fired.
func (c *Countdown) Cancel() {
	if c == nil {
		return
	}
	c.release()
}

func (c *Countdown) release() {
	if c.done {
		return
	}
	c.done = true
	c.ticker.Stop()
	c.fire.Stop()
}

// Total reports the originally requested delay.
func (c *Countdown) Total() time.Duration { return c.total }

// Remaining reports the time left as last recomputed by a tick.
func (c *Countdown) Remaining() time.Duration { return c.remaining }

// Active reports whether either timer is still held.
func (c *Countdown) Active() bool { return c != nil && !c.done }

// Fired reports whether the terminal fire executed.
func (c *Countdown) Fired() bool { return c != nil && c.fired }
