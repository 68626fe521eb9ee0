// Package elapsed tracks wall-clock time since a capture session started.
package elapsed

import (
	"fmt"
	"time"

	"github.com/offlinefirst/framegrab/pkg/loop"
)

// DefaultInterval is the display refresh cadence.
const DefaultInterval = time.Second

// Options configure a Timer.
type Options struct {
	Clock    func() time.Time
	Interval time.Duration
	// OnUpdate receives the current elapsed value at every display refresh.
	OnUpdate func(time.Duration)
}

// Timer keeps a single origin timestamp and derives elapsed time on demand.
// Start, Stop and the periodic updates must be driven from the loop goroutine.
type Timer struct {
	loop     *loop.Loop
	clock    func() time.Time
	interval time.Duration
	onUpdate func(time.Duration)

	start   time.Time
	stopped time.Time
	running bool
	ticker  *loop.Timer
}

// New constructs an idle timer bound to l. A nil loop disables periodic updates.
func New(l *loop.Loop, opts Options) *Timer {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{
		loop:     l,
		clock:    clock,
		interval: interval,
		onUpdate: opts.OnUpdate,
	}
}

// Start records the origin and begins periodic display updates.
func (t *Timer) Start() {
	t.Stop()
	t.start = t.clock()
	t.stopped = time.Time{}
	t.running = true
	if t.loop != nil && t.onUpdate != nil {
		t.ticker = t.loop.Every(t.interval, func() {
			t.onUpdate(t.Elapsed())
		})
	}
}

// Stop freezes the elapsed value and releases the display ticker.
func (t *Timer) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.running {
		t.stopped = t.clock()
		t.running = false
	}
}

// Running reports whether the timer has been started and not stopped.
func (t *Timer) Running() bool { return t.running }

// StartedAt returns the origin timestamp, zero when never started.
func (t *Timer) StartedAt() time.Time { return t.start }

// Elapsed computes now minus start. After Stop it reports the frozen value.
func (t *Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	end := t.stopped
	if t.running {
		end = t.clock()
	}
	d := end.Sub(t.start)
	if d < 0 {
		return 0
	}
	return d
}

// Snapshot returns the instantaneous elapsed value used to stamp screenshots.
func (t *Timer) Snapshot() time.Duration {
	return t.Elapsed()
}

// Format renders d as HH:MM:SS.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
