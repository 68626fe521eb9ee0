// Package loop runs callbacks serially on a single goroutine.
//
// Timers created through a Loop deliver their callbacks onto the loop
// goroutine. Stopping a timer from the loop guarantees that its callback
// never runs afterwards, even when the underlying runtime timer had already
// fired and queued a delivery.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when work is submitted to a loop that has exited.
var ErrClosed = errors.New("event loop is not running")

// DefaultBacklog is the task queue size used when New receives a non-positive value.
const DefaultBacklog = 64

// Loop is a single-goroutine task executor.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a loop with the supplied task backlog.
func New(backlog int) *Loop {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Loop{
		tasks: make(chan func(), backlog),
		done:  make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is cancelled. A loop runs at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn for execution on the loop. It reports false when the loop has exited.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
// It must not be invoked from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (l *Loop) close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// Timer is a one-shot or periodic callback bound to a loop.
// Stop and Stopped must only be called from the loop goroutine.
type Timer struct {
	stopped bool
	timer   *time.Timer
	quit    chan struct{}
}

// AfterFunc schedules fn to run on the loop once d has elapsed.
// It must be called from the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Every schedules fn to run on the loop every d until the timer is stopped.
// It must be called from the loop goroutine.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	t := &Timer{quit: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.Post(func() {
					if t.stopped {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}

// Stop releases the timer. Deliveries already queued on the loop are discarded.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.quit != nil {
		close(t.quit)
	}
}

// Stopped reports whether the timer was stopped or, for one-shot timers, has fired.
func (t *Timer) Stopped() bool {
	return t == nil || t.stopped
}
