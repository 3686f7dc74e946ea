package timer

import (
	"sync"
	"time"
)

type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Countdown is a restartable one-shot timer. onExpire runs at most once per
// Start and never after Cancel or a later Start/Reset.
type Countdown struct {
	duration  time.Duration
	onExpire  func()
	afterFunc AfterFunc

	mu       sync.Mutex
	last     time.Time
	pending  Stopper
	gen      uint64
	finished bool
}

type Option func(*Countdown)

func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Countdown) { c.afterFunc = fn }
}

func NewCountdown(d time.Duration, onExpire func(), ts time.Time, opts ...Option) *Countdown {
	c := &Countdown{
		duration:  d,
		onExpire:  onExpire,
		afterFunc: realAfterFunc,
		last:      ts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
}

func (c *Countdown) startLocked() {
	c.stopLocked()
	c.finished = false
	gen := c.gen
	c.pending = c.afterFunc(c.duration, func() { c.fire(gen) })
}

// Reset restarts the countdown for an event at ts. Events older than the
// newest one already seen are ignored and Reset reports false.
func (c *Countdown) Reset(ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts.Before(c.last) {
		return false
	}
	c.last = ts
	c.startLocked()
	return true
}

// Cancel stops the countdown without running onExpire. Safe to repeat.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

func (c *Countdown) stopLocked() {
	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Countdown) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.pending = nil
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
}
