package eventsource

import (
	"math"
	"time"
)

// Policy controls reconnection backoff.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Heartbeat bounds how long an open stream may stay silent.
	Heartbeat time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   1.5,
		Heartbeat:    90 * time.Second,
	}
}

// Delay is the wait before reconnect attempt n (0-indexed):
// min(MaxDelay, InitialDelay * Multiplier^n).
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
