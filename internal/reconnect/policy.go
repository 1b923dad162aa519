// Package reconnect decides if and when to retry after an unplanned disconnect.
package reconnect

import (
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 3 * time.Second
)

// Policy schedules at most one pending retry with linear backoff. The k-th retry
// since the last successful connect is delayed by BaseDelay*k. Once attempts exceed
// MaxAttempts nothing is scheduled anymore until Reset.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration

	mu       sync.Mutex
	attempts int
	timer    *time.Timer
	// seq invalidates timers that were replaced or cancelled but fired anyway.
	seq uint64
}

// New creates Policy. Non-positive arguments fall back to defaults.
func New(maxAttempts int, baseDelay time.Duration) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Policy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts ...
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// BaseDelay ...
func (p *Policy) BaseDelay() time.Duration {
	return p.baseDelay
}

// Attempts returns number of retries scheduled since the last Reset.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Pending reports whether a retry timer is armed.
func (p *Policy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Schedule registers a retry. It returns the delay and true when fn was scheduled,
// or false when attempts are exhausted. Any previously pending retry is cancelled.
// fn runs on its own goroutine.
func (p *Policy) Schedule(fn func()) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.attempts++
	if p.attempts > p.maxAttempts {
		return 0, false
	}
	delay := p.baseDelay * time.Duration(p.attempts)
	seq := p.seq
	p.timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		if p.seq != seq {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.seq++
		p.mu.Unlock()
		fn()
	})
	return delay, true
}

// Cancel stops a pending retry without touching the attempt counter.
func (p *Policy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Reset cancels a pending retry and zeroes the attempt counter. Called on every
// successful connect and on explicit disconnect.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.attempts = 0
}

func (p *Policy) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.seq++
}
