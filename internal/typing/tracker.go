// Package typing auto-expires "is typing" signals when the sender goes quiet.
package typing

import (
	"sync"
	"time"
)

// DefaultQuietPeriod after which an armed peer is reported as not typing.
const DefaultQuietPeriod = 3 * time.Second

type slot struct {
	timer *time.Timer
}

// Tracker keeps at most one timer per peer. When a timer fires its slot is removed
// and the expire callback is called with the peer id.
type Tracker struct {
	quiet    time.Duration
	onExpire func(peerID int64)

	mu    sync.Mutex
	slots map[int64]*slot
}

// NewTracker creates Tracker. onExpire runs on the timer goroutine.
func NewTracker(quiet time.Duration, onExpire func(peerID int64)) *Tracker {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Tracker{
		quiet:    quiet,
		onExpire: onExpire,
		slots:    make(map[int64]*slot),
	}
}

// Arm (re)starts the peer's quiet period.
func (t *Tracker) Arm(peerID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(peerID)
	s := &slot{}
	s.timer = time.AfterFunc(t.quiet, func() {
		t.expire(peerID, s)
	})
	t.slots[peerID] = s
}

func (t *Tracker) expire(peerID int64, s *slot) {
	t.mu.Lock()
	if t.slots[peerID] != s {
		// Re-armed or cancelled after this timer had already fired.
		t.mu.Unlock()
		return
	}
	delete(t.slots, peerID)
	t.mu.Unlock()
	if t.onExpire != nil {
		t.onExpire(peerID)
	}
}

// Cancel clears the peer's timer. It emits nothing.
func (t *Tracker) Cancel(peerID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(peerID)
}

// CancelAll clears timers of all peers.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for peerID := range t.slots {
		t.stopLocked(peerID)
	}
}

// Active reports whether the peer has an armed timer.
func (t *Tracker) Active(peerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.slots[peerID]
	return ok
}

// Len returns number of armed peers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

func (t *Tracker) stopLocked(peerID int64) {
	if s, ok := t.slots[peerID]; ok {
		s.timer.Stop()
		delete(t.slots, peerID)
	}
}
