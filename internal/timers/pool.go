// Package timers pools time.Timer values used for bounded waits on the hot path
// (acknowledgement waits in the connection manager).
package timers

import (
	"sync"
	"time"
)

var pool sync.Pool

// AcquireTimer returns a started timer from the pool.
func AcquireTimer(d time.Duration) *time.Timer {
	v := pool.Get()
	if v == nil {
		return time.NewTimer(d)
	}
	tm := v.(*time.Timer)
	if tm.Reset(d) {
		panic("active timer returned from pool")
	}
	return tm
}

// ReleaseTimer stops tm and puts it back to the pool. Timers which already fired
// are dropped since their channel may still hold a value.
func ReleaseTimer(tm *time.Timer) {
	if !tm.Stop() {
		return
	}
	pool.Put(tm)
}
