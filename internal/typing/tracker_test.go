package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type expiries struct {
	mu    sync.Mutex
	peers []int64
}

func (e *expiries) add(peerID int64) {
	e.mu.Lock()
	e.peers = append(e.peers, peerID)
	e.mu.Unlock()
}

func (e *expiries) get() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.peers...)
}

func TestTrackerExpires(t *testing.T) {
	var e expiries
	tr := NewTracker(20*time.Millisecond, e.add)
	tr.Arm(7)
	require.True(t, tr.Active(7))

	require.Eventually(t, func() bool { return len(e.get()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{7}, e.get())
	require.False(t, tr.Active(7))
	require.Equal(t, 0, tr.Len())
}

func TestTrackerRearmSingleExpiry(t *testing.T) {
	var e expiries
	tr := NewTracker(40*time.Millisecond, e.add)
	for i := 0; i < 5; i++ {
		tr.Arm(7)
		time.Sleep(10 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(e.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, []int64{7}, e.get())
}

func TestTrackerCancel(t *testing.T) {
	var e expiries
	tr := NewTracker(20*time.Millisecond, e.add)
	tr.Arm(7)
	tr.Arm(8)
	tr.Cancel(7)
	require.False(t, tr.Active(7))
	require.True(t, tr.Active(8))

	require.Eventually(t, func() bool { return len(e.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, []int64{8}, e.get())

	// Cancelling an unknown peer is a no-op.
	tr.Cancel(100)
}

func TestTrackerCancelAll(t *testing.T) {
	var e expiries
	tr := NewTracker(20*time.Millisecond, e.add)
	tr.Arm(1)
	tr.Arm(2)
	tr.Arm(3)
	require.Equal(t, 3, tr.Len())
	tr.CancelAll()
	require.Equal(t, 0, tr.Len())
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, e.get())
}

func TestTrackerDefaultQuietPeriod(t *testing.T) {
	tr := NewTracker(0, nil)
	require.Equal(t, DefaultQuietPeriod, tr.quiet)
}
