package timers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fired(tm *time.Timer, within time.Duration) bool {
	select {
	case <-tm.C:
		return true
	case <-time.After(within):
		return false
	}
}

func TestAcquireTimer(t *testing.T) {
	t.Run("fires after duration", func(t *testing.T) {
		tm := AcquireTimer(10 * time.Millisecond)
		require.True(t, fired(tm, 200*time.Millisecond))
		ReleaseTimer(tm)
	})

	t.Run("not fired immediately", func(t *testing.T) {
		tm := AcquireTimer(100 * time.Millisecond)
		require.False(t, fired(tm, 10*time.Millisecond))
		ReleaseTimer(tm)
	})

	t.Run("release stops timer", func(t *testing.T) {
		tm := AcquireTimer(30 * time.Millisecond)
		ReleaseTimer(tm)
		require.False(t, fired(tm, 60*time.Millisecond))
	})

	t.Run("pooled timer is reusable", func(t *testing.T) {
		ReleaseTimer(AcquireTimer(time.Minute))
		tm := AcquireTimer(10 * time.Millisecond)
		require.True(t, fired(tm, 200*time.Millisecond))
		ReleaseTimer(tm)
	})
}

func TestTimersConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm := AcquireTimer(5 * time.Millisecond)
			fired(tm, 20*time.Millisecond)
			ReleaseTimer(tm)
		}()
	}
	wg.Wait()
}
