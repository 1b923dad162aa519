package reconnect

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyDefaults(t *testing.T) {
	p := New(0, 0)
	require.Equal(t, DefaultMaxAttempts, p.MaxAttempts())
	require.Equal(t, DefaultBaseDelay, p.BaseDelay())
}

func TestPolicyLinearBackoffAndCeiling(t *testing.T) {
	p := New(3, time.Hour)
	defer p.Reset()

	for k := 1; k <= 3; k++ {
		delay, ok := p.Schedule(func() {})
		require.True(t, ok)
		require.Equal(t, time.Duration(k)*time.Hour, delay)
		require.Equal(t, k, p.Attempts())
		require.True(t, p.Pending())
	}

	_, ok := p.Schedule(func() {})
	require.False(t, ok)
	require.False(t, p.Pending())

	_, ok = p.Schedule(func() {})
	require.False(t, ok)
}

func TestPolicyFires(t *testing.T) {
	p := New(5, 10*time.Millisecond)
	fired := make(chan struct{}, 1)
	_, ok := p.Schedule(func() { fired <- struct{}{} })
	require.True(t, ok)

	select {
	case <-fired:
	case <-time.After(time.Second):
		require.Fail(t, "retry not fired")
	}
	require.False(t, p.Pending())
	require.Equal(t, 1, p.Attempts())
}

func TestPolicySingleTimer(t *testing.T) {
	p := New(5, 20*time.Millisecond)
	var first, second atomic.Int32
	_, ok := p.Schedule(func() { first.Add(1) })
	require.True(t, ok)
	_, ok = p.Schedule(func() { second.Add(1) })
	require.True(t, ok)

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), first.Load())
}

func TestPolicyCancel(t *testing.T) {
	p := New(5, 10*time.Millisecond)
	var fired atomic.Bool
	_, ok := p.Schedule(func() { fired.Store(true) })
	require.True(t, ok)
	p.Cancel()
	require.False(t, p.Pending())
	require.Equal(t, 1, p.Attempts())
	time.Sleep(40 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestPolicyReset(t *testing.T) {
	p := New(2, time.Hour)
	p.Schedule(func() {})
	p.Schedule(func() {})
	_, ok := p.Schedule(func() {})
	require.False(t, ok)

	p.Reset()
	require.Equal(t, 0, p.Attempts())
	delay, ok := p.Schedule(func() {})
	require.True(t, ok)
	require.Equal(t, time.Hour, delay)
	p.Reset()
	require.False(t, p.Pending())
}
