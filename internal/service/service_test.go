package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerStopsAllOnReturn(t *testing.T) {
	m := NewManager()
	stopped := make(chan struct{})
	m.Register(
		Func("blocking", func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}),
		Func("short", func(ctx context.Context) error {
			return nil
		}),
	)
	m.Run(context.Background())
	require.NoError(t, m.Wait())
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("blocking service was not stopped")
	}
}

func TestManagerReturnsError(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	m.Register(
		Func("failing", func(ctx context.Context) error { return boom }),
		Func("blocking", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	m.Run(context.Background())
	require.ErrorIs(t, m.Wait(), boom)
}

func TestManagerParentCancel(t *testing.T) {
	m := NewManager()
	m.Register(Func("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	m.Run(ctx)
	cancel()
	require.NoError(t, m.Wait())
}

func TestManagerEmpty(t *testing.T) {
	m := NewManager()
	m.Run(context.Background())
	require.NoError(t, m.Wait())
}
