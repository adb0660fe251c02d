package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func stopCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoRecordsPanic(t *testing.T) {
	s := New(context.Background())
	s.Go("boom", func(context.Context) error { panic("x") })
	err := s.Stop(stopCtx(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 1, snap[0].Panics)
	require.False(t, snap[0].Running)
}

func TestCancelIsCleanStop(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, s.Stop(stopCtx(t)))
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("bad", func(context.Context) error { return errors.New("nope") })
	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled")
	}
	require.Error(t, s.Stop(stopCtx(t)))
}

func TestGoRestartRetries(t *testing.T) {
	s := New(context.Background())
	var calls atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, 5*time.Millisecond)

	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(stopCtx(t)))
	require.Equal(t, 2, s.Snapshot()[0].Restarts)
}
