package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fitbuddy/internal/eventbus"
	logx "fitbuddy/pkg/logx"

	"github.com/stretchr/testify/require"
)

func startRunner(t *testing.T, cfg Config, bus eventbus.Bus) *Runner {
	t.Helper()
	r := New(cfg, bus, logx.Nop())
	r.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return r
}

func waitExecuted(t *testing.T, r *Runner, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Snapshot().Executed >= n }, 2*time.Second, 5*time.Millisecond)
}

func TestFIFOExactlyOnce(t *testing.T) {
	r := New(Config{}, nil, logx.Nop())

	var mu sync.Mutex
	var order []int
	for i := range 20 {
		id := "a"
		if i%2 == 1 {
			id = "b"
		}
		require.NoError(t, r.Enqueue(Job{ID: id, Run: func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}}))
	}
	// enqueued before Start: nothing runs yet
	require.Equal(t, 20, r.Snapshot().QueueLen)

	r.Start(context.Background())
	defer r.Stop(context.Background())
	waitExecuted(t, r, 20)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestFailuresAreContained(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()
	r := startRunner(t, Config{}, bus)

	ran := make(chan string, 3)
	require.NoError(t, r.Enqueue(Job{ID: "panics", Run: func(context.Context) error { panic("boom") }}))
	require.NoError(t, r.Enqueue(Job{ID: "errors", Run: func(context.Context) error { return errors.New("bad") }}))
	require.NoError(t, r.Enqueue(Job{ID: "fine", Run: func(context.Context) error { ran <- "fine"; return nil }}))

	require.Equal(t, "fine", <-ran)
	waitExecuted(t, r, 3)
	snap := r.Snapshot()
	require.Equal(t, uint64(2), snap.Failed)
	require.Len(t, snap.History, 3)
	require.Contains(t, snap.History[0].Error, "panic: boom")
	require.Equal(t, "bad", snap.History[1].Error)
	require.Empty(t, snap.History[2].Error)

	var types []string
	for len(types) < 6 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	require.Equal(t, []string{
		eventbus.JobStarted, eventbus.JobFailed,
		eventbus.JobStarted, eventbus.JobFailed,
		eventbus.JobStarted, eventbus.JobFinished,
	}, types)
}

func TestSingleExecutionContext(t *testing.T) {
	r := startRunner(t, Config{}, nil)

	var mu sync.Mutex
	active, maxActive := 0, 0
	body := func(context.Context) error {
		mu.Lock()
		active++
		maxActive = max(maxActive, active)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Enqueue(Job{ID: "slow", Run: body})
		}()
	}
	wg.Wait()
	waitExecuted(t, r, 10)
	require.Equal(t, 1, maxActive)
}

func TestSkipIfPending(t *testing.T) {
	r := startRunner(t, Config{}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, r.Enqueue(Job{ID: "motivation", Overlap: OverlapSkipIfPending, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	err := r.Enqueue(Job{ID: "motivation", Overlap: OverlapSkipIfPending, Run: func(context.Context) error { return nil }})
	require.ErrorIs(t, err, ErrOverlapSkip)
	// other jobs and queue-policy firings are unaffected
	require.NoError(t, r.Enqueue(Job{ID: "motivation", Run: func(context.Context) error { return nil }}))
	require.NoError(t, r.Enqueue(Job{ID: "other", Overlap: OverlapSkipIfPending, Run: func(context.Context) error { return nil }}))

	close(release)
	waitExecuted(t, r, 3)
	require.Equal(t, uint64(1), r.Snapshot().Skipped)

	require.NoError(t, r.Enqueue(Job{ID: "motivation", Overlap: OverlapSkipIfPending, Run: func(context.Context) error { return nil }}))
	waitExecuted(t, r, 4)
}

func TestTimeout(t *testing.T) {
	r := startRunner(t, Config{DefaultTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, r.Enqueue(Job{ID: "hang", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	waitExecuted(t, r, 1)
	require.Equal(t, context.DeadlineExceeded.Error(), r.Snapshot().History[0].Error)
}

func TestStop(t *testing.T) {
	r := New(Config{}, nil, logx.Nop())
	r.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, r.Enqueue(Job{ID: "inflight", Run: func(context.Context) error {
		close(started)
		<-release
		close(finished)
		return nil
	}}))
	queuedRan := false
	require.NoError(t, r.Enqueue(Job{ID: "queued", Run: func(context.Context) error { queuedRan = true; return nil }}))
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- r.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return errors.Is(r.Enqueue(Job{ID: "late", Run: func(context.Context) error { return nil }}), ErrStopped)
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-stopped)
	<-finished
	require.False(t, queuedRan)
	require.False(t, r.Snapshot().Running)
}

func TestParseOverlap(t *testing.T) {
	p, err := ParseOverlap("skip")
	require.NoError(t, err)
	require.Equal(t, OverlapSkipIfPending, p)
	p, err = ParseOverlap("")
	require.NoError(t, err)
	require.Equal(t, OverlapQueue, p)
	_, err = ParseOverlap("parallel")
	require.Error(t, err)
}
