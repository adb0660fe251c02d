// Package runner is the single execution context for job bodies.
//
// Enqueue may be called from any goroutine (the scheduler's timer side) and
// never blocks. One consumer goroutine takes firings off an unbounded FIFO and
// runs them one at a time, so every firing runs exactly once and firings of a
// job run in the order they were enqueued. This queue is the only hand-off
// between the timer side and job bodies.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"fitbuddy/internal/eventbus"
	"fitbuddy/internal/observability/metrics"
	logx "fitbuddy/pkg/logx"
)

type firing struct {
	job        Job
	seq        uint64
	enqueuedAt time.Time
}

type Runner struct {
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	cfg      Config
	queue    []firing
	pending  map[string]int // queued + running per job id
	current  string
	seq      uint64
	started  bool
	stopped  bool
	wake     chan struct{}
	done     chan struct{}
	executed uint64
	failed   uint64
	skipped  uint64
	history  []HistoryItem
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Runner {
	r := &Runner{
		log:     log,
		bus:     bus,
		pending: map[string]int{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	r.Apply(cfg)
	return r
}

// Apply swaps tunables; it takes effect from the next firing.
func (r *Runner) Apply(cfg Config) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// Enqueue hands a firing to the execution context. Firings enqueued before
// Start wait until the consumer runs.
func (r *Runner) Enqueue(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("runner: job %q has no body", j.ID)
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if j.Overlap == OverlapSkipIfPending && r.pending[j.ID] > 0 {
		r.skipped++
		r.mu.Unlock()
		r.log.Info("job skipped, previous firing pending", logx.String("job", j.ID))
		metrics.RecordJobRun(j.ID, "skipped", 0)
		r.publish(eventbus.JobSkipped, JobEvent{Job: j.ID})
		return ErrOverlapSkip
	}
	r.seq++
	r.queue = append(r.queue, firing{job: j, seq: r.seq, enqueuedAt: time.Now()})
	r.pending[j.ID]++
	depth := len(r.queue)
	r.mu.Unlock()

	metrics.SetQueueDepth(depth)
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start launches the consumer. ctx is the parent of every job context; it is
// not canceled by Stop, so an in-flight job is never interrupted.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.loop(ctx)
	r.log.Info("runner started")
}

// Stop refuses new firings, drops queued ones and waits for the running job
// (if any) to return, or for ctx to end.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	dropped := len(r.queue)
	for _, f := range r.queue {
		r.pending[f.job.ID]--
	}
	r.queue = nil
	started := r.started
	r.mu.Unlock()

	metrics.SetQueueDepth(0)
	select {
	case r.wake <- struct{}{}:
	default:
	}
	if dropped > 0 {
		r.log.Warn("runner stopped with queued firings", logx.Int("dropped", dropped))
	}
	if !started {
		return nil
	}
	select {
	case <-r.done:
		r.log.Info("runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	for {
		f, ok := r.next()
		if !ok {
			return
		}
		r.exec(ctx, f)
	}
}

// next blocks until a firing is available or the runner is stopped.
func (r *Runner) next() (firing, bool) {
	for {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return firing{}, false
		}
		if len(r.queue) > 0 {
			f := r.queue[0]
			r.queue[0] = firing{}
			r.queue = r.queue[1:]
			r.current = f.job.ID
			depth := len(r.queue)
			r.mu.Unlock()
			metrics.SetQueueDepth(depth)
			return f, true
		}
		r.mu.Unlock()
		<-r.wake
	}
}

func (r *Runner) exec(parent context.Context, f firing) {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()

	start := time.Now()
	delay := start.Sub(f.enqueuedAt)
	log := r.log.With(logx.String("job", f.job.ID), logx.Uint64("seq", f.seq))
	log.Debug("job started", logx.Duration("queue_delay", delay))
	r.publish(eventbus.JobStarted, JobEvent{Job: f.job.ID, Seq: f.seq, Started: start, QueueDelay: delay})

	timeout := f.job.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	ctx := parent
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}

	outcome := "ok"
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				outcome = "panic"
				log.Error("job panicked", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return f.job.Run(ctx)
	}()
	timedOut := ctx.Err() == context.DeadlineExceeded
	cancel()

	took := time.Since(start)
	item := HistoryItem{Job: f.job.ID, Started: start, QueueDelay: delay, Duration: took}
	ev := JobEvent{Job: f.job.ID, Seq: f.seq, Started: start, QueueDelay: delay, Duration: took}
	if err != nil {
		if outcome == "ok" {
			outcome = "error"
			if timedOut {
				outcome = "timeout"
			}
		}
		item.Error = err.Error()
		ev.Error = item.Error
		log.Error("job failed", logx.Err(err), logx.Duration("took", took))
		r.publish(eventbus.JobFailed, ev)
	} else {
		log.Info("job finished", logx.Duration("took", took))
		r.publish(eventbus.JobFinished, ev)
	}
	metrics.RecordJobRun(f.job.ID, outcome, took)

	r.mu.Lock()
	r.current = ""
	r.pending[f.job.ID]--
	if r.pending[f.job.ID] <= 0 {
		delete(r.pending, f.job.ID)
	}
	r.executed++
	if err != nil {
		r.failed++
	}
	r.history = append(r.history, item)
	if over := len(r.history) - cfg.HistorySize; over > 0 {
		r.history = append([]HistoryItem(nil), r.history[over:]...)
	}
	r.mu.Unlock()
}

func (r *Runner) publish(typ string, ev JobEvent) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Running:  r.started && !r.stopped,
		Current:  r.current,
		QueueLen: len(r.queue),
		Executed: r.executed,
		Failed:   r.failed,
		Skipped:  r.skipped,
		History:  append([]HistoryItem(nil), r.history...),
	}
}
