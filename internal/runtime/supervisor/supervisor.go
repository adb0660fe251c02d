// Package supervisor runs the long-lived goroutines of the process (runner
// consumer, config watcher, ops server, event sinks) under one context, with
// panic recovery and optional restart.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "fitbuddy/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg       sync.WaitGroup
	mu       sync.Mutex
	firstErr error
	workers  map[string]*Worker
}

// Worker is the observable state of one named goroutine.
type Worker struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Restarts  int       `json:"restarts"`
	Panics    int       `json:"panics"`
	StartedAt time.Time `json:"started_at"`
	LastErr   string    `json:"last_err,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the shared context on the first goroutine failure.
func WithCancelOnError(on bool) Option { return func(s *Supervisor) { s.cancelOnErr = on } }

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, workers: map[string]*Worker{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Go runs fn once. A returned error (other than context cancellation) or a
// panic is recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.begin(name, false)
		err := s.call(name, fn)
		s.end(name, err)
		if err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// GoRestart runs fn and restarts it after an error or panic with exponential
// backoff, until the context is canceled. A nil return ends the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, minWait, maxWait time.Duration) {
	if minWait <= 0 {
		minWait = 250 * time.Millisecond
	}
	maxWait = max(maxWait, minWait)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wait := minWait
		for attempt := 0; ; attempt++ {
			s.begin(name, attempt > 0)
			started := time.Now()
			err := s.call(name, fn)
			s.end(name, err)
			if err == nil || s.ctx.Err() != nil {
				return
			}
			if time.Since(started) > 30*time.Second {
				wait = minWait
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			wait = min(wait*2, maxWait)
		}
	}()
}

func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.workers[name].Panics++
			s.mu.Unlock()
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = fn(s.ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Supervisor) begin(name string, restart bool) {
	s.mu.Lock()
	w := s.workers[name]
	if w == nil {
		w = &Worker{Name: name}
		s.workers[name] = w
	}
	w.Running = true
	w.StartedAt = time.Now()
	if restart {
		w.Restarts++
	}
	s.mu.Unlock()
	s.log.Debug("goroutine started", logx.String("name", name))
}

func (s *Supervisor) end(name string, err error) {
	s.mu.Lock()
	w := s.workers[name]
	w.Running = false
	if err != nil {
		w.LastErr = err.Error()
	}
	s.mu.Unlock()
	s.log.Debug("goroutine stopped", logx.String("name", name))
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
	s.log.Error("goroutine failed", logx.Err(err))
	if s.cancelOnErr {
		s.cancel()
	}
}

// Snapshot lists workers sorted by name.
func (s *Supervisor) Snapshot() []Worker {
	s.mu.Lock()
	out := make([]Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop cancels the context and waits for all goroutines or ctx, whichever first.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}
