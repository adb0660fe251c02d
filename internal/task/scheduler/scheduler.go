// Package scheduler owns the timer side of the engine: it keeps job
// definitions, arms them on a robfig/cron instance evaluated in UTC and hands
// every firing to the runner. It never waits for a job body.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"fitbuddy/internal/task/runner"
	logx "fitbuddy/pkg/logx"

	"github.com/robfig/cron/v3"
)

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Enqueuer receives firings; runner.Runner implements it.
type Enqueuer interface {
	Enqueue(j runner.Job) error
}

type JobOption func(*def)

func WithTimeout(d time.Duration) JobOption { return func(x *def) { x.timeout = d } }

func WithOverlap(p runner.OverlapPolicy) JobOption { return func(x *def) { x.overlap = p } }

type def struct {
	id      string
	trigger Trigger
	run     func(ctx context.Context) error
	timeout time.Duration
	overlap runner.OverlapPolicy
	gen     uint64
	entry   cron.EntryID
	fired   uint64
}

type Scheduler struct {
	log  logx.Logger
	exec Enqueuer

	mu    sync.Mutex
	state State
	c     *cron.Cron
	halt  chan struct{} // closed by Stop; ends the ctx watcher of the current run
	defs  map[string]*def
	gen   uint64
}

func New(exec Enqueuer, log logx.Logger) *Scheduler {
	return &Scheduler{log: log, exec: exec, defs: map[string]*def{}}
}

// Register adds or replaces the job with this id. It may be called in either
// state; a stopped scheduler arms the job on Start. Replacing a job removes
// its previous trigger before the new one is armed.
//
// Registering a job with the same trigger, timeout and overlap it already has
// only swaps the body: the armed entry keeps its next firing time, so an
// immediate interval does not fire again.
func (s *Scheduler) Register(id string, t Trigger, run func(ctx context.Context) error, opts ...JobOption) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("scheduler: job id required")
	}
	if t == nil || run == nil {
		return errors.New("scheduler: trigger and body required")
	}
	if c, ok := t.(Calendar); ok {
		if err := c.validate(); err != nil {
			return err
		}
	}

	d := &def{id: id, trigger: t, run: run}
	for _, o := range opts {
		o(d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.defs[id]; ok && cur.sameAs(d) {
		cur.run = d.run
		s.log.Debug("job unchanged", logx.String("job", id), logx.String("trigger", t.String()))
		return nil
	}

	s.removeLocked(id)
	s.gen++
	d.gen = s.gen
	s.defs[id] = d
	if s.state == Running {
		s.armLocked(d)
	}
	s.log.Info("job registered", logx.String("job", id), logx.String("trigger", t.String()), logx.String("state", s.state.String()))
	return nil
}

// Remove drops the job. Firings already handed to the runner still run.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Scheduler) removeLocked(id string) bool {
	d, ok := s.defs[id]
	if !ok {
		return false
	}
	if s.c != nil && d.entry != 0 {
		s.c.Remove(d.entry)
	}
	delete(s.defs, id)
	return true
}

func (d *def) sameAs(o *def) bool {
	return d.trigger.String() == o.trigger.String() && d.timeout == o.timeout && d.overlap == o.overlap
}

func (s *Scheduler) armLocked(d *def) {
	id, gen := d.id, d.gen
	d.entry = s.c.Schedule(d.trigger.schedule(), cron.FuncJob(func() { s.fire(id, gen) }))
}

// fire runs on cron's goroutine. A firing from a replaced, removed or
// stopped registration is dropped.
func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	d, ok := s.defs[id]
	if !ok || d.gen != gen || s.state != Running {
		s.mu.Unlock()
		return
	}
	d.fired++
	job := runner.Job{ID: d.id, Run: d.run, Timeout: d.timeout, Overlap: d.overlap}
	s.mu.Unlock()

	if err := s.exec.Enqueue(job); err != nil {
		if errors.Is(err, runner.ErrOverlapSkip) {
			return
		}
		s.log.Warn("job hand-off failed", logx.String("job", id), logx.Err(err))
	}
}

// Start arms every registered job. Calling it while running is a no-op.
// The scheduler stops by itself once ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return
	}
	s.c = cron.New(cron.WithLocation(time.UTC), cron.WithParser(cronParser))
	for _, d := range s.defs {
		s.armLocked(d)
	}
	s.state = Running
	s.halt = make(chan struct{})
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.defs)))

	if done := ctx.Done(); done != nil {
		halt := s.halt
		go func() {
			select {
			case <-done:
				s.stop(context.Background(), halt)
			case <-halt:
			}
		}()
	}
}

// Stop cancels all pending firings. Job bodies already handed to the runner
// are not interrupted. Definitions are kept for a later Start.
func (s *Scheduler) Stop(ctx context.Context) { s.stop(ctx, nil) }

// stop with a non-nil halt only stops the run that channel belongs to.
func (s *Scheduler) stop(ctx context.Context, halt chan struct{}) {
	s.mu.Lock()
	if halt != nil && halt != s.halt {
		s.mu.Unlock()
		return
	}
	if s.halt != nil {
		close(s.halt)
		s.halt = nil
	}
	c := s.c
	s.c = nil
	s.state = Stopped
	for _, d := range s.defs {
		d.entry = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type Entry struct {
	ID      string    `json:"id"`
	Trigger string    `json:"trigger"`
	Overlap string    `json:"overlap"`
	Fired   uint64    `json:"fired"`
	Next    time.Time `json:"next,omitzero"`
	Prev    time.Time `json:"prev,omitzero"`
}

type Snapshot struct {
	State string  `json:"state"`
	Jobs  []Entry `json:"jobs"`
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{State: s.state.String(), Jobs: make([]Entry, 0, len(s.defs))}
	for _, d := range s.defs {
		e := Entry{ID: d.id, Trigger: d.trigger.String(), Overlap: d.overlap.String(), Fired: d.fired}
		if s.c != nil && d.entry != 0 {
			ce := s.c.Entry(d.entry)
			e.Next, e.Prev = ce.Next, ce.Prev
		}
		out.Jobs = append(out.Jobs, e)
	}
	sort.Slice(out.Jobs, func(i, j int) bool { return out.Jobs[i].ID < out.Jobs[j].ID })
	return out
}
