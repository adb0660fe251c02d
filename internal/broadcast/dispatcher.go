// Package broadcast delivers one text to every current recipient.
//
// A failed send is logged and counted; it never stops delivery to the
// remaining recipients and is never retried.
package broadcast

import (
	"context"
	"sync"
	"time"

	"fitbuddy/internal/eventbus"
	"fitbuddy/internal/observability/metrics"
	"fitbuddy/internal/transport"
	logx "fitbuddy/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxFailuresKept = 200

// Directory lists the recipients of a broadcast.
type Directory interface {
	ListActive(ctx context.Context) []int64
}

type Config struct {
	// Concurrency bounds parallel sends within one broadcast; <= 1 sends sequentially.
	Concurrency int
	// SendTimeout bounds a single send; 0 means no per-send bound.
	SendTimeout time.Duration
	HistorySize int
}

type Result struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Failures   []int64   `json:"failures,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Dispatcher struct {
	dir    Directory
	sender transport.Sender
	bus    eventbus.Bus
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	history []Result
}

func New(cfg Config, dir Directory, sender transport.Sender, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	d := &Dispatcher{dir: dir, sender: sender, bus: bus, log: log}
	d.Apply(cfg)
	return d
}

// Apply swaps tunables; it affects broadcasts that start afterwards.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	d.mu.Lock()
	d.cfg = cfg
	if over := len(d.history) - cfg.HistorySize; over > 0 {
		d.history = append([]Result(nil), d.history[over:]...)
	}
	d.mu.Unlock()
}

// Broadcast sends text to every recipient listed at call time and blocks
// until each has had exactly one attempt.
func (d *Dispatcher) Broadcast(ctx context.Context, name, text string) Result {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	res := Result{ID: uuid.NewString(), Name: name, StartedAt: time.Now().UTC()}
	ids := d.dir.ListActive(ctx)
	log := d.log.With(logx.String("broadcast", res.ID), logx.String("name", name))
	log.Debug("broadcast started", logx.Int("recipients", len(ids)))

	var mu sync.Mutex
	record := func(id int64, err error) {
		metrics.RecordSend(err == nil)
		mu.Lock()
		defer mu.Unlock()
		res.Attempted++
		if err == nil {
			res.Succeeded++
			return
		}
		res.Failed++
		if len(res.Failures) < maxFailuresKept {
			res.Failures = append(res.Failures, id)
		}
		log.Warn("broadcast send failed", logx.Int64("chat_id", id), logx.Err(err))
	}

	if cfg.Concurrency <= 1 {
		for _, id := range ids {
			record(id, d.sendOne(ctx, cfg, id, text))
		}
	} else {
		// Workers never return an error, so the group only bounds parallelism.
		var g errgroup.Group
		g.SetLimit(cfg.Concurrency)
		for _, id := range ids {
			g.Go(func() error {
				record(id, d.sendOne(ctx, cfg, id, text))
				return nil
			})
		}
		_ = g.Wait()
	}

	res.FinishedAt = time.Now().UTC()
	fields := []logx.Field{
		logx.Int("attempted", res.Attempted),
		logx.Int("succeeded", res.Succeeded),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	}
	if res.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}

	d.remember(res, cfg.HistorySize)
	metrics.RecordBroadcastFinished(res.FinishedAt)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Time: res.FinishedAt, Data: res})
	}
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, cfg Config, id int64, text string) (err error) {
	if cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
		defer cancel()
	}
	// A panicking sender counts as a failed send for that recipient only.
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{v: r}
		}
	}()
	return d.sender.SendText(ctx, transport.ChatTarget{ChatID: id}, text, nil)
}

func (d *Dispatcher) remember(r Result, limit int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, r)
	if over := len(d.history) - limit; over > 0 {
		d.history = append([]Result(nil), d.history[over:]...)
	}
}

// History returns finished broadcasts, newest last.
func (d *Dispatcher) History() []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Result(nil), d.history...)
}
