package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"fitbuddy/internal/broadcast"
	"fitbuddy/internal/config"
	"fitbuddy/internal/content"
	"fitbuddy/internal/eventbus"
	"fitbuddy/internal/eventbus/kafkasink"
	"fitbuddy/internal/jobs"
	"fitbuddy/internal/observability/ops"
	"fitbuddy/internal/recipients"
	"fitbuddy/internal/runtime/supervisor"
	"fitbuddy/internal/storage"
	"fitbuddy/internal/summary"
	"fitbuddy/internal/task/runner"
	"fitbuddy/internal/task/scheduler"
	"fitbuddy/internal/transport"
	"fitbuddy/internal/transport/telegram"
	logx "fitbuddy/pkg/logx"
)

// ErrNoTelegramToken is returned by Start, and by every send, when no bot token is configured.
var ErrNoTelegramToken = errors.New("telegram token is not configured (telegram.token or TELEGRAM_TOKEN)")

type App struct {
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.Mem
	store storage.Store

	sender    transport.Sender
	canSend   bool
	dir       *recipients.Directory
	gen       *content.Generator
	agg       *summary.Aggregator
	disp      *broadcast.Dispatcher
	runner    *runner.Runner
	sched     *scheduler.Scheduler
	jobs      *jobs.Set
	sup       *supervisor.Supervisor
	runStop   context.CancelFunc
	startedAt time.Time
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	var (
		sender  transport.Sender
		canSend bool
	)
	if cfg.Telegram.Token != "" {
		tg, err := telegram.New(mapTelegram(cfg), bootLog)
		if err != nil {
			return nil, err
		}
		sender, canSend = tg, true
	} else {
		sender = transport.SenderFunc(func(context.Context, transport.ChatTarget, string, *transport.SendOptions) error {
			return ErrNoTelegramToken
		})
	}

	logSvc, log := logx.New(mapLogging(cfg), sender)
	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(ctx, mapStorage(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	appLog.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	bus := eventbus.New()
	dir := recipients.New(store, log.With(logx.String("comp", "recipients")))
	gen := content.NewGenerator(
		content.NewClient(mapMistral(cfg)),
		content.DefaultPools().Merge(cfg.Content.Pools),
		log.With(logx.String("comp", "content")),
	)
	if cfg.Mistral.APIKey == "" {
		appLog.Warn("mistral api key not set; generated texts come from fallback pools")
	}
	agg := summary.New(store, gen, log.With(logx.String("comp", "summary")))
	disp := broadcast.New(mapBroadcast(cfg), dir, sender, bus, log.With(logx.String("comp", "broadcast")))
	run := runner.New(mapRunner(cfg), bus, log.With(logx.String("comp", "runner")))
	sched := scheduler.New(run, log.With(logx.String("comp", "scheduler")))
	set := jobs.New(disp, gen, agg, log.With(logx.String("comp", "jobs")))

	if err := set.Apply(sched, cfg.Jobs); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sender:  sender,
		canSend: canSend,
		dir:     dir,
		gen:     gen,
		agg:     agg,
		disp:    disp,
		runner:  run,
		sched:   sched,
		jobs:    set,
	}, nil
}

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if !a.canSend {
		return ErrNoTelegramToken
	}
	cfg := a.cfgm.Get()
	a.startedAt = time.Now()

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validateReload(c) })

	// Jobs get their own context so shutdown lets the current one finish.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.runStop = cancel
	a.runner.Start(runCtx)

	if cfg.Scheduler.Disabled {
		a.log.Info("scheduler disabled via config")
	} else {
		a.sched.Start(a.sup.Context())
	}

	if oc, ok := mapOps(cfg); ok {
		srv := ops.New(oc, a.Status, a.log.With(logx.String("comp", "ops")))
		a.sup.GoRestart("ops.http", srv.Run, 500*time.Millisecond, 30*time.Second)
	}

	if ec := cfg.Events; ec != nil && ec.Enabled {
		host, _ := os.Hostname()
		sink := kafkasink.New(a.bus, kafkasink.NewWriter(ec.Brokers, ec.Topic), host, a.log.With(logx.String("comp", "events")))
		a.sup.Go("events.kafka", sink.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, cfg, next)
				cfg = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("jobs", len(a.sched.Snapshot().Jobs)))
	return nil
}

// applyConfig pushes a reloaded config into the live components. Transport,
// storage, completion client, ops and events settings need a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	a.logs.Apply(mapLogging(next))
	a.disp.Apply(mapBroadcast(next))
	a.runner.Apply(mapRunner(next))

	if err := a.jobs.Apply(a.sched, next.Jobs); err != nil {
		a.log.Warn("some jobs were not updated", logx.Err(err))
	}

	switch {
	case a.sup == nil:
	case next.Scheduler.Disabled && a.sched.State() == scheduler.Running:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.log.Info("scheduler disabled via config")
	case !next.Scheduler.Disabled && a.sched.State() == scheduler.Stopped:
		a.sched.Start(ctx)
		a.log.Info("scheduler enabled via config")
	}

	if prev != nil && restartNeeded(prev, next) {
		a.log.Warn("transport, storage, mistral, ops or events config changed; restart required for changes to take effect")
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: map[string]string{"path": a.cfgm.Path()}})
}

func restartNeeded(a, b *config.Config) bool {
	if a.Telegram != b.Telegram || a.Storage != b.Storage || a.Mistral != b.Mistral {
		return true
	}
	if (a.Ops == nil) != (b.Ops == nil) || (a.Ops != nil && *a.Ops != *b.Ops) {
		return true
	}
	if (a.Events == nil) != (b.Events == nil) {
		return true
	}
	if a.Events != nil && (a.Events.Enabled != b.Events.Enabled || a.Events.Topic != b.Events.Topic ||
		fmt.Sprint(a.Events.Brokers) != fmt.Sprint(b.Events.Brokers)) {
		return true
	}
	return false
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// step runs one shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("runner", 30*time.Second, func(c context.Context) error { return a.runner.Stop(c) })
	if a.runStop != nil {
		a.runStop()
	}
	if a.sup != nil {
		step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Stop(c) })
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Summary builds last week's report without sending it.
func (a *App) Summary(ctx context.Context) (string, error) {
	return a.agg.Build(ctx)
}

// Broadcast sends text to every active recipient now.
func (a *App) Broadcast(ctx context.Context, name, text string) (broadcast.Result, error) {
	if !a.canSend {
		return broadcast.Result{}, ErrNoTelegramToken
	}
	return a.disp.Broadcast(ctx, name, text), nil
}

// RunJob executes one built-in job body in the caller's goroutine.
func (a *App) RunJob(ctx context.Context, id string) error {
	body, ok := a.jobs.Body(id)
	if !ok {
		return fmt.Errorf("unknown job %q", id)
	}
	if !a.canSend {
		return ErrNoTelegramToken
	}
	return body(ctx)
}

// Close releases what NewApp opened, for commands that never call Start.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
