package app

import (
	"time"

	"fitbuddy/internal/broadcast"
	"fitbuddy/internal/runtime/supervisor"
	"fitbuddy/internal/task/runner"
	"fitbuddy/internal/task/scheduler"
)

// Status is the document served at /jobs and printed by "fitbuddy jobs".
type Status struct {
	Uptime        string              `json:"uptime,omitempty"`
	Scheduler     scheduler.Snapshot  `json:"scheduler"`
	Runner        runner.Snapshot     `json:"runner"`
	Broadcasts    []broadcast.Result  `json:"broadcasts"`
	Workers       []supervisor.Worker `json:"workers,omitempty"`
	EventsDropped uint64              `json:"events_dropped"`
}

func (a *App) Status() any { return a.Snapshot() }

func (a *App) Snapshot() Status {
	st := Status{
		Scheduler:     a.sched.Snapshot(),
		Runner:        a.runner.Snapshot(),
		Broadcasts:    a.disp.History(),
		EventsDropped: a.bus.Dropped(),
	}
	if a.sup != nil {
		st.Workers = a.sup.Snapshot()
	}
	if !a.startedAt.IsZero() {
		st.Uptime = time.Since(a.startedAt).Truncate(time.Second).String()
	}
	return st
}
