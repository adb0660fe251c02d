package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fitbuddy/internal/broadcast"
	"fitbuddy/internal/config"
	"fitbuddy/internal/content"
	"fitbuddy/internal/task/runner"
	"fitbuddy/internal/task/scheduler"
	logx "fitbuddy/pkg/logx"

	"github.com/stretchr/testify/require"
)

type sent struct{ name, text string }

type fakeOut struct{ msgs []sent }

func (f *fakeOut) Broadcast(_ context.Context, name, text string) broadcast.Result {
	f.msgs = append(f.msgs, sent{name, text})
	return broadcast.Result{}
}

type fakeWriter struct{}

func (fakeWriter) Generate(_ context.Context, _ string, c content.Category) string {
	return "gen:" + string(c)
}
func (fakeWriter) Pick(c content.Category) string { return "pick:" + string(c) }

type fakeReport struct {
	text string
	err  error
}

func (f fakeReport) Build(context.Context) (string, error) { return f.text, f.err }

type fakeReg struct {
	registered map[string]string
	removed    []string
}

func (f *fakeReg) Register(id string, t scheduler.Trigger, _ func(context.Context) error, _ ...scheduler.JobOption) error {
	f.registered[id] = t.String()
	return nil
}

func (f *fakeReg) Remove(id string) bool {
	f.removed = append(f.removed, id)
	return true
}

func TestBodies(t *testing.T) {
	out := &fakeOut{}
	s := New(out, fakeWriter{}, fakeReport{text: "Runs: 2"}, logx.Nop())
	ctx := context.Background()

	require.NoError(t, s.Motivation(ctx))
	require.NoError(t, s.EveningQuestion(ctx))
	require.NoError(t, s.WeeklySummary(ctx))
	require.NoError(t, s.MorningRoutine(ctx))

	require.Equal(t, []sent{
		{config.JobMotivation, "gen:motivation"},
		{config.JobEveningQuestion, "pick:evening-question"},
		{config.JobWeeklySummary, "Runs: 2"},
		{config.JobMorningRoutine, "Good morning! Today's exercise: gen:morning-exercise\nQuestion of the day: gen:question-of-day"},
	}, out.msgs)
}

func TestWeeklySummaryFailureSkipsBroadcast(t *testing.T) {
	out := &fakeOut{}
	s := New(out, fakeWriter{}, fakeReport{err: errors.New("db down")}, logx.Nop())
	require.Error(t, s.WeeklySummary(context.Background()))
	require.Empty(t, out.msgs)
}

func TestApply(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	off := false
	cfg.Jobs[config.JobMorningRoutine] = config.JobConfig{Enabled: &off, Schedule: "daily@07:00"}
	cfg.Jobs["mystery"] = config.JobConfig{Schedule: "1h"}

	reg := &fakeReg{registered: map[string]string{}}
	s := New(&fakeOut{}, fakeWriter{}, fakeReport{}, logx.Nop())
	err := s.Apply(reg, cfg.Jobs)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "mystery"))

	require.Equal(t, map[string]string{
		config.JobMotivation:      "now+every:3h0m0s",
		config.JobEveningQuestion: "daily@18:00",
		config.JobWeeklySummary:   "weekly@sun 18:00",
	}, reg.registered)
	require.Equal(t, []string{config.JobMorningRoutine}, reg.removed)
}

func TestApplyBadSchedule(t *testing.T) {
	reg := &fakeReg{registered: map[string]string{}}
	s := New(&fakeOut{}, fakeWriter{}, fakeReport{}, logx.Nop())
	err := s.Apply(reg, map[string]config.JobConfig{config.JobMotivation: {Schedule: "whenever"}})
	require.ErrorIs(t, err, scheduler.ErrInvalidTrigger)
	require.Empty(t, reg.registered)
}

type countingOut struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *countingOut) Broadcast(_ context.Context, name, _ string) broadcast.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[name]++
	return broadcast.Result{}
}

func (c *countingOut) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

func TestReapplySameDefinitionsDoesNotRefire(t *testing.T) {
	run := runner.New(runner.Config{}, nil, logx.Nop())
	run.Start(context.Background())
	defer func() { _ = run.Stop(context.Background()) }()

	sched := scheduler.New(run, logx.Nop())
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	out := &countingOut{n: map[string]int{}}
	s := New(out, fakeWriter{}, fakeReport{}, logx.Nop())
	defs := map[string]config.JobConfig{config.JobMotivation: {Schedule: "now+every:3h"}}

	require.NoError(t, s.Apply(sched, defs))
	require.Eventually(t, func() bool { return out.count(config.JobMotivation) == 1 }, 2*time.Second, 10*time.Millisecond)

	// a reload that only touched other sections hands over equal job definitions
	require.NoError(t, s.Apply(sched, map[string]config.JobConfig{config.JobMotivation: {Schedule: "now+every:3h"}}))
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, out.count(config.JobMotivation))
}
