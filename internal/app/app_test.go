package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fitbuddy/internal/config"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", filepath.ToSlash(dir))
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestApp(t *testing.T, body string) *App {
	t.Helper()
	t.Setenv(config.EnvTelegramToken, "")
	t.Setenv(config.EnvMistralKey, "")
	t.Setenv(config.EnvDatabaseURL, "")

	a, err := NewApp(context.Background(), writeConfig(t, body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

const baseConfig = `{
  "logging": {"level": "error"},
  "storage": {"driver": "sqlite", "path": "$DIR/test.db"},
  "jobs": {"morning_routine": {"enabled": false}}
}`

func TestNewAppRegistersJobs(t *testing.T) {
	a := newTestApp(t, baseConfig)

	st := a.Snapshot()
	require.Equal(t, "stopped", st.Scheduler.State)

	var ids []string
	for _, j := range st.Scheduler.Jobs {
		ids = append(ids, j.ID)
	}
	require.Equal(t, []string{config.JobEveningQuestion, config.JobMotivation, config.JobWeeklySummary}, ids)
}

func TestStartRequiresToken(t *testing.T) {
	a := newTestApp(t, baseConfig)
	require.ErrorIs(t, a.Start(context.Background()), ErrNoTelegramToken)
	require.ErrorIs(t, a.RunJob(context.Background(), config.JobMotivation), ErrNoTelegramToken)

	_, err := a.Broadcast(context.Background(), "manual", "hi")
	require.ErrorIs(t, err, ErrNoTelegramToken)
}

func TestRunJobUnknown(t *testing.T) {
	a := newTestApp(t, baseConfig)
	require.Error(t, a.RunJob(context.Background(), "nope"))
}

func TestSummaryOnEmptyStore(t *testing.T) {
	a := newTestApp(t, baseConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := a.Summary(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "Runs: 0")
	require.Contains(t, text, "Distance: 0.00 km")
}

func TestApplyConfigUpdatesJobs(t *testing.T) {
	a := newTestApp(t, baseConfig)
	prev := a.Config()

	off := false
	next := *prev
	next.Jobs = map[string]config.JobConfig{
		config.JobMotivation:      {Enabled: &off},
		config.JobEveningQuestion: {Schedule: "daily@19:30"},
		config.JobWeeklySummary:   {Schedule: "weekly@sun 18:00"},
		config.JobMorningRoutine:  {Schedule: "daily@06:00"},
	}
	a.applyConfig(context.Background(), prev, &next)

	got := map[string]string{}
	for _, j := range a.Snapshot().Scheduler.Jobs {
		got[j.ID] = j.Trigger
	}
	require.NotContains(t, got, config.JobMotivation)
	require.Contains(t, got, config.JobMorningRoutine)
	require.Len(t, got, 3)
}

func TestValidateReload(t *testing.T) {
	off := false
	cfg := &config.Config{Jobs: map[string]config.JobConfig{
		"a": {Schedule: "daily@18:00"},
		"b": {Schedule: "garbage", Enabled: &off},
	}}
	require.NoError(t, validateReload(cfg))

	cfg.Jobs["c"] = config.JobConfig{Schedule: "daily@25:00"}
	require.Error(t, validateReload(cfg))

	cfg.Jobs["c"] = config.JobConfig{Schedule: "3h", Overlap: "sometimes"}
	require.Error(t, validateReload(cfg))
}

func TestRestartNeeded(t *testing.T) {
	a := &config.Config{Ops: &config.OpsConfig{Enabled: true, Addr: "127.0.0.1:9090"}}
	b := *a
	ops := *a.Ops
	b.Ops = &ops
	require.False(t, restartNeeded(a, &b))

	b.Broadcast.Concurrency = 4
	require.False(t, restartNeeded(a, &b))

	ops.Addr = "127.0.0.1:9191"
	require.True(t, restartNeeded(a, &b))

	c := *a
	c.Events = &config.EventsConfig{Enabled: true, Brokers: []string{"k:9092"}, Topic: "t"}
	require.True(t, restartNeeded(a, &c))
}
