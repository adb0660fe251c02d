// Package summary builds the weekly activity report.
package summary

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fitbuddy/internal/content"
	"fitbuddy/internal/storage"
	logx "fitbuddy/pkg/logx"
)

// RunSource is the storage capability the aggregator needs.
type RunSource interface {
	RunsBetween(ctx context.Context, start, end time.Time) ([]storage.Activity, error)
}

// Advisor supplies the advice line; content.Generator satisfies it.
type Advisor interface {
	Generate(ctx context.Context, prompt string, category content.Category) string
}

type Summary struct {
	RunCount      int
	TotalDistance float64
	TotalCalories float64
	WindowStart   time.Time
	WindowEnd     time.Time
}

// Text is the numeric part of the report.
func (s Summary) Text() string {
	return fmt.Sprintf("Runs: %d\nDistance: %.2f km\nCalories: %s",
		s.RunCount, s.TotalDistance, strconv.FormatFloat(s.TotalCalories, 'f', -1, 64))
}

type Aggregator struct {
	runs    RunSource
	advisor Advisor
	log     logx.Logger
	now     func() time.Time
}

type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

func New(runs RunSource, advisor Advisor, log logx.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{runs: runs, advisor: advisor, log: log, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Window returns the Monday-to-Sunday UTC week before the week containing now.
// Both bounds are inclusive; end is Sunday 23:59:59.999999.
//
// Membership is decided at microsecond precision. The stores keep timestamps
// as whole microseconds (sqlite writes at.UnixMicro(), which truncates; pgx
// truncates the same way when encoding timestamptz), so a run logged at
// 23:59:59.9999995 on Sunday is stored as end and still counts.
func Window(now time.Time) (start, end time.Time) {
	now = now.UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start = today.AddDate(0, 0, -(daysSinceMonday + 7))
	end = start.AddDate(0, 0, 6).Add(24*time.Hour - time.Microsecond)
	return start, end
}

// Compute aggregates the runs of the previous full week.
func (a *Aggregator) Compute(ctx context.Context) (Summary, error) {
	start, end := Window(a.now())
	s := Summary{WindowStart: start, WindowEnd: end}
	runs, err := a.runs.RunsBetween(ctx, start, end)
	if err != nil {
		return s, fmt.Errorf("summary: load runs: %w", err)
	}
	for _, r := range runs {
		s.RunCount++
		s.TotalDistance += r.DistanceKM
		s.TotalCalories += r.Calories
	}
	return s, nil
}

// Compose renders the broadcast text, asking the advisor for a closing tip.
func (a *Aggregator) Compose(ctx context.Context, s Summary) string {
	stats := s.Text()
	prompt := "Weekly summary:\n" + stats + "\nGive a short, friendly two-line piece of advice for next week."
	advice := a.advisor.Generate(ctx, prompt, content.WeeklyAdvice)
	return fmt.Sprintf("Weekly summary (%s to %s):\n%s\n\nAdvice:\n%s",
		s.WindowStart.Format(time.DateOnly), s.WindowEnd.Format(time.DateOnly), stats, advice)
}

// Build is Compute followed by Compose.
func (a *Aggregator) Build(ctx context.Context) (string, error) {
	s, err := a.Compute(ctx)
	if err != nil {
		return "", err
	}
	a.log.Debug("weekly summary computed",
		logx.Int("runs", s.RunCount),
		logx.Float64("km", s.TotalDistance),
		logx.Time("start", s.WindowStart),
	)
	return a.Compose(ctx, s), nil
}
