// Package jobs holds the bodies of the built-in notification jobs and
// registers them with the scheduler from config.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fitbuddy/internal/broadcast"
	"fitbuddy/internal/config"
	"fitbuddy/internal/content"
	"fitbuddy/internal/task/runner"
	"fitbuddy/internal/task/scheduler"
	logx "fitbuddy/pkg/logx"
)

const (
	promptMotivation      = "Give one short motivational sentence for someone building healthy fitness habits."
	promptMorningExercise = "Suggest a short morning exercise routine in one sentence."
	promptQuestionOfDay   = "Ask one creative question to start the morning with, in one sentence."
)

type Broadcaster interface {
	Broadcast(ctx context.Context, name, text string) broadcast.Result
}

type Writer interface {
	Generate(ctx context.Context, prompt string, category content.Category) string
	Pick(category content.Category) string
}

type Reporter interface {
	Build(ctx context.Context) (string, error)
}

// Registrar is the part of the scheduler used here.
type Registrar interface {
	Register(id string, t scheduler.Trigger, run func(ctx context.Context) error, opts ...scheduler.JobOption) error
	Remove(id string) bool
}

type Set struct {
	out    Broadcaster
	writer Writer
	report Reporter
	log    logx.Logger
}

func New(out Broadcaster, writer Writer, report Reporter, log logx.Logger) *Set {
	return &Set{out: out, writer: writer, report: report, log: log}
}

// Motivation broadcasts a generated motivational line.
func (s *Set) Motivation(ctx context.Context) error {
	text := s.writer.Generate(ctx, promptMotivation, content.Motivation)
	s.out.Broadcast(ctx, config.JobMotivation, text)
	return nil
}

// EveningQuestion broadcasts the static evening check-in question.
func (s *Set) EveningQuestion(ctx context.Context) error {
	s.out.Broadcast(ctx, config.JobEveningQuestion, s.writer.Pick(content.EveningQuestion))
	return nil
}

// WeeklySummary broadcasts last week's run totals with advice. A failed
// aggregation skips the broadcast for this cycle.
func (s *Set) WeeklySummary(ctx context.Context) error {
	text, err := s.report.Build(ctx)
	if err != nil {
		return err
	}
	s.out.Broadcast(ctx, config.JobWeeklySummary, text)
	return nil
}

// MorningRoutine broadcasts an exercise suggestion and a question of the day.
func (s *Set) MorningRoutine(ctx context.Context) error {
	exercise := s.writer.Generate(ctx, promptMorningExercise, content.MorningExercise)
	question := s.writer.Generate(ctx, promptQuestionOfDay, content.QuestionOfDay)
	s.out.Broadcast(ctx, config.JobMorningRoutine,
		fmt.Sprintf("Good morning! Today's exercise: %s\nQuestion of the day: %s", exercise, question))
	return nil
}

// Body returns the body of a built-in job.
func (s *Set) Body(id string) (func(ctx context.Context) error, bool) {
	switch id {
	case config.JobMotivation:
		return s.Motivation, true
	case config.JobEveningQuestion:
		return s.EveningQuestion, true
	case config.JobWeeklySummary:
		return s.WeeklySummary, true
	case config.JobMorningRoutine:
		return s.MorningRoutine, true
	}
	return nil, false
}

// Apply registers every enabled job and removes disabled ones. Registration is
// an upsert, so calling Apply again after a config reload replaces triggers.
// A job with a bad definition is reported and left as it was.
func (s *Set) Apply(reg Registrar, defs map[string]config.JobConfig) error {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		jc := defs[id]
		body, ok := s.Body(id)
		if !ok {
			errs = append(errs, fmt.Errorf("jobs.%s: unknown job", id))
			continue
		}
		if !jc.IsEnabled() {
			if reg.Remove(id) {
				s.log.Info("job disabled", logx.String("job", id))
			}
			continue
		}
		opts, err := options(id, jc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trig, err := scheduler.ParseTrigger(jc.Schedule)
		if err != nil {
			errs = append(errs, fmt.Errorf("jobs.%s.schedule: %w", id, err))
			continue
		}
		if err := reg.Register(id, trig, body, opts...); err != nil {
			errs = append(errs, fmt.Errorf("jobs.%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func options(id string, jc config.JobConfig) ([]scheduler.JobOption, error) {
	overlap, err := runner.ParseOverlap(jc.Overlap)
	if err != nil {
		return nil, fmt.Errorf("jobs.%s.overlap: %w", id, err)
	}
	timeout, err := config.ParseDuration("jobs."+id+".timeout", jc.Timeout)
	if err != nil {
		return nil, err
	}
	return []scheduler.JobOption{scheduler.WithOverlap(overlap), scheduler.WithTimeout(timeout)}, nil
}
