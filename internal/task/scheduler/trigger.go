package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidTrigger = errors.New("scheduler: invalid trigger")

// cronParser accepts 5-field expressions and descriptors such as @daily.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Trigger decides when a job fires. Calendar fields are evaluated in UTC.
type Trigger interface {
	schedule() cron.Schedule
	String() string
}

// Interval fires every Every. With Immediate, the first firing happens as soon
// as the trigger is armed instead of one period later.
type Interval struct {
	Every     time.Duration
	Immediate bool
}

func (t Interval) schedule() cron.Schedule {
	s := &everySchedule{every: t.Every}
	if t.Immediate {
		return &immediateSchedule{base: s}
	}
	return s
}

func (t Interval) String() string {
	if t.Immediate {
		return "now+every:" + t.Every.String()
	}
	return "every:" + t.Every.String()
}

// Calendar fires at Hour:Minute UTC, every day or only on Weekday when set.
type Calendar struct {
	Weekday *time.Weekday
	Hour    int
	Minute  int
}

// Daily and Weekly build calendar triggers.
func Daily(hour, minute int) Calendar { return Calendar{Hour: hour, Minute: minute} }

func Weekly(day time.Weekday, hour, minute int) Calendar {
	return Calendar{Weekday: &day, Hour: hour, Minute: minute}
}

func (t Calendar) cronExpr() string {
	dow := "*"
	if t.Weekday != nil {
		dow = strconv.Itoa(int(*t.Weekday))
	}
	return fmt.Sprintf("%d %d * * %s", t.Minute, t.Hour, dow)
}

func (t Calendar) schedule() cron.Schedule {
	s, err := cronParser.Parse(t.cronExpr())
	if err != nil {
		return never{}
	}
	return s
}

func (t Calendar) String() string {
	hm := fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	if t.Weekday != nil {
		return "weekly@" + strings.ToLower(t.Weekday.String()[:3]) + " " + hm
	}
	return "daily@" + hm
}

func (t Calendar) validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: time %02d:%02d out of range", ErrInvalidTrigger, t.Hour, t.Minute)
	}
	if t.Weekday != nil && (*t.Weekday < time.Sunday || *t.Weekday > time.Saturday) {
		return fmt.Errorf("%w: weekday %d out of range", ErrInvalidTrigger, *t.Weekday)
	}
	return nil
}

// Cron is a raw cron expression.
type Cron struct {
	Expr  string
	sched cron.Schedule
}

func (t Cron) schedule() cron.Schedule {
	if t.sched != nil {
		return t.sched
	}
	s, err := cronParser.Parse(t.Expr)
	if err != nil {
		return never{}
	}
	return s
}

func (t Cron) String() string { return "cron:" + t.Expr }

// ParseTrigger reads the config form of a trigger:
//
//	"3h", "every:3h", "interval:90m"  interval
//	"now+every:3h"                    interval, first firing immediate
//	"daily@18:00"                     every day at 18:00 UTC
//	"weekly@sun 18:00"                Sundays at 18:00 UTC
//	"0 18 * * 0", "cron:@daily"       cron expression (UTC)
func ParseTrigger(raw string) (Trigger, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidTrigger)
	case strings.HasPrefix(low, "now+"):
		t, err := ParseTrigger(s[len("now+"):])
		if err != nil {
			return nil, err
		}
		iv, ok := t.(Interval)
		if !ok {
			return nil, fmt.Errorf("%w: now+ only applies to intervals: %q", ErrInvalidTrigger, raw)
		}
		iv.Immediate = true
		return iv, nil
	case strings.HasPrefix(low, "every:"), strings.HasPrefix(low, "interval:"):
		return parseInterval(s[strings.Index(s, ":")+1:])
	case strings.HasPrefix(low, "daily@"):
		h, m, err := parseHHMM(s[len("daily@"):])
		if err != nil {
			return nil, err
		}
		return Daily(h, m), nil
	case strings.HasPrefix(low, "weekly@"):
		rest := strings.Fields(s[len("weekly@"):])
		if len(rest) != 2 {
			return nil, fmt.Errorf("%w: want weekly@<day> HH:MM, got %q", ErrInvalidTrigger, raw)
		}
		day, err := parseWeekday(rest[0])
		if err != nil {
			return nil, err
		}
		h, m, err := parseHHMM(rest[1])
		if err != nil {
			return nil, err
		}
		return Weekly(day, h, m), nil
	case strings.HasPrefix(low, "cron:"):
		return parseCron(s[len("cron:"):])
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}
	return parseInterval(s)
}

func parseInterval(v string) (Trigger, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: interval must be > 0", ErrInvalidTrigger)
	}
	return Interval{Every: d}, nil
}

func parseCron(expr string) (Trigger, error) {
	expr = strings.TrimSpace(expr)
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	return Cron{Expr: expr, sched: s}, nil
}

func parseHHMM(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if !ok || errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrInvalidTrigger, s)
	}
	return h, m, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		if d, ok := weekdays[s[:3]]; ok {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidTrigger, s)
}

// everySchedule is cron.Every without the whole-second rounding.
type everySchedule struct{ every time.Duration }

func (s *everySchedule) Next(t time.Time) time.Time { return t.Add(s.every) }

// immediateSchedule answers its first Next with t itself, then defers to base.
type immediateSchedule struct {
	base cron.Schedule
	used atomic.Bool
}

func (s *immediateSchedule) Next(t time.Time) time.Time {
	if s.used.CompareAndSwap(false, true) {
		return t
	}
	return s.base.Next(t)
}

// never is used for a trigger that somehow failed validation after parsing.
type never struct{}

func (never) Next(time.Time) time.Time { return time.Time{} }
