package runner

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStopped     = errors.New("runner: stopped")
	ErrOverlapSkip = errors.New("runner: job already pending")
)

type OverlapPolicy int

const (
	// OverlapQueue runs every firing; firings of one job serialize in the execution context.
	OverlapQueue OverlapPolicy = iota
	// OverlapSkipIfPending drops a firing while the same job is queued or running.
	OverlapSkipIfPending
)

// ParseOverlap maps the config spelling ("queue", "skip") to a policy.
func ParseOverlap(s string) (OverlapPolicy, error) {
	switch s {
	case "", "queue":
		return OverlapQueue, nil
	case "skip":
		return OverlapSkipIfPending, nil
	}
	return OverlapQueue, errors.New("runner: unknown overlap policy " + s)
}

func (p OverlapPolicy) String() string {
	if p == OverlapSkipIfPending {
		return "skip"
	}
	return "queue"
}

// Job is one firing of a scheduled job.
type Job struct {
	ID      string
	Run     func(ctx context.Context) error
	Timeout time.Duration // 0: no bound
	Overlap OverlapPolicy
}

type Config struct {
	HistorySize int
	// DefaultTimeout applies to jobs with Timeout == 0; 0 keeps them unbounded.
	DefaultTimeout time.Duration
}

type HistoryItem struct {
	Job        string        `json:"job"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// JobEvent is the payload of job.* bus events.
type JobEvent struct {
	Job        string        `json:"job"`
	Seq        uint64        `json:"seq"`
	Started    time.Time     `json:"started,omitempty"`
	QueueDelay time.Duration `json:"queue_delay,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type Snapshot struct {
	Running  bool          `json:"running"`
	Current  string        `json:"current,omitempty"`
	QueueLen int           `json:"queue_len"`
	Executed uint64        `json:"executed"`
	Failed   uint64        `json:"failed"`
	Skipped  uint64        `json:"skipped"`
	History  []HistoryItem `json:"history"`
}
