package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownDriver = errors.New("storage: unknown driver")
	ErrInvalidChatID = errors.New("storage: chat id must be non-zero")
	ErrClosed        = errors.New("storage: closed")
)

type Config struct {
	Driver      string
	Path        string // sqlite
	DSN         string // postgres
	BusyTimeout time.Duration
}

type Recipient struct {
	ChatID    int64
	CreatedAt time.Time
}

type ActivityKind string

const (
	KindRun   ActivityKind = "run"
	KindMeal  ActivityKind = "meal"
	KindSleep ActivityKind = "sleep"
	KindNote  ActivityKind = "note"
)

// Activity is one logged record. Only the payload fields of its Kind are meaningful:
// run uses DistanceKM and Calories, meal MealName, sleep SleepHours, note Text.
type Activity struct {
	ID         int64
	Kind       ActivityKind
	ChatID     int64
	CreatedAt  time.Time
	DistanceKM float64
	Calories   float64
	MealName   string
	SleepHours float64
	Text       string
}

// Store is the persistence API used by the notification engine and the CLI.
type Store interface {
	// AddRecipient registers a chat id; repeated calls are no-ops.
	AddRecipient(ctx context.Context, chatID int64) error
	// ListRecipientIDs returns every stored chat id in insertion order.
	ListRecipientIDs(ctx context.Context) ([]int64, error)
	// AddActivity stores a record and returns its id. A zero CreatedAt means now.
	AddActivity(ctx context.Context, a Activity) (int64, error)
	// RunsBetween returns runs with start <= created_at <= end, oldest first.
	RunsBetween(ctx context.Context, start, end time.Time) ([]Activity, error)
	Close() error
}

func validKind(k ActivityKind) bool {
	switch k {
	case KindRun, KindMeal, KindSleep, KindNote:
		return true
	}
	return false
}
