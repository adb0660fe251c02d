package transport

import (
	"context"
	"errors"
)

// ErrInvalidTarget is returned by senders for a zero or malformed chat id.
var ErrInvalidTarget = errors.New("invalid chat target")

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound messaging primitive owned by the messaging gateway.
//
// Implementations must return an error for any delivery failure (blocked chat,
// invalid id, network error) and must never panic on them.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error

func (f SenderFunc) SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error {
	return f(ctx, to, text, opt)
}
