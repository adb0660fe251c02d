// Package telegram implements the outbound send primitive on top of telebot.
//
// Only sending is implemented here. Receiving updates belongs to the message
// ingestion gateway, which runs outside this process.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"fitbuddy/internal/transport"
	logx "fitbuddy/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, local bot api server).
	URL string
	// Timeout bounds a single Bot API HTTP call.
	Timeout time.Duration
}

type Sender struct {
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{log: log, bot: b}, nil
}

// SendText delivers text to a chat, splitting it into several messages when it
// exceeds the Telegram size limit.
func (s *Sender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if to.ChatID == 0 {
		return transport.ErrInvalidTarget
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		_, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// splitText splits s into chunks of at most limit runes, preferring newline
// boundaries near the end of each window.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
