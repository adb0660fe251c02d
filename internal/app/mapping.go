package app

import (
	"errors"
	"fmt"
	"time"

	"fitbuddy/internal/broadcast"
	"fitbuddy/internal/config"
	"fitbuddy/internal/content"
	"fitbuddy/internal/observability/ops"
	"fitbuddy/internal/storage"
	"fitbuddy/internal/task/runner"
	"fitbuddy/internal/task/scheduler"
	"fitbuddy/internal/transport/telegram"
	logx "fitbuddy/pkg/logx"
)

// Config mapping. Inputs are validated by config.Manager, so parse errors
// only fall back to defaults here.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegram(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:   cfg.Telegram.Token,
		URL:     cfg.Telegram.APIURL,
		Timeout: config.DurationOr(cfg.Telegram.SendTimeout, 10*time.Second),
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: config.DurationOr(cfg.Storage.BusyTimeout, time.Second),
	}
}

func mapMistral(cfg *config.Config) content.ClientConfig {
	return content.ClientConfig{
		APIKey:    cfg.Mistral.APIKey,
		BaseURL:   cfg.Mistral.BaseURL,
		Model:     cfg.Mistral.Model,
		MaxTokens: cfg.Mistral.MaxTokens,
		Timeout:   config.DurationOr(cfg.Mistral.Timeout, content.DefaultTimeout),
	}
}

func mapRunner(cfg *config.Config) runner.Config {
	return runner.Config{
		HistorySize:    cfg.Runner.HistorySize,
		DefaultTimeout: config.DurationOr(cfg.Runner.DefaultTimeout, 0),
	}
}

func mapBroadcast(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Concurrency: cfg.Broadcast.Concurrency,
		SendTimeout: config.DurationOr(cfg.Broadcast.SendTimeout, 0),
		HistorySize: cfg.Broadcast.HistorySize,
	}
}

func mapOps(cfg *config.Config) (ops.Config, bool) {
	if cfg.Ops == nil || !cfg.Ops.Enabled {
		return ops.Config{}, false
	}
	return ops.Config{
		Addr:      cfg.Ops.Addr,
		Token:     cfg.Ops.Token,
		JWTSecret: cfg.Ops.JWTSecret,
		JWTIssuer: cfg.Ops.JWTIssuer,
		Pprof:     cfg.Ops.Pprof,
	}, true
}

// validateReload rejects configs whose job triggers would not parse, so a bad
// edit never reaches the scheduler.
func validateReload(cfg *config.Config) error {
	var errs []error
	for id, jc := range cfg.Jobs {
		if !jc.IsEnabled() {
			continue
		}
		if _, err := scheduler.ParseTrigger(jc.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("jobs.%s.schedule: %w", id, err))
		}
		if _, err := runner.ParseOverlap(jc.Overlap); err != nil {
			errs = append(errs, fmt.Errorf("jobs.%s.overlap: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
