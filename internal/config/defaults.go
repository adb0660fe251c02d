package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Built-in job ids.
const (
	JobMotivation      = "motivation"
	JobEveningQuestion = "evening_question"
	JobWeeklySummary   = "weekly_summary"
	JobMorningRoutine  = "morning_routine"
)

// DefaultJobs holds the schedules used when a job has no explicit schedule.
var DefaultJobs = map[string]string{
	JobMotivation:      "now+every:3h",
	JobEveningQuestion: "daily@18:00",
	JobWeeklySummary:   "weekly@sun 18:00",
	JobMorningRoutine:  "daily@07:00",
}

const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvMistralKey    = "MISTRAL_API_KEY"
	EnvDatabaseURL   = "DATABASE_URL"
)

// ApplyEnv overlays secrets and the database location from the environment.
// Values already present in the file win over the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = strings.TrimSpace(getenv(EnvTelegramToken))
	}
	if cfg.Mistral.APIKey == "" {
		cfg.Mistral.APIKey = strings.TrimSpace(getenv(EnvMistralKey))
	}
	if cfg.Storage.Path != "" || cfg.Storage.DSN != "" {
		return
	}
	url := strings.TrimSpace(getenv(EnvDatabaseURL))
	switch {
	case url == "":
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DSN = url
	default:
		// sqlite:///./assistant.db, sqlite+aiosqlite:///./assistant.db or a bare path
		if i := strings.Index(url, ":///"); i >= 0 {
			url = url[i+4:]
		}
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = url
	}
}

// ApplyDefaults fills zero values. It never overwrites explicit settings.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "./assistant.db"
	}
	if cfg.Mistral.BaseURL == "" {
		cfg.Mistral.BaseURL = "https://api.mistral.ai"
	}
	if cfg.Mistral.Model == "" {
		cfg.Mistral.Model = "mistral-small"
	}
	if cfg.Mistral.MaxTokens <= 0 {
		cfg.Mistral.MaxTokens = 200
	}
	if cfg.Runner.HistorySize <= 0 {
		cfg.Runner.HistorySize = 200
	}
	if cfg.Broadcast.Concurrency <= 0 {
		cfg.Broadcast.Concurrency = 1
	}
	if cfg.Broadcast.HistorySize <= 0 {
		cfg.Broadcast.HistorySize = 50
	}
	if cfg.Jobs == nil {
		cfg.Jobs = map[string]JobConfig{}
	}
	for id, sched := range DefaultJobs {
		j := cfg.Jobs[id]
		if strings.TrimSpace(j.Schedule) == "" {
			j.Schedule = sched
		}
		cfg.Jobs[id] = j
	}
	if cfg.Ops != nil && cfg.Ops.Addr == "" {
		cfg.Ops.Addr = "127.0.0.1:9090"
	}
}

// Validate checks fields that cannot be fixed by defaults.
// Trigger strings are checked by the scheduler when jobs are registered.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	durations := map[string]string{
		"telegram.send_timeout":  cfg.Telegram.SendTimeout,
		"storage.busy_timeout":   cfg.Storage.BusyTimeout,
		"mistral.timeout":        cfg.Mistral.Timeout,
		"runner.default_timeout": cfg.Runner.DefaultTimeout,
		"broadcast.send_timeout": cfg.Broadcast.SendTimeout,
	}
	for id, j := range cfg.Jobs {
		durations["jobs."+id+".timeout"] = j.Timeout
		switch j.Overlap {
		case "", "queue", "skip":
		default:
			errs = append(errs, fmt.Errorf("jobs.%s.overlap: want queue or skip, got %q", id, j.Overlap))
		}
	}
	for path, raw := range durations {
		if _, err := ParseDuration(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if e := cfg.Events; e != nil && e.Enabled {
		if len(e.Brokers) == 0 || e.Topic == "" {
			errs = append(errs, errors.New("events: brokers and topic are required when enabled"))
		}
	}
	return errors.Join(errs...)
}

// ParseDuration parses a Go duration string. Empty means zero; negatives are rejected.
func ParseDuration(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// DurationOr is ParseDuration with a fallback for empty, zero or invalid input.
// Call it only on validated configs.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDuration("", raw)
	if err != nil || d == 0 {
		return def
	}
	return d
}
