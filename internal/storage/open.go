package storage

import (
	"context"
	"fmt"
	"strings"

	logx "fitbuddy/pkg/logx"
)

// Open connects the configured backend and ensures its schema exists.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		s, err := openSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := openPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
