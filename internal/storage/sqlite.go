package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "fitbuddy/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite serializes writers anyway, and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: sqlite schema: %w", err)
	}
	log.Info("sqlite store ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log, now: time.Now}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) AddRecipient(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return ErrInvalidChatID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(chat_id, created_at) VALUES(?, ?) ON CONFLICT(chat_id) DO NOTHING`,
		chatID, s.now().UTC().UnixMicro(),
	)
	return err
}

func (s *sqliteStore) ListRecipientIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM users WHERE chat_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) AddActivity(ctx context.Context, a Activity) (int64, error) {
	if !validKind(a.Kind) {
		return 0, fmt.Errorf("storage: unknown activity kind %q", a.Kind)
	}
	at := a.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	ts := at.UTC().UnixMicro()
	chat := nullChat(a.ChatID)

	var (
		res sql.Result
		err error
	)
	switch a.Kind {
	case KindRun:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO runs(chat_id, distance_km, calories, created_at) VALUES(?, ?, ?, ?)`,
			chat, a.DistanceKM, a.Calories, ts)
	case KindMeal:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO meals(chat_id, meal_name, created_at) VALUES(?, ?, ?)`,
			chat, a.MealName, ts)
	case KindSleep:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO sleeps(chat_id, hours, created_at) VALUES(?, ?, ?)`,
			chat, a.SleepHours, ts)
	case KindNote:
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO notes(chat_id, text, created_at) VALUES(?, ?, ?)`,
			chat, a.Text, ts)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) RunsBetween(ctx context.Context, start, end time.Time) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, distance_km, calories, created_at FROM runs
		 WHERE created_at >= ? AND created_at <= ? ORDER BY created_at, id`,
		start.UTC().UnixMicro(), end.UTC().UnixMicro(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a    = Activity{Kind: KindRun}
			chat sql.NullInt64
			ts   int64
		)
		if err := rows.Scan(&a.ID, &chat, &a.DistanceKM, &a.Calories, &ts); err != nil {
			return nil, err
		}
		a.ChatID = chat.Int64
		a.CreatedAt = time.UnixMicro(ts).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullChat(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
