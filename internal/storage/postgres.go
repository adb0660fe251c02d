package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "fitbuddy/pkg/logx"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed postgres_schema.sql
var postgresSchema string

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (*postgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage: postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: postgres schema: %w", err)
	}
	log.Info("postgres store ready")
	return &postgresStore{pool: pool, log: log}, nil
}

// NewPostgres wraps an existing pool; the caller keeps ownership of the schema.
func NewPostgres(pool *pgxpool.Pool, log logx.Logger) Store {
	return &postgresStore{pool: pool, log: log}
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) AddRecipient(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return ErrInvalidChatID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (chat_id) VALUES ($1) ON CONFLICT (chat_id) DO NOTHING`, chatID)
	return err
}

func (s *postgresStore) ListRecipientIDs(ctx context.Context) ([]int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT chat_id FROM users WHERE chat_id IS NOT NULL ORDER BY id`)
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

func (s *postgresStore) AddActivity(ctx context.Context, a Activity) (int64, error) {
	if !validKind(a.Kind) {
		return 0, fmt.Errorf("storage: unknown activity kind %q", a.Kind)
	}
	at := a.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	chat := nullChat(a.ChatID)

	var q string
	var args []any
	switch a.Kind {
	case KindRun:
		q = `INSERT INTO runs (chat_id, distance_km, calories, created_at) VALUES ($1,$2,$3,$4) RETURNING id`
		args = []any{chat, a.DistanceKM, a.Calories, at}
	case KindMeal:
		q = `INSERT INTO meals (chat_id, meal_name, created_at) VALUES ($1,$2,$3) RETURNING id`
		args = []any{chat, a.MealName, at}
	case KindSleep:
		q = `INSERT INTO sleeps (chat_id, hours, created_at) VALUES ($1,$2,$3) RETURNING id`
		args = []any{chat, a.SleepHours, at}
	case KindNote:
		q = `INSERT INTO notes (chat_id, text, created_at) VALUES ($1,$2,$3) RETURNING id`
		args = []any{chat, a.Text, at}
	}
	var id int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *postgresStore) RunsBetween(ctx context.Context, start, end time.Time) ([]Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, distance_km, calories, created_at FROM runs
		 WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at, id`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		a := Activity{Kind: KindRun}
		var chat *int64
		if err := rows.Scan(&a.ID, &chat, &a.DistanceKM, &a.Calories, &a.CreatedAt); err != nil {
			return nil, err
		}
		if chat != nil {
			a.ChatID = *chat
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
