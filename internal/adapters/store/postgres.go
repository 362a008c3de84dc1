package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagioo/Call-sub001/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_creators (
	room_id    TEXT PRIMARY KEY,
	creator_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists creator-of-record facts so every replica agrees
// on who created a call.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

type Option func(*PostgresStore)

// WithTimeout bounds every query.
func WithTimeout(d time.Duration) Option {
	return func(s *PostgresStore) { s.timeout = d }
}

// NewPostgresStore opens a pool on dsn and makes sure the table exists.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &PostgresStore{pool: pool, timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create call_creators: %w", err)
	}
	return nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Close releases the pool, giving up when ctx ends first.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *PostgresStore) CreatorOf(ctx context.Context, room domain.RoomID) (domain.UserID, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var creator string
	err := s.pool.QueryRow(ctx, `SELECT creator_id FROM call_creators WHERE room_id = $1`, string(room)).Scan(&creator)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.UserID(creator), true, nil
}

// ClaimCreator inserts user unless a creator is already recorded and returns
// whichever creator won.
func (s *PostgresStore) ClaimCreator(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.UserID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var creator string
	err := s.pool.QueryRow(ctx, `
WITH ins AS (
	INSERT INTO call_creators (room_id, creator_id)
	VALUES ($1, $2)
	ON CONFLICT (room_id) DO NOTHING
	RETURNING creator_id
)
SELECT creator_id FROM ins
UNION ALL
SELECT creator_id FROM call_creators WHERE room_id = $1
LIMIT 1
`, string(room), string(user)).Scan(&creator)
	if isNoRows(err) {
		// A concurrent claim committed after our snapshot was taken.
		winner, ok, err := s.CreatorOf(ctx, room)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("claim creator for %s: no row after conflict", room)
		}
		return winner, nil
	}
	if err != nil {
		return "", err
	}
	return domain.UserID(creator), nil
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}
