// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starkshoot/lobby-server/internal/engine"
)

// Connect opens a pgx pool against the given DSN and verifies it with a
// ping. The pool is handed to the store constructors; there is no package
// level handle.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id        TEXT PRIMARY KEY,
		users          TEXT[] NOT NULL DEFAULT '{}',
		duration       INT NOT NULL DEFAULT 0,
		max_members    INT NOT NULL DEFAULT 6,
		creator        TEXT NOT NULL DEFAULT '',
		game_started   BOOLEAN NOT NULL DEFAULT FALSE,
		game_ended     BOOLEAN NOT NULL DEFAULT FALSE,
		staking_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		staking_token  TEXT NOT NULL DEFAULT 'AST',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at     TIMESTAMPTZ,
		winner         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS completed_rooms (
		room_id        TEXT PRIMARY KEY,
		users          TEXT[] NOT NULL DEFAULT '{}',
		duration       INT NOT NULL DEFAULT 0,
		max_members    INT NOT NULL DEFAULT 6,
		creator        TEXT NOT NULL DEFAULT '',
		game_started   BOOLEAN NOT NULL DEFAULT FALSE,
		game_ended     BOOLEAN NOT NULL DEFAULT TRUE,
		staking_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		staking_token  TEXT NOT NULL DEFAULT 'AST',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at     TIMESTAMPTZ,
		winner         TEXT NOT NULL DEFAULT '',
		completed_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		wallet_address        TEXT PRIMARY KEY,
		username              TEXT NOT NULL,
		is_staked             BOOLEAN NOT NULL DEFAULT FALSE,
		current_room_id       TEXT NOT NULL DEFAULT '',
		current_room_duration INT NOT NULL DEFAULT 0,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT users_username_key UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS participated_rooms (
		id             BIGSERIAL PRIMARY KEY,
		wallet_address TEXT NOT NULL REFERENCES users(wallet_address),
		room_id        TEXT NOT NULL,
		is_winner      BOOLEAN NOT NULL DEFAULT FALSE,
		game_time      INT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard (
		id             BIGSERIAL PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		kills          INT NOT NULL DEFAULT 0,
		score          INT NOT NULL DEFAULT 0,
		room_id        TEXT NOT NULL,
		username       TEXT NOT NULL DEFAULT '',
		game_time      INT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS staking_history (
		id             BIGSERIAL PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		amount         DOUBLE PRECISION NOT NULL,
		ts             TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_users ON rooms USING GIN (users)`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_wallet ON leaderboard (wallet_address)`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_room ON leaderboard (room_id)`,
	`CREATE INDEX IF NOT EXISTS idx_staking_history_wallet ON staking_history (wallet_address)`,
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// storeErr tags a persistence failure with the retryable taxonomy condition.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, engine.ErrStoreUnavailable, err)
}
