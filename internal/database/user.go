// internal/database/user.go
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/models"
)

// UserStore is the Postgres implementation of engine.UserStore plus the
// user-directory operations (setup, stake status). Participation history
// lives in its own append-only table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore wraps the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) FindByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	var u models.User
	q := `
	SELECT wallet_address, username, is_staked,
	       current_room_id, current_room_duration, created_at
	FROM users
	WHERE wallet_address = $1
	`
	err := s.pool.QueryRow(ctx, q, walletAddress).Scan(
		&u.WalletAddress, &u.Username, &u.IsStaked,
		&u.CurrentRoomID, &u.CurrentRoomDuration, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("find user", err)
	}

	hq := `
	SELECT room_id, is_winner, game_time
	FROM participated_rooms
	WHERE wallet_address = $1
	ORDER BY id
	`
	rows, err := s.pool.Query(ctx, hq, walletAddress)
	if err != nil {
		return nil, storeErr("query participation history", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.ParticipatedRoom
		if err := rows.Scan(&p.Room, &p.IsWinner, &p.GameTime); err != nil {
			return nil, storeErr("scan participation entry", err)
		}
		u.ParticipatedRooms = append(u.ParticipatedRooms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate participation history", err)
	}
	return &u, nil
}

func (s *UserStore) FindByWallets(ctx context.Context, walletAddresses []string) ([]models.User, error) {
	q := `
	SELECT wallet_address, username, is_staked,
	       current_room_id, current_room_duration, created_at
	FROM users
	WHERE wallet_address = ANY($1)
	`
	rows, err := s.pool.Query(ctx, q, walletAddresses)
	if err != nil {
		return nil, storeErr("query users by wallets", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.WalletAddress, &u.Username, &u.IsStaked,
			&u.CurrentRoomID, &u.CurrentRoomDuration, &u.CreatedAt,
		); err != nil {
			return nil, storeErr("scan user", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}
	return out, nil
}

// UpsertCurrentRoom writes the room assignment snapshot. An implicit create
// (join by a wallet that never ran setup) uses the wallet address as a
// placeholder username; the tagged outcome lets callers flag that case.
func (s *UserStore) UpsertCurrentRoom(ctx context.Context, walletAddress, roomID string, remainingSeconds int) (engine.UpsertOutcome, error) {
	q := `
	INSERT INTO users (wallet_address, username, current_room_id, current_room_duration)
	VALUES ($1, $1, $2, $3)
	ON CONFLICT (wallet_address) DO UPDATE
	SET current_room_id = $2, current_room_duration = $3
	RETURNING (xmax = 0)
	`
	// xmax = 0 holds only for freshly inserted rows.
	var inserted bool
	if err := s.pool.QueryRow(ctx, q, walletAddress, roomID, remainingSeconds).Scan(&inserted); err != nil {
		return engine.OutcomeUpdated, storeErr("upsert current room", err)
	}
	if inserted {
		return engine.OutcomeCreated, nil
	}
	return engine.OutcomeUpdated, nil
}

// ClearCurrentRoomAndAppendHistory resets the room assignment and appends
// one participation entry, atomically for this user.
func (s *UserStore) ClearCurrentRoomAndAppendHistory(ctx context.Context, walletAddress string, entry models.ParticipatedRoom) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET current_room_id = '', current_room_duration = 0
			WHERE wallet_address = $1
		`, walletAddress)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return engine.ErrUserNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO participated_rooms (wallet_address, room_id, is_winner, game_time)
			VALUES ($1, $2, $3, $4)
		`, walletAddress, entry.Room, entry.IsWinner, entry.GameTime)
		return err
	})
	if errors.Is(err, engine.ErrUserNotFound) {
		return engine.ErrUserNotFound
	}
	if err != nil {
		return storeErr("clear room and append history", err)
	}
	return nil
}

// SetupUser upserts a user by wallet. The username unique constraint rejects
// a name held by a different wallet.
func (s *UserStore) SetupUser(ctx context.Context, walletAddress, username string) (*models.User, error) {
	q := `
	INSERT INTO users (wallet_address, username)
	VALUES ($1, $2)
	ON CONFLICT (wallet_address) DO UPDATE SET username = $2
	`
	_, err := s.pool.Exec(ctx, q, walletAddress, username)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, engine.ErrUsernameTaken
	}
	if err != nil {
		return nil, storeErr("setup user", err)
	}
	return s.FindByWallet(ctx, walletAddress)
}

// SetStaked upserts the stake commitment flag.
func (s *UserStore) SetStaked(ctx context.Context, walletAddress string, staked bool) (*models.User, error) {
	q := `
	INSERT INTO users (wallet_address, username, is_staked)
	VALUES ($1, $1, $2)
	ON CONFLICT (wallet_address) DO UPDATE SET is_staked = $2
	`
	if _, err := s.pool.Exec(ctx, q, walletAddress, staked); err != nil {
		return nil, storeErr("set staked", err)
	}
	return s.FindByWallet(ctx, walletAddress)
}
