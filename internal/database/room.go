// internal/database/room.go
package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/models"
)

// RoomStore is the Postgres implementation of engine.RoomStore. The join and
// winner guards are single conditional UPDATE statements so that racing
// requests are serialized by the database: only one of two concurrent joins
// to the last seat matches the predicate.
type RoomStore struct {
	pool *pgxpool.Pool
}

// NewRoomStore wraps the given pool.
func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

const roomColumns = `room_id, users, duration, max_members, creator,
	game_started, game_ended, staking_amount, staking_token,
	created_at, started_at, winner`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(
		&r.RoomID, &r.Users, &r.Duration, &r.MaxMembers, &r.Creator,
		&r.GameStarted, &r.GameEnded, &r.StakingAmount, &r.StakingToken,
		&r.CreatedAt, &r.StartedAt, &r.Winner,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoomStore) FindAvailable(ctx context.Context) ([]models.Room, error) {
	q := `
	SELECT ` + roomColumns + `
	FROM rooms
	WHERE NOT game_ended AND cardinality(users) < max_members
	ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, storeErr("query available rooms", err)
	}
	defer rows.Close()

	var out []models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, storeErr("scan room", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate rooms", err)
	}
	return out, nil
}

func (s *RoomStore) FindByID(ctx context.Context, roomID string) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE room_id = $1`
	r, err := scanRoom(s.pool.QueryRow(ctx, q, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("find room", err)
	}
	return r, nil
}

func (s *RoomStore) FindByMember(ctx context.Context, walletAddress string) ([]models.Room, error) {
	q := `
	SELECT ` + roomColumns + `
	FROM rooms
	WHERE $1 = ANY(users)
	ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, q, walletAddress)
	if err != nil {
		return nil, storeErr("query rooms by member", err)
	}
	defer rows.Close()

	var out []models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, storeErr("scan room", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate rooms", err)
	}
	return out, nil
}

func (s *RoomStore) InsertIfAbsent(ctx context.Context, room *models.Room) error {
	q := `
	INSERT INTO rooms (
		room_id, users, duration, max_members, creator,
		game_started, game_ended, staking_amount, staking_token, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, q,
		room.RoomID, room.Users, room.Duration, room.MaxMembers, room.Creator,
		room.GameStarted, room.GameEnded, room.StakingAmount, room.StakingToken,
		room.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return engine.ErrDuplicateRoomID
	}
	if err != nil {
		return storeErr("insert room", err)
	}
	return nil
}

// AppendUser runs the capacity/membership/ended checks and the append as one
// conditional UPDATE. When the predicate fails we re-read the row only to
// classify the error; the guard itself never depends on that read.
func (s *RoomStore) AppendUser(ctx context.Context, roomID, walletAddress string, at time.Time) (*models.Room, error) {
	q := `
	UPDATE rooms
	SET users = array_append(users, $2),
	    game_started = TRUE,
	    started_at = COALESCE(started_at, $3)
	WHERE room_id = $1
	  AND NOT game_ended
	  AND NOT ($2 = ANY(users))
	  AND cardinality(users) < max_members
	RETURNING ` + roomColumns

	r, err := scanRoom(s.pool.QueryRow(ctx, q, roomID, walletAddress, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyJoinFailure(ctx, roomID, walletAddress)
	}
	if err != nil {
		return nil, storeErr("append user to room", err)
	}
	return r, nil
}

func (s *RoomStore) classifyJoinFailure(ctx context.Context, roomID, walletAddress string) error {
	room, err := s.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	switch {
	case room.GameEnded:
		return engine.ErrGameAlreadyEnded
	case room.HasUser(walletAddress):
		return engine.ErrAlreadyInRoom
	case room.IsFull():
		return engine.ErrRoomFull
	default:
		// The predicate failed but the re-read passes: the room changed
		// between the two statements. Treat as a lost race on membership.
		return engine.ErrAlreadyInRoom
	}
}

func (s *RoomStore) MarkStarted(ctx context.Context, roomID string, at time.Time) (*models.Room, error) {
	q := `
	UPDATE rooms
	SET game_started = TRUE,
	    started_at = COALESCE(started_at, $2)
	WHERE room_id = $1 AND NOT game_ended
	RETURNING ` + roomColumns

	r, err := scanRoom(s.pool.QueryRow(ctx, q, roomID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		room, ferr := s.FindByID(ctx, roomID)
		if ferr != nil {
			return nil, ferr
		}
		if room.GameEnded {
			return nil, engine.ErrGameAlreadyEnded
		}
		return nil, engine.ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("mark room started", err)
	}
	return r, nil
}

func (s *RoomStore) MarkEnded(ctx context.Context, roomID, winner string) (*models.Room, error) {
	q := `
	UPDATE rooms
	SET game_ended = TRUE, winner = $2
	WHERE room_id = $1 AND NOT game_ended
	RETURNING ` + roomColumns

	r, err := scanRoom(s.pool.QueryRow(ctx, q, roomID, winner))
	if errors.Is(err, pgx.ErrNoRows) {
		room, ferr := s.FindByID(ctx, roomID)
		if ferr != nil {
			return nil, ferr
		}
		if room.GameEnded {
			return nil, engine.ErrGameAlreadyEnded
		}
		return nil, engine.ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("mark room ended", err)
	}
	return r, nil
}

func (s *RoomStore) Archive(ctx context.Context, room *models.CompletedRoom) error {
	q := `
	INSERT INTO completed_rooms (
		room_id, users, duration, max_members, creator,
		game_started, game_ended, staking_amount, staking_token,
		created_at, started_at, winner, completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (room_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q,
		room.RoomID, room.Users, room.Duration, room.MaxMembers, room.Creator,
		room.GameStarted, room.GameEnded, room.StakingAmount, room.StakingToken,
		room.CreatedAt, room.StartedAt, room.Winner, room.CompletedAt,
	)
	if err != nil {
		return storeErr("archive room", err)
	}
	return nil
}

func (s *RoomStore) DeleteByID(ctx context.Context, roomID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID); err != nil {
		return storeErr("delete room", err)
	}
	return nil
}

// FindCompleted retrieves an archived room.
func (s *RoomStore) FindCompleted(ctx context.Context, roomID string) (*models.CompletedRoom, error) {
	q := `
	SELECT room_id, users, duration, max_members, creator,
	       game_started, game_ended, staking_amount, staking_token,
	       created_at, started_at, winner, completed_at
	FROM completed_rooms
	WHERE room_id = $1
	`
	var c models.CompletedRoom
	err := s.pool.QueryRow(ctx, q, roomID).Scan(
		&c.RoomID, &c.Users, &c.Duration, &c.MaxMembers, &c.Creator,
		&c.GameStarted, &c.GameEnded, &c.StakingAmount, &c.StakingToken,
		&c.CreatedAt, &c.StartedAt, &c.Winner, &c.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("find completed room", err)
	}
	return &c, nil
}
