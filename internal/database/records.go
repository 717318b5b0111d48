// internal/database/records.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starkshoot/lobby-server/internal/models"
)

// LeaderboardStore persists append-only leaderboard entries.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) AddLeaderboardEntry(ctx context.Context, entry models.LeaderboardEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	q := `
	INSERT INTO leaderboard (wallet_address, kills, score, room_id, username, game_time, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, q,
		entry.WalletAddress, entry.Kills, entry.Score, entry.RoomID,
		entry.Username, entry.GameTime, entry.CreatedAt,
	)
	if err != nil {
		return storeErr("insert leaderboard entry", err)
	}
	return nil
}

func (s *LeaderboardStore) LeaderboardByWallet(ctx context.Context, walletAddress string) ([]models.LeaderboardEntry, error) {
	return s.query(ctx, `wallet_address = $1`, walletAddress)
}

func (s *LeaderboardStore) LeaderboardByRoom(ctx context.Context, roomID string) ([]models.LeaderboardEntry, error) {
	return s.query(ctx, `room_id = $1`, roomID)
}

func (s *LeaderboardStore) query(ctx context.Context, where string, arg any) ([]models.LeaderboardEntry, error) {
	q := `
	SELECT wallet_address, kills, score, room_id, username, game_time, created_at
	FROM leaderboard
	WHERE ` + where + `
	ORDER BY id
	`
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, storeErr("query leaderboard", err)
	}
	defer rows.Close()

	var out []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(
			&e.WalletAddress, &e.Kills, &e.Score, &e.RoomID,
			&e.Username, &e.GameTime, &e.CreatedAt,
		); err != nil {
			return nil, storeErr("scan leaderboard entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate leaderboard", err)
	}
	return out, nil
}

// StakingStore persists append-only staking history.
type StakingStore struct {
	pool *pgxpool.Pool
}

func NewStakingStore(pool *pgxpool.Pool) *StakingStore {
	return &StakingStore{pool: pool}
}

func (s *StakingStore) AppendStakingRecord(ctx context.Context, record models.StakingRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	q := `INSERT INTO staking_history (wallet_address, amount, ts) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, q, record.WalletAddress, record.Amount, record.Timestamp); err != nil {
		return storeErr("insert staking record", err)
	}
	return nil
}

// StakingHistoryByWallet returns the wallet's staking records, newest first.
func (s *StakingStore) StakingHistoryByWallet(ctx context.Context, walletAddress string) ([]models.StakingRecord, error) {
	q := `
	SELECT wallet_address, amount, ts
	FROM staking_history
	WHERE wallet_address = $1
	ORDER BY ts DESC
	`
	rows, err := s.pool.Query(ctx, q, walletAddress)
	if err != nil {
		return nil, storeErr("query staking history", err)
	}
	defer rows.Close()

	var out []models.StakingRecord
	for rows.Next() {
		var r models.StakingRecord
		if err := rows.Scan(&r.WalletAddress, &r.Amount, &r.Timestamp); err != nil {
			return nil, storeErr("scan staking record", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate staking history", err)
	}
	return out, nil
}
