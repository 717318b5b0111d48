// internal/models/records.go
package models

import "time"

// LeaderboardEntry is one append-only leaderboard row, correlated to a
// completed room.
type LeaderboardEntry struct {
	WalletAddress string    `json:"walletAddress"`
	Kills         int       `json:"kills"`
	Score         int       `json:"score"`
	RoomID        string    `json:"roomId"`
	Username      string    `json:"username"`
	GameTime      int       `json:"gameTime"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StakingRecord is one append-only staking-history row.
type StakingRecord struct {
	WalletAddress string    `json:"walletAddress"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// RoomCompletedRecord is the event published to the recorder queue when a
// winner is declared. The leaderboard/staking recorders consume it
// asynchronously; the lifecycle engine never waits on them.
type RoomCompletedRecord struct {
	RoomID        string   `json:"room_id"`
	Users         []string `json:"users"`
	Winner        string   `json:"winner"`
	Duration      int      `json:"duration"`
	StakingAmount float64  `json:"staking_amount"`
	StakingToken  string   `json:"staking_token"`
	CompletedAt   int64    `json:"completed_at"` // epoch millis
}
