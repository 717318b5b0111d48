// internal/models/room.go
package models

import "time"

// Room is an active game session. Users joins are ordered (insertion order
// = join order) and bounded by MaxMembers. StartedAt is set exactly once,
// on the first successful join, and never reset afterwards.
type Room struct {
	RoomID        string     `json:"roomId"`
	Users         []string   `json:"users"`
	Duration      int        `json:"duration"` // total allotted session length, seconds
	MaxMembers    int        `json:"maxMembers"`
	Creator       string     `json:"creator"`
	GameStarted   bool       `json:"gameStarted"`
	GameEnded     bool       `json:"gameEnded"`
	StakingAmount float64    `json:"stakingAmount"`
	StakingToken  string     `json:"stakingToken"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	Winner        string     `json:"winner,omitempty"`
}

// HasUser reports whether the wallet already joined the room.
func (r *Room) HasUser(walletAddress string) bool {
	for _, u := range r.Users {
		if u == walletAddress {
			return true
		}
	}
	return false
}

// IsFull reports whether the room reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Users) >= r.MaxMembers
}

// RemainingSeconds derives the time left in the session at the given
// instant, clamped to [0, Duration]. Before the first join (no StartedAt)
// the full duration remains.
func (r *Room) RemainingSeconds(now time.Time) int {
	if !r.GameStarted || r.StartedAt == nil {
		return r.Duration
	}
	elapsed := int(now.Sub(*r.StartedAt).Seconds())
	remaining := r.Duration - elapsed
	if remaining < 0 {
		return 0
	}
	if remaining > r.Duration {
		return r.Duration
	}
	return remaining
}

// CompletedRoom is the archived copy of a Room taken at the moment a winner
// was declared. The active Room row is deleted once this copy is persisted.
type CompletedRoom struct {
	Room
	CompletedAt time.Time `json:"completedAt"`
}

// AvailableRoom is the derived availability view of a joinable room. It is
// recomputed on every request and never persisted.
type AvailableRoom struct {
	RoomID            string   `json:"roomId"`
	GameStarted       bool     `json:"gameStarted"`
	TotalPlayers      int      `json:"totalPlayers"`
	Users             []string `json:"users"`
	PlayersInRoom     int      `json:"playersInRoom"`
	Duration          int      `json:"duration"`
	AvailableDuration int      `json:"availableDuration"`
	StakingAmount     float64  `json:"stakingAmount"`
	StakingToken      string   `json:"stakingToken"`
}
