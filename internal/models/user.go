// internal/models/user.go
package models

import "time"

// User is keyed by wallet address. CurrentRoomID/CurrentRoomDuration are a
// snapshot taken at the last room-state read; the room's StartedAt is the
// authoritative clock.
type User struct {
	WalletAddress       string             `json:"walletAddress"`
	Username            string             `json:"username"`
	IsStaked            bool               `json:"isStaked"`
	CurrentRoomID       string             `json:"currentRoomId"`
	CurrentRoomDuration int                `json:"currentRoomDuration"`
	ParticipatedRooms   []ParticipatedRoom `json:"participatedRooms"`
	CreatedAt           time.Time          `json:"createdAt"`
}

// ParticipatedRoom is one append-only history entry, written per member when
// the room they were in completes. GameTime records the room's original
// total duration, not the elapsed play time.
type ParticipatedRoom struct {
	Room     string `json:"room"`
	IsWinner bool   `json:"isWinner"`
	GameTime int    `json:"gameTime"`
}

// RoomMember pairs a wallet address with its resolved username for
// room-detail responses.
type RoomMember struct {
	WalletAddress string `json:"walletAddress"`
	Username      string `json:"username"`
}
