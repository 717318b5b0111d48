// internal/handlers/server.go
package handlers

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/models"
)

// UserDirectory covers the user endpoints outside the lifecycle engine:
// setup, lookup and stake-status updates.
type UserDirectory interface {
	FindByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	SetupUser(ctx context.Context, walletAddress, username string) (*models.User, error)
	SetStaked(ctx context.Context, walletAddress string, staked bool) (*models.User, error)
}

// LeaderboardStore is the append-only leaderboard log.
type LeaderboardStore interface {
	AddLeaderboardEntry(ctx context.Context, entry models.LeaderboardEntry) error
	LeaderboardByWallet(ctx context.Context, walletAddress string) ([]models.LeaderboardEntry, error)
	LeaderboardByRoom(ctx context.Context, roomID string) ([]models.LeaderboardEntry, error)
}

// StakingStore is the append-only staking history log.
type StakingStore interface {
	AppendStakingRecord(ctx context.Context, record models.StakingRecord) error
	StakingHistoryByWallet(ctx context.Context, walletAddress string) ([]models.StakingRecord, error)
}

// Server holds the lifecycle engine and the directory/record stores the
// HTTP surface needs. Constructed once in main and injected here.
type Server struct {
	Logger      *log.Logger
	Engine      *engine.Engine
	Users       UserDirectory
	Leaderboard LeaderboardStore
	Staking     StakingStore
}

// Routes registers the full API surface on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// room lifecycle
	mux.HandleFunc("GET /api/rooms/available", s.AvailableRoomsHandler)
	mux.HandleFunc("POST /api/rooms/create", s.CreateRoomHandler)
	mux.HandleFunc("POST /api/room/join", s.JoinRoomHandler)
	mux.HandleFunc("POST /api/rooms/start-game", s.StartGameHandler)
	mux.HandleFunc("POST /api/rooms/make-winner", s.MakeWinnerHandler)
	mux.HandleFunc("GET /api/rooms/{roomId}", s.RoomDetailsHandler)

	// users
	mux.HandleFunc("POST /api/user/setup", s.SetupUserHandler)
	mux.HandleFunc("GET /api/user/{walletAddress}", s.GetUserHandler)
	mux.HandleFunc("GET /api/user/is-staked/{walletAddress}", s.UserStakeStatusHandler)
	mux.HandleFunc("GET /api/user/rooms-played/{walletAddress}", s.RoomsPlayedHandler)
	mux.HandleFunc("POST /api/stake", s.UpdateStakedStatusHandler)

	// staking history
	mux.HandleFunc("POST /api/stake/history/add", s.AddStakingRecordHandler)
	mux.HandleFunc("GET /api/stake/history/{walletAddress}", s.StakingHistoryHandler)

	// leaderboard
	mux.HandleFunc("POST /api/leaderboard/add", s.AddLeaderboardEntryHandler)
	mux.HandleFunc("GET /api/leaderboard/wallet/{walletAddress}", s.LeaderboardByWalletHandler)
	mux.HandleFunc("GET /api/leaderboard/room/{roomId}", s.LeaderboardByRoomHandler)

	return mux
}
