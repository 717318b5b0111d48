// internal/handlers/room.go
package handlers

import (
	"net/http"

	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/models"
)

// AvailableRoomsHandler lists joinable rooms with the derived remaining-time
// fields. Pure read, recomputed on every call.
func (s *Server) AvailableRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.Engine.AvailableRooms(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// createRoomRequest keeps the original wire shape; Duration is capitalized
// in the existing front-end payloads.
type createRoomRequest struct {
	RoomID        string  `json:"roomId"`
	Duration      int     `json:"Duration"`
	MaxMembers    int     `json:"maxMembers"`
	Creator       string  `json:"creator"`
	StakingAmount float64 `json:"stakingAmount"`
	StakingToken  string  `json:"stakingToken"`
}

type createRoomResponse struct {
	Success       bool    `json:"success"`
	RoomID        string  `json:"roomId"`
	StakingAmount float64 `json:"stakingAmount"`
	StakingToken  string  `json:"stakingToken"`
	Message       string  `json:"message"`
}

func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Duration <= 0 {
		writeErrorMsg(w, http.StatusBadRequest, "Duration must be a positive number of seconds")
		return
	}
	if req.MaxMembers < 0 || req.StakingAmount < 0 {
		writeErrorMsg(w, http.StatusBadRequest, "maxMembers and stakingAmount must not be negative")
		return
	}

	room, err := s.Engine.CreateRoom(r.Context(), engine.CreateRoomParams{
		RoomID:        req.RoomID,
		Duration:      req.Duration,
		MaxMembers:    req.MaxMembers,
		Creator:       req.Creator,
		StakingAmount: req.StakingAmount,
		StakingToken:  req.StakingToken,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createRoomResponse{
		Success:       true,
		RoomID:        room.RoomID,
		StakingAmount: room.StakingAmount,
		StakingToken:  room.StakingToken,
		Message:       "Room created successfully",
	})
}

type joinRoomRequest struct {
	RoomID        string `json:"roomId"`
	WalletAddress string `json:"walletAddress"`
}

type joinRoomResponse struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	Room             *models.Room `json:"room"`
	AssignedDuration int          `json:"assignedDuration"`
}

func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RoomID == "" || req.WalletAddress == "" {
		writeErrorMsg(w, http.StatusBadRequest, "roomId and walletAddress are required")
		return
	}

	room, assigned, err := s.Engine.JoinRoom(r.Context(), req.RoomID, req.WalletAddress)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, joinRoomResponse{
		Success:          true,
		Message:          "User successfully joined the room",
		Room:             room,
		AssignedDuration: assigned,
	})
}

type startGameRequest struct {
	RoomID        string `json:"roomId"`
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) StartGameHandler(w http.ResponseWriter, r *http.Request) {
	var req startGameRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RoomID == "" || req.WalletAddress == "" {
		writeErrorMsg(w, http.StatusBadRequest, "roomId and walletAddress are required")
		return
	}

	room, err := s.Engine.StartGame(r.Context(), req.RoomID, req.WalletAddress)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"room":    room,
	})
}

type makeWinnerRequest struct {
	RoomID        string `json:"roomId"`
	WalletAddress string `json:"walletAddress"`
}

type makeWinnerResponse struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	CompletedRoom *models.CompletedRoom `json:"completedRoom"`
}

// MakeWinnerHandler declares the winner. Once the archival committed the
// response reports success even if individual history updates failed; those
// are logged, not rolled back.
func (s *Server) MakeWinnerHandler(w http.ResponseWriter, r *http.Request) {
	var req makeWinnerRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RoomID == "" || req.WalletAddress == "" {
		writeErrorMsg(w, http.StatusBadRequest, "roomId and walletAddress are required")
		return
	}

	completed, err := s.Engine.MakeWinner(r.Context(), req.RoomID, req.WalletAddress)
	if completed == nil && err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err != nil {
		s.Logger.WithError(err).WithField("roomId", req.RoomID).Warn("winner declared with partial history fan-out")
	}

	writeJSON(w, http.StatusOK, makeWinnerResponse{
		Success:       true,
		Message:       "Winner declared and room moved to completed successfully",
		CompletedRoom: completed,
	})
}

func (s *Server) RoomDetailsHandler(w http.ResponseWriter, r *http.Request) {
	details, err := s.Engine.GetRoomDetails(r.Context(), r.PathValue("roomId"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
