// internal/handlers/records.go
package handlers

import (
	"net/http"

	"github.com/starkshoot/lobby-server/internal/models"
)

type addStakingRequest struct {
	WalletAddress string  `json:"walletAddress"`
	Amount        float64 `json:"amount"`
}

func (s *Server) AddStakingRecordHandler(w http.ResponseWriter, r *http.Request) {
	var req addStakingRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.WalletAddress == "" {
		writeErrorMsg(w, http.StatusBadRequest, "walletAddress is required")
		return
	}

	record := models.StakingRecord{WalletAddress: req.WalletAddress, Amount: req.Amount}
	if err := s.Staking.AppendStakingRecord(r.Context(), record); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) StakingHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := s.Staking.StakingHistoryByWallet(r.Context(), r.PathValue("walletAddress"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if history == nil {
		history = []models.StakingRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

type addLeaderboardRequest struct {
	WalletAddress string `json:"walletAddress"`
	Kills         int    `json:"kills"`
	Score         int    `json:"score"`
	RoomID        string `json:"roomId"`
	Username      string `json:"username"`
	GameTime      int    `json:"gameTime"`
}

func (s *Server) AddLeaderboardEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req addLeaderboardRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.WalletAddress == "" || req.RoomID == "" {
		writeErrorMsg(w, http.StatusBadRequest, "walletAddress and roomId are required")
		return
	}

	entry := models.LeaderboardEntry{
		WalletAddress: req.WalletAddress,
		Kills:         req.Kills,
		Score:         req.Score,
		RoomID:        req.RoomID,
		Username:      req.Username,
		GameTime:      req.GameTime,
	}
	if err := s.Leaderboard.AddLeaderboardEntry(r.Context(), entry); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) LeaderboardByWalletHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Leaderboard.LeaderboardByWallet(r.Context(), r.PathValue("walletAddress"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) LeaderboardByRoomHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Leaderboard.LeaderboardByRoom(r.Context(), r.PathValue("roomId"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
