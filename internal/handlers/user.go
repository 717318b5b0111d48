// internal/handlers/user.go
package handlers

import (
	"net/http"
)

type setupUserRequest struct {
	WalletAddress string `json:"walletAddress"`
	Username      string `json:"username"`
}

// SetupUserHandler upserts a user by wallet address. Usernames are unique
// across all users.
func (s *Server) SetupUserHandler(w http.ResponseWriter, r *http.Request) {
	var req setupUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.WalletAddress == "" || req.Username == "" {
		writeErrorMsg(w, http.StatusBadRequest, "walletAddress and username are required")
		return
	}

	user, err := s.Users.SetupUser(r.Context(), req.WalletAddress, req.Username)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.Users.FindByWallet(r.Context(), r.PathValue("walletAddress"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) UserStakeStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.Users.FindByWallet(r.Context(), r.PathValue("walletAddress"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isStaked": user.IsStaked})
}

type updateStakedRequest struct {
	WalletAddress string `json:"walletAddress"`
	IsStaked      bool   `json:"isStaked"`
}

func (s *Server) UpdateStakedStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateStakedRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.WalletAddress == "" {
		writeErrorMsg(w, http.StatusBadRequest, "walletAddress is required")
		return
	}

	user, err := s.Users.SetStaked(r.Context(), req.WalletAddress, req.IsStaked)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// RoomsPlayedHandler lists the active rooms the wallet is a member of, with
// usernames resolved for every member.
func (s *Server) RoomsPlayedHandler(w http.ResponseWriter, r *http.Request) {
	played, err := s.Engine.RoomsPlayed(r.Context(), r.PathValue("walletAddress"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if len(played) == 0 {
		writeErrorMsg(w, http.StatusNotFound, "No rooms found for this user")
		return
	}
	writeJSON(w, http.StatusOK, played)
}
