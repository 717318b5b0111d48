// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/starkshoot/lobby-server/internal/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps the error taxonomy to HTTP statuses: not-found
// conditions to 404, precondition failures to 400, store failures to 503.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound), errors.Is(err, engine.ErrUserNotFound):
		writeErrorMsg(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrDuplicateRoomID),
		errors.Is(err, engine.ErrGameAlreadyEnded),
		errors.Is(err, engine.ErrAlreadyInRoom),
		errors.Is(err, engine.ErrRoomFull),
		errors.Is(err, engine.ErrUserNotInRoom),
		errors.Is(err, engine.ErrUsernameTaken):
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrStoreUnavailable):
		s.Logger.WithError(err).Error("store unavailable")
		writeErrorMsg(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.Logger.WithError(err).Error("internal error")
		writeErrorMsg(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
