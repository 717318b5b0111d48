// internal/engine/errors.go
package engine

import "errors"

// Precondition failures are caller errors and map to 4xx at the HTTP
// boundary. ErrStoreUnavailable wraps persistence/transport failures and is
// the only condition where a retry makes sense.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrDuplicateRoomID  = errors.New("room ID already exists")
	ErrGameAlreadyEnded = errors.New("game has already ended")
	ErrAlreadyInRoom    = errors.New("user already in room")
	ErrRoomFull         = errors.New("room is full")
	ErrUserNotInRoom    = errors.New("user not in this room")
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrStoreUnavailable = errors.New("store unavailable")
)
