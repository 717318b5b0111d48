// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/starkshoot/lobby-server/internal/models"
)

const (
	// DefaultMaxMembers applies when a create request omits the capacity.
	DefaultMaxMembers = 6

	// DefaultStakingToken is the token symbol assumed when none is given.
	DefaultStakingToken = "AST"

	// availabilityFloor excludes a started room from the availability list
	// once less than 30% of its original duration remains.
	availabilityFloor = 0.3
)

// RoomStore is the persisted collection of active rooms. The conditional
// mutations (AppendUser, MarkEnded) must be atomic read-modify-writes: two
// racing joins to a near-full room get exactly one success, and two racing
// winner declarations get exactly one.
type RoomStore interface {
	FindAvailable(ctx context.Context) ([]models.Room, error)
	FindByID(ctx context.Context, roomID string) (*models.Room, error)
	FindByMember(ctx context.Context, walletAddress string) ([]models.Room, error)
	InsertIfAbsent(ctx context.Context, room *models.Room) error
	// AppendUser appends the wallet to the room's user list only if the room
	// exists, the game has not ended, the wallet is not already a member and
	// the room is not full. It also sets gameStarted and, if unset, startedAt.
	AppendUser(ctx context.Context, roomID, walletAddress string, at time.Time) (*models.Room, error)
	// MarkStarted flips gameStarted and sets startedAt if it was unset.
	// Idempotent for already-started rooms.
	MarkStarted(ctx context.Context, roomID string, at time.Time) (*models.Room, error)
	// MarkEnded sets the winner and gameEnded only if the game has not
	// already ended.
	MarkEnded(ctx context.Context, roomID, winner string) (*models.Room, error)
	Archive(ctx context.Context, room *models.CompletedRoom) error
	DeleteByID(ctx context.Context, roomID string) error
}

// UpsertOutcome tags whether UpsertCurrentRoom created the user record or
// updated an existing one. A join by a wallet that never ran setup produces
// Created.
type UpsertOutcome int

const (
	OutcomeUpdated UpsertOutcome = iota
	OutcomeCreated
)

// UserStore is the persisted collection of users keyed by wallet address.
type UserStore interface {
	FindByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	FindByWallets(ctx context.Context, walletAddresses []string) ([]models.User, error)
	UpsertCurrentRoom(ctx context.Context, walletAddress, roomID string, remainingSeconds int) (UpsertOutcome, error)
	ClearCurrentRoomAndAppendHistory(ctx context.Context, walletAddress string, entry models.ParticipatedRoom) error
}

// Recorder receives a room-completion event after the archival transition
// committed. Failures are logged, never propagated: the recorders are
// downstream consumers, not part of the transition.
type Recorder interface {
	RoomCompleted(ctx context.Context, record models.RoomCompletedRecord) error
}

// Engine is the room lifecycle core. It holds no authoritative state between
// calls; the stores are the single source of truth.
type Engine struct {
	rooms    RoomStore
	users    UserStore
	recorder Recorder
	logger   *log.Logger

	now func() time.Time
}

// New builds an Engine. recorder may be nil when no event queue is configured.
func New(rooms RoomStore, users UserStore, recorder Recorder, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		rooms:    rooms,
		users:    users,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Every remaining-time computation and
// startedAt capture flows through this single clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateRoomParams carries the validated create-room input. Zero values for
// MaxMembers, StakingToken and RoomID fall back to defaults.
type CreateRoomParams struct {
	RoomID        string
	Duration      int
	MaxMembers    int
	Creator       string
	StakingAmount float64
	StakingToken  string
}

// AvailableRooms returns the derived view of joinable rooms. A started room
// is offered only while at least 30% of its original duration remains.
func (e *Engine) AvailableRooms(ctx context.Context) ([]models.AvailableRoom, error) {
	rooms, err := e.rooms.FindAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("find available rooms: %w", err)
	}

	now := e.now()
	available := make([]models.AvailableRoom, 0, len(rooms))
	for _, room := range rooms {
		remaining := room.RemainingSeconds(now)
		if room.GameStarted && room.StartedAt != nil {
			if float64(remaining) < float64(room.Duration)*availabilityFloor {
				continue
			}
		}
		available = append(available, models.AvailableRoom{
			RoomID:            room.RoomID,
			GameStarted:       room.GameStarted,
			TotalPlayers:      room.MaxMembers,
			Users:             room.Users,
			PlayersInRoom:     len(room.Users),
			Duration:          room.Duration,
			AvailableDuration: remaining,
			StakingAmount:     room.StakingAmount,
			StakingToken:      room.StakingToken,
		})
	}
	return available, nil
}

// CreateRoom inserts a fresh room. Fails with ErrDuplicateRoomID when the
// proposed identity is already taken.
func (e *Engine) CreateRoom(ctx context.Context, params CreateRoomParams) (*models.Room, error) {
	if params.RoomID == "" {
		params.RoomID = uuid.NewString()
	}
	if params.MaxMembers <= 0 {
		params.MaxMembers = DefaultMaxMembers
	}
	if params.StakingToken == "" {
		params.StakingToken = DefaultStakingToken
	}

	room := &models.Room{
		RoomID:        params.RoomID,
		Users:         []string{},
		Duration:      params.Duration,
		MaxMembers:    params.MaxMembers,
		Creator:       params.Creator,
		GameStarted:   false,
		GameEnded:     false,
		StakingAmount: params.StakingAmount,
		StakingToken:  params.StakingToken,
		CreatedAt:     e.now(),
	}
	if err := e.rooms.InsertIfAbsent(ctx, room); err != nil {
		return nil, err
	}

	e.logger.WithFields(log.Fields{
		"roomId":     room.RoomID,
		"maxMembers": room.MaxMembers,
		"duration":   room.Duration,
	}).Info("room created")
	return room, nil
}

// JoinRoom appends the wallet to the room and snapshots the remaining time
// onto the user record. The room mutation is a single atomic conditional
// update; the user update follows separately, so a user-store failure after
// a successful append leaves the two stores diverged (accepted inconsistency
// window, surfaced as an error).
func (e *Engine) JoinRoom(ctx context.Context, roomID, walletAddress string) (*models.Room, int, error) {
	room, err := e.rooms.AppendUser(ctx, roomID, walletAddress, e.now())
	if err != nil {
		return nil, 0, err
	}

	assigned := room.RemainingSeconds(e.now())
	outcome, err := e.users.UpsertCurrentRoom(ctx, walletAddress, roomID, assigned)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"roomId":        roomID,
			"walletAddress": walletAddress,
		}).Error("user update failed after room append")
		return room, assigned, fmt.Errorf("update user after join: %w", err)
	}
	if outcome == OutcomeCreated {
		e.logger.WithField("walletAddress", walletAddress).Warn("join by unregistered wallet, user record created")
	}

	e.logger.WithFields(log.Fields{
		"roomId":           roomID,
		"walletAddress":    walletAddress,
		"assignedDuration": assigned,
		"playersInRoom":    len(room.Users),
	}).Info("user joined room")
	return room, assigned, nil
}

// StartGame starts the room clock for flows that join through an off-band
// path (e.g. after an external staking step). No-op when the game already
// started; the caller must be a member.
func (e *Engine) StartGame(ctx context.Context, roomID, walletAddress string) (*models.Room, error) {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasUser(walletAddress) {
		return nil, ErrUserNotInRoom
	}
	if room.GameStarted {
		return room, nil
	}
	return e.rooms.MarkStarted(ctx, roomID, e.now())
}

// MakeWinner is the terminal transition: mark ended, archive, delete the
// active record, then fan out per-member history updates. The archival
// (steps 1-3) is committed once it succeeds; fan-out failures are collected
// and returned alongside the archived room, never rolled back.
func (e *Engine) MakeWinner(ctx context.Context, roomID, walletAddress string) (*models.CompletedRoom, error) {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasUser(walletAddress) {
		return nil, ErrUserNotInRoom
	}

	ended, err := e.rooms.MarkEnded(ctx, roomID, walletAddress)
	if err != nil {
		return nil, err
	}

	completed := &models.CompletedRoom{Room: *ended, CompletedAt: e.now()}
	if err := e.rooms.Archive(ctx, completed); err != nil {
		return nil, fmt.Errorf("archive room %s: %w", roomID, err)
	}
	if err := e.rooms.DeleteByID(ctx, roomID); err != nil {
		return nil, fmt.Errorf("delete archived room %s: %w", roomID, err)
	}

	var fanoutErrs []error
	for _, member := range ended.Users {
		entry := models.ParticipatedRoom{
			Room:     roomID,
			IsWinner: member == walletAddress,
			GameTime: ended.Duration,
		}
		if err := e.users.ClearCurrentRoomAndAppendHistory(ctx, member, entry); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"roomId":        roomID,
				"walletAddress": member,
			}).Error("history fan-out failed for member")
			fanoutErrs = append(fanoutErrs, fmt.Errorf("history update for %s: %w", member, err))
		}
	}

	if e.recorder != nil {
		record := models.RoomCompletedRecord{
			RoomID:        ended.RoomID,
			Users:         ended.Users,
			Winner:        walletAddress,
			Duration:      ended.Duration,
			StakingAmount: ended.StakingAmount,
			StakingToken:  ended.StakingToken,
			CompletedAt:   completed.CompletedAt.UnixMilli(),
		}
		if err := e.recorder.RoomCompleted(ctx, record); err != nil {
			e.logger.WithError(err).WithField("roomId", roomID).Error("failed to publish room completion record")
		}
	}

	e.logger.WithFields(log.Fields{
		"roomId": roomID,
		"winner": walletAddress,
	}).Info("winner declared, room archived")
	return completed, errors.Join(fanoutErrs...)
}

// RoomDetails is the room view with usernames resolved and remaining time
// computed. Unregistered members resolve to "Unknown".
type RoomDetails struct {
	RoomID         string              `json:"roomId"`
	Members        []models.RoomMember `json:"members"`
	Duration       int                 `json:"duration"`
	RemainingTime  int                 `json:"remainingTime"`
	GameStarted    bool                `json:"gameStarted"`
	GameEnded      bool                `json:"gameEnded"`
	MaxMembers     int                 `json:"maxMembers"`
	CurrentMembers int                 `json:"currentMembers"`
	Winner         string              `json:"winner,omitempty"`
}

// GetRoomDetails resolves the room plus member usernames.
func (e *Engine) GetRoomDetails(ctx context.Context, roomID string) (*RoomDetails, error) {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	names, err := e.usernamesFor(ctx, room.Users)
	if err != nil {
		return nil, err
	}
	members := make([]models.RoomMember, 0, len(room.Users))
	for _, addr := range room.Users {
		members = append(members, models.RoomMember{WalletAddress: addr, Username: names[addr]})
	}

	return &RoomDetails{
		RoomID:         room.RoomID,
		Members:        members,
		Duration:       room.Duration,
		RemainingTime:  room.RemainingSeconds(e.now()),
		GameStarted:    room.GameStarted,
		GameEnded:      room.GameEnded,
		MaxMembers:     room.MaxMembers,
		CurrentMembers: len(room.Users),
		Winner:         room.Winner,
	}, nil
}

// RoomPlayed is one entry of the rooms-played view: an active room the
// wallet is a member of, with all member usernames resolved.
type RoomPlayed struct {
	RoomID string              `json:"roomId"`
	Users  []models.RoomMember `json:"users"`
}

// RoomsPlayed lists active rooms the wallet participates in.
func (e *Engine) RoomsPlayed(ctx context.Context, walletAddress string) ([]RoomPlayed, error) {
	rooms, err := e.rooms.FindByMember(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("find rooms for %s: %w", walletAddress, err)
	}

	seen := map[string]struct{}{}
	var wallets []string
	for _, room := range rooms {
		for _, addr := range room.Users {
			if _, ok := seen[addr]; !ok {
				seen[addr] = struct{}{}
				wallets = append(wallets, addr)
			}
		}
	}
	names, err := e.usernamesFor(ctx, wallets)
	if err != nil {
		return nil, err
	}

	played := make([]RoomPlayed, 0, len(rooms))
	for _, room := range rooms {
		members := make([]models.RoomMember, 0, len(room.Users))
		for _, addr := range room.Users {
			members = append(members, models.RoomMember{WalletAddress: addr, Username: names[addr]})
		}
		played = append(played, RoomPlayed{RoomID: room.RoomID, Users: members})
	}
	return played, nil
}

func (e *Engine) usernamesFor(ctx context.Context, wallets []string) (map[string]string, error) {
	names := make(map[string]string, len(wallets))
	for _, addr := range wallets {
		names[addr] = "Unknown"
	}
	if len(wallets) == 0 {
		return names, nil
	}
	users, err := e.users.FindByWallets(ctx, wallets)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}
	for _, u := range users {
		if u.Username != "" {
			names[u.WalletAddress] = u.Username
		}
	}
	return names, nil
}
