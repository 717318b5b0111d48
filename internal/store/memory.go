// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/models"
)

// Memory is an in-memory backend holding rooms, users and the append-only
// record logs. It backs tests and the STORE=memory dev mode. All conditional
// mutations run under the mutex, which is what makes the join/winner races
// single-winner.
type Memory struct {
	mu          sync.Mutex
	rooms       map[string]*models.Room
	completed   map[string]*models.CompletedRoom
	users       map[string]*models.User
	leaderboard []models.LeaderboardEntry
	staking     []models.StakingRecord
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		rooms:     make(map[string]*models.Room),
		completed: make(map[string]*models.CompletedRoom),
		users:     make(map[string]*models.User),
	}
}

func cloneRoom(r *models.Room) *models.Room {
	c := *r
	c.Users = append([]string(nil), r.Users...)
	if r.StartedAt != nil {
		at := *r.StartedAt
		c.StartedAt = &at
	}
	return &c
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.ParticipatedRooms = append([]models.ParticipatedRoom(nil), u.ParticipatedRooms...)
	return &c
}

// FindAvailable returns non-ended rooms below capacity, oldest first.
func (m *Memory) FindAvailable(ctx context.Context) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Room
	for _, r := range m.rooms {
		if !r.GameEnded && len(r.Users) < r.MaxMembers {
			out = append(out, *cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindByID(ctx context.Context, roomID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, engine.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (m *Memory) FindByMember(ctx context.Context, walletAddress string) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Room
	for _, r := range m.rooms {
		if r.HasUser(walletAddress) {
			out = append(out, *cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) InsertIfAbsent(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[room.RoomID]; exists {
		return engine.ErrDuplicateRoomID
	}
	m.rooms[room.RoomID] = cloneRoom(room)
	return nil
}

func (m *Memory) AppendUser(ctx context.Context, roomID, walletAddress string, at time.Time) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, engine.ErrRoomNotFound
	}
	if r.GameEnded {
		return nil, engine.ErrGameAlreadyEnded
	}
	if r.HasUser(walletAddress) {
		return nil, engine.ErrAlreadyInRoom
	}
	if r.IsFull() {
		return nil, engine.ErrRoomFull
	}
	r.Users = append(r.Users, walletAddress)
	r.GameStarted = true
	if r.StartedAt == nil {
		started := at
		r.StartedAt = &started
	}
	return cloneRoom(r), nil
}

func (m *Memory) MarkStarted(ctx context.Context, roomID string, at time.Time) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, engine.ErrRoomNotFound
	}
	if r.GameEnded {
		return nil, engine.ErrGameAlreadyEnded
	}
	r.GameStarted = true
	if r.StartedAt == nil {
		started := at
		r.StartedAt = &started
	}
	return cloneRoom(r), nil
}

func (m *Memory) MarkEnded(ctx context.Context, roomID, winner string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, engine.ErrRoomNotFound
	}
	if r.GameEnded {
		return nil, engine.ErrGameAlreadyEnded
	}
	r.GameEnded = true
	r.Winner = winner
	return cloneRoom(r), nil
}

func (m *Memory) Archive(ctx context.Context, room *models.CompletedRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *room
	c.Room = *cloneRoom(&room.Room)
	m.completed[room.RoomID] = &c
	return nil
}

func (m *Memory) DeleteByID(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

// FindCompleted retrieves an archived room.
func (m *Memory) FindCompleted(ctx context.Context, roomID string) (*models.CompletedRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.completed[roomID]
	if !ok {
		return nil, engine.ErrRoomNotFound
	}
	cp := *c
	cp.Room = *cloneRoom(&c.Room)
	return &cp, nil
}

func (m *Memory) FindByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[walletAddress]
	if !ok {
		return nil, engine.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) FindByWallets(ctx context.Context, walletAddresses []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, addr := range walletAddresses {
		if u, ok := m.users[addr]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (m *Memory) UpsertCurrentRoom(ctx context.Context, walletAddress, roomID string, remainingSeconds int) (engine.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[walletAddress]
	if !ok {
		m.users[walletAddress] = &models.User{
			WalletAddress:       walletAddress,
			Username:            walletAddress,
			CurrentRoomID:       roomID,
			CurrentRoomDuration: remainingSeconds,
			CreatedAt:           time.Now(),
		}
		return engine.OutcomeCreated, nil
	}
	u.CurrentRoomID = roomID
	u.CurrentRoomDuration = remainingSeconds
	return engine.OutcomeUpdated, nil
}

func (m *Memory) ClearCurrentRoomAndAppendHistory(ctx context.Context, walletAddress string, entry models.ParticipatedRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[walletAddress]
	if !ok {
		return engine.ErrUserNotFound
	}
	u.CurrentRoomID = ""
	u.CurrentRoomDuration = 0
	u.ParticipatedRooms = append(u.ParticipatedRooms, entry)
	return nil
}

// SetupUser upserts a user by wallet, enforcing username uniqueness across
// all users.
func (m *Memory) SetupUser(ctx context.Context, walletAddress, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, u := range m.users {
		if u.Username == username && addr != walletAddress {
			return nil, engine.ErrUsernameTaken
		}
	}
	u, ok := m.users[walletAddress]
	if !ok {
		u = &models.User{WalletAddress: walletAddress, CreatedAt: time.Now()}
		m.users[walletAddress] = u
	}
	u.Username = username
	return cloneUser(u), nil
}

// SetStaked upserts the user's stake commitment flag.
func (m *Memory) SetStaked(ctx context.Context, walletAddress string, staked bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[walletAddress]
	if !ok {
		u = &models.User{WalletAddress: walletAddress, Username: walletAddress, CreatedAt: time.Now()}
		m.users[walletAddress] = u
	}
	u.IsStaked = staked
	return cloneUser(u), nil
}

func (m *Memory) AddLeaderboardEntry(ctx context.Context, entry models.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.leaderboard = append(m.leaderboard, entry)
	return nil
}

func (m *Memory) LeaderboardByWallet(ctx context.Context, walletAddress string) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LeaderboardEntry
	for _, e := range m.leaderboard {
		if e.WalletAddress == walletAddress {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) LeaderboardByRoom(ctx context.Context, roomID string) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LeaderboardEntry
	for _, e := range m.leaderboard {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) AppendStakingRecord(ctx context.Context, record models.StakingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	m.staking = append(m.staking, record)
	return nil
}

// StakingHistoryByWallet returns the wallet's staking records, newest first.
func (m *Memory) StakingHistoryByWallet(ctx context.Context, walletAddress string) ([]models.StakingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StakingRecord
	for _, r := range m.staking {
		if r.WalletAddress == walletAddress {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
