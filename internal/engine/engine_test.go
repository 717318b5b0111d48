// internal/engine/engine_test.go
package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/models"
	"github.com/starkshoot/lobby-server/internal/store"
)

// fakeClock is a mutable time source shared with the engine under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockRecorder collects published records instead of pushing them to Redis.
type mockRecorder struct {
	mu      sync.Mutex
	records []models.RoomCompletedRecord
}

func (m *mockRecorder) RoomCompleted(ctx context.Context, record models.RoomCompletedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func newTestEngine(t *testing.T) (*engine.Engine, *store.Memory, *fakeClock, *mockRecorder) {
	t.Helper()
	mem := store.NewMemory()
	clock := newFakeClock()
	rec := &mockRecorder{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	eng := engine.New(mem, mem, rec, logger).WithClock(clock.Now)
	return eng, mem, clock, rec
}

func mustCreate(t *testing.T, eng *engine.Engine, params engine.CreateRoomParams) *models.Room {
	t.Helper()
	room, err := eng.CreateRoom(context.Background(), params)
	require.NoError(t, err)
	return room
}

func TestCreateRoomDefaults(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	room := mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, Creator: "0xA"})
	assert.Equal(t, engine.DefaultMaxMembers, room.MaxMembers)
	assert.Equal(t, engine.DefaultStakingToken, room.StakingToken)
	assert.Empty(t, room.Users)
	assert.False(t, room.GameStarted)
	assert.False(t, room.GameEnded)

	generated := mustCreate(t, eng, engine.CreateRoomParams{Duration: 60})
	assert.NotEmpty(t, generated.RoomID)
}

func TestCreateRoomDuplicateID(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180})
	_, err := eng.CreateRoom(context.Background(), engine.CreateRoomParams{RoomID: "r1", Duration: 60})
	assert.ErrorIs(t, err, engine.ErrDuplicateRoomID)
}

// TestJoinFlow runs the reference scenario: a two-seat room filling up.
func TestJoinFlow(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, MaxMembers: 2})

	room, assigned, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)
	assert.Equal(t, 180, assigned)
	assert.True(t, room.GameStarted)
	require.NotNil(t, room.StartedAt)
	assert.Equal(t, []string{"0xA"}, room.Users)

	room, _, err = eng.JoinRoom(ctx, "r1", "0xB")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA", "0xB"}, room.Users)

	_, _, err = eng.JoinRoom(ctx, "r1", "0xC")
	assert.ErrorIs(t, err, engine.ErrRoomFull)
}

func TestJoinRoomNotFound(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	_, _, err := eng.JoinRoom(context.Background(), "missing", "0xA")
	assert.ErrorIs(t, err, engine.ErrRoomNotFound)
}

func TestJoinDuplicateMember(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180})
	_, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(ctx, "r1", "0xA")
	assert.ErrorIs(t, err, engine.ErrAlreadyInRoom)
}

func TestJoinSnapshotsUserRecord(t *testing.T) {
	eng, mem, clock, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180})
	_, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, assigned, err := eng.JoinRoom(ctx, "r1", "0xB")
	require.NoError(t, err)
	assert.Equal(t, 150, assigned)

	u, err := mem.FindByWallet(ctx, "0xB")
	require.NoError(t, err)
	assert.Equal(t, "r1", u.CurrentRoomID)
	assert.Equal(t, 150, u.CurrentRoomDuration)
}

// startedAt is captured on the first join and never moves afterwards.
func TestSingleStartTimestamp(t *testing.T) {
	eng, _, clock, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, MaxMembers: 3})
	first, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)
	started := *first.StartedAt

	clock.Advance(45 * time.Second)
	second, _, err := eng.JoinRoom(ctx, "r1", "0xB")
	require.NoError(t, err)
	assert.True(t, second.GameStarted)
	assert.Equal(t, started, *second.StartedAt)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	const attempts = 10
	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 300, MaxMembers: 3})

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wallet := string(rune('A'+i)) + "-wallet"
			_, _, errs[i] = eng.JoinRoom(ctx, "r1", wallet)
		}(i)
	}
	wg.Wait()

	var successes, full int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, engine.ErrRoomFull):
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	assert.Equal(t, 3, successes)
	assert.Equal(t, attempts-3, full)
}

func TestConcurrentDuplicateJoins(t *testing.T) {
	eng, mem, _, _ := newTestEngine(t)
	ctx := context.Background()

	const attempts = 8
	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 300, MaxMembers: 6})

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = eng.JoinRoom(ctx, "r1", "0xA")
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, engine.ErrAlreadyInRoom)
		}
	}
	assert.Equal(t, 1, successes)

	room, err := mem.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA"}, room.Users)
}

// TestAvailabilityFloor pins the 30% boundary: a started room drops off the
// list once fewer than 30% of its original duration remains.
func TestAvailabilityFloor(t *testing.T) {
	eng, _, clock, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 100, MaxMembers: 4})
	_, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)

	clock.Advance(69 * time.Second)
	available, err := eng.AvailableRooms(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, 31, available[0].AvailableDuration)

	clock.Advance(2 * time.Second)
	available, err = eng.AvailableRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestAvailabilityView(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{
		RoomID: "idle", Duration: 120, MaxMembers: 4, StakingAmount: 5, StakingToken: "AST",
	})
	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "busy", Duration: 120, MaxMembers: 1})
	_, _, err := eng.JoinRoom(ctx, "busy", "0xA")
	require.NoError(t, err)

	available, err := eng.AvailableRooms(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1) // full room is not offered

	entry := available[0]
	assert.Equal(t, "idle", entry.RoomID)
	assert.False(t, entry.GameStarted)
	assert.Equal(t, 4, entry.TotalPlayers)
	assert.Equal(t, 0, entry.PlayersInRoom)
	assert.Equal(t, 120, entry.Duration)
	assert.Equal(t, 120, entry.AvailableDuration)
	assert.Equal(t, 5.0, entry.StakingAmount)
	assert.Equal(t, "AST", entry.StakingToken)
}

func TestStartGame(t *testing.T) {
	eng, _, clock, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, MaxMembers: 3})
	_, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)

	room, err := eng.StartGame(ctx, "r1", "0xA")
	require.NoError(t, err)
	started := *room.StartedAt

	// idempotent: a second start must not move the clock
	clock.Advance(10 * time.Second)
	room, err = eng.StartGame(ctx, "r1", "0xA")
	require.NoError(t, err)
	assert.Equal(t, started, *room.StartedAt)

	_, err = eng.StartGame(ctx, "r1", "0xZ")
	assert.ErrorIs(t, err, engine.ErrUserNotInRoom)

	_, err = eng.StartGame(ctx, "missing", "0xA")
	assert.ErrorIs(t, err, engine.ErrRoomNotFound)
}

func TestMakeWinner(t *testing.T) {
	eng, mem, clock, rec := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, MaxMembers: 3, StakingAmount: 2})
	for _, wallet := range []string{"0xA", "0xB", "0xC"} {
		_, _, err := eng.JoinRoom(ctx, "r1", wallet)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)
	completed, err := eng.MakeWinner(ctx, "r1", "0xB")
	require.NoError(t, err)
	assert.Equal(t, "0xB", completed.Winner)
	assert.True(t, completed.GameEnded)

	// active store no longer has the room; the archive does
	_, err = mem.FindByID(ctx, "r1")
	assert.ErrorIs(t, err, engine.ErrRoomNotFound)
	archived, err := mem.FindCompleted(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "0xB", archived.Winner)
	assert.Equal(t, []string{"0xA", "0xB", "0xC"}, archived.Users)

	// every member got exactly one history entry; only the winner's is flagged
	for _, wallet := range []string{"0xA", "0xB", "0xC"} {
		u, err := mem.FindByWallet(ctx, wallet)
		require.NoError(t, err)
		assert.Empty(t, u.CurrentRoomID)
		assert.Zero(t, u.CurrentRoomDuration)
		require.Len(t, u.ParticipatedRooms, 1)
		entry := u.ParticipatedRooms[0]
		assert.Equal(t, "r1", entry.Room)
		assert.Equal(t, wallet == "0xB", entry.IsWinner)
		assert.Equal(t, 180, entry.GameTime) // original duration, not elapsed time
	}

	require.Len(t, rec.records, 1)
	assert.Equal(t, "r1", rec.records[0].RoomID)
	assert.Equal(t, "0xB", rec.records[0].Winner)
	assert.Equal(t, 2.0, rec.records[0].StakingAmount)
}

func TestMakeWinnerPreconditions(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.MakeWinner(ctx, "missing", "0xA")
	assert.ErrorIs(t, err, engine.ErrRoomNotFound)

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180})
	_, _, err = eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)

	_, err = eng.MakeWinner(ctx, "r1", "0xZ")
	assert.ErrorIs(t, err, engine.ErrUserNotInRoom)
}

func TestJoinAfterGameEnded(t *testing.T) {
	eng, mem, _, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, MaxMembers: 3})
	_, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)

	// end the game without archiving to hit the gameEnded join guard directly
	_, err = mem.MarkEnded(ctx, "r1", "0xA")
	require.NoError(t, err)

	_, _, err = eng.JoinRoom(ctx, "r1", "0xB")
	assert.ErrorIs(t, err, engine.ErrGameAlreadyEnded)
}

// Two racing winner declarations: exactly one transition commits.
func TestConcurrentMakeWinner(t *testing.T) {
	eng, mem, _, rec := newTestEngine(t)
	ctx := context.Background()

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 180, MaxMembers: 2})
	_, _, err := eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(ctx, "r1", "0xB")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, wallet := range []string{"0xA", "0xB"} {
		wg.Add(1)
		go func(i int, wallet string) {
			defer wg.Done()
			_, errs[i] = eng.MakeWinner(ctx, "r1", wallet)
		}(i, wallet)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.True(t,
				errors.Is(err, engine.ErrGameAlreadyEnded) || errors.Is(err, engine.ErrRoomNotFound),
				"unexpected race error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, rec.records, 1)

	// one archive copy, one history entry per member
	_, err = mem.FindCompleted(ctx, "r1")
	require.NoError(t, err)
	for _, wallet := range []string{"0xA", "0xB"} {
		u, err := mem.FindByWallet(ctx, wallet)
		require.NoError(t, err)
		assert.Len(t, u.ParticipatedRooms, 1)
	}
}

func TestRoomDetails(t *testing.T) {
	eng, mem, clock, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := mem.SetupUser(ctx, "0xA", "alice")
	require.NoError(t, err)

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 120, MaxMembers: 4})
	_, _, err = eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(ctx, "r1", "0xB")
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	details, err := eng.GetRoomDetails(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 100, details.RemainingTime)
	assert.Equal(t, 2, details.CurrentMembers)
	require.Len(t, details.Members, 2)
	assert.Equal(t, "alice", details.Members[0].Username)
	assert.Equal(t, "0xB", details.Members[1].WalletAddress) // implicit user keeps wallet as name

	_, err = eng.GetRoomDetails(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrRoomNotFound)
}

func TestRoomsPlayed(t *testing.T) {
	eng, mem, clock, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := mem.SetupUser(ctx, "0xA", "alice")
	require.NoError(t, err)

	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r1", Duration: 120, MaxMembers: 4})
	clock.Advance(time.Second)
	mustCreate(t, eng, engine.CreateRoomParams{RoomID: "r2", Duration: 120, MaxMembers: 4})
	_, _, err = eng.JoinRoom(ctx, "r1", "0xA")
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(ctx, "r2", "0xA")
	require.NoError(t, err)
	_, _, err = eng.JoinRoom(ctx, "r2", "0xB")
	require.NoError(t, err)

	played, err := eng.RoomsPlayed(ctx, "0xA")
	require.NoError(t, err)
	require.Len(t, played, 2)
	assert.Equal(t, "r1", played[0].RoomID)
	assert.Equal(t, "alice", played[0].Users[0].Username)
	require.Len(t, played[1].Users, 2)
}
