// cmd/recorder/main.go is an asynchronous recorder service that pops room-completion
// records from a Redis queue and persists leaderboard and staking-history rows to Postgres.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/starkshoot/lobby-server/internal/database"
	"github.com/starkshoot/lobby-server/internal/models"
)

// RecorderService consumes RoomCompletedRecords and writes one leaderboard
// row per member plus, when the room carried a stake, one staking-history
// row per member. It runs fully decoupled from the lifecycle engine.
type RecorderService struct {
	redisClient *redis.Client
	leaderboard *database.LeaderboardStore
	staking     *database.StakingStore
	users       *database.UserStore
	queueName   string

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewRecorderService wires the service from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - DATABASE_URL
//   - RECORDER_QUEUE_NAME (default "starkshoot_room_events")
func NewRecorderService() (*RecorderService, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pool, err := database.Connect(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		cancel()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	return &RecorderService{
		redisClient: rdb,
		leaderboard: database.NewLeaderboardStore(pool),
		staking:     database.NewStakingStore(pool),
		users:       database.NewUserStore(pool),
		queueName:   getEnv("RECORDER_QUEUE_NAME", "starkshoot_room_events"),
		ctx:         ctx,
		cancelFn:    cancel,
	}, nil
}

// Run blocks on the queue until the context is cancelled.
func (rs *RecorderService) Run() {
	log.Println("lobby-recorder service started.")
	for {
		select {
		case <-rs.ctx.Done():
			log.Println("lobby-recorder shutting down.")
			return
		default:
			// BLPop with a short timeout so cancellation is handled.
			res, err := rs.redisClient.BLPop(rs.ctx, 3*time.Second, rs.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if rs.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record models.RoomCompletedRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid room completion record: %v\n", err)
				continue
			}
			rs.persist(record)
		}
	}
}

func (rs *RecorderService) persist(record models.RoomCompletedRecord) {
	names := map[string]string{}
	if users, err := rs.users.FindByWallets(rs.ctx, record.Users); err != nil {
		log.Printf("resolve usernames for room %s: %v\n", record.RoomID, err)
	} else {
		for _, u := range users {
			names[u.WalletAddress] = u.Username
		}
	}

	completedAt := time.UnixMilli(record.CompletedAt)
	for _, member := range record.Users {
		username := names[member]
		if username == "" {
			username = "Unknown"
		}
		entry := models.LeaderboardEntry{
			WalletAddress: member,
			RoomID:        record.RoomID,
			Username:      username,
			GameTime:      record.Duration,
			CreatedAt:     completedAt,
		}
		if err := rs.leaderboard.AddLeaderboardEntry(rs.ctx, entry); err != nil {
			log.Printf("leaderboard row for %s in room %s: %v\n", member, record.RoomID, err)
		}

		if record.StakingAmount > 0 {
			rec := models.StakingRecord{
				WalletAddress: member,
				Amount:        record.StakingAmount,
				Timestamp:     completedAt,
			}
			if err := rs.staking.AppendStakingRecord(rs.ctx, rec); err != nil {
				log.Printf("staking row for %s in room %s: %v\n", member, record.RoomID, err)
			}
		}
	}
	log.Printf("recorded completion of room %s (%d members, winner %s)\n",
		record.RoomID, len(record.Users), record.Winner)
}

func main() {
	rs, err := NewRecorderService()
	if err != nil {
		log.Fatalf("unable to start recorder: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		rs.cancelFn()
	}()

	rs.Run()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
