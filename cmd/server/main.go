// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/starkshoot/lobby-server/internal/database"
	"github.com/starkshoot/lobby-server/internal/engine"
	"github.com/starkshoot/lobby-server/internal/events"
	"github.com/starkshoot/lobby-server/internal/handlers"
	"github.com/starkshoot/lobby-server/internal/middleware"
	"github.com/starkshoot/lobby-server/internal/store"
)

func main() {
	logger := logrus.New()
	if getEnv("LOG_LEVEL", "") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()

	var (
		rooms       engine.RoomStore
		users       engine.UserStore
		directory   handlers.UserDirectory
		leaderboard handlers.LeaderboardStore
		staking     handlers.StakingStore
	)

	switch kind := getEnv("STORE", "postgres"); kind {
	case "memory":
		// single-process dev mode, nothing persisted
		mem := store.NewMemory()
		rooms, users, directory, leaderboard, staking = mem, mem, mem, mem, mem
		logger.Warn("running with in-memory store")
	case "postgres":
		pool, err := database.Connect(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			log.Fatalf("unable to connect to database: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("unable to migrate schema: %v", err)
		}
		rooms = database.NewRoomStore(pool)
		us := database.NewUserStore(pool)
		users, directory = us, us
		leaderboard = database.NewLeaderboardStore(pool)
		staking = database.NewStakingStore(pool)
	default:
		log.Fatalf("unknown STORE %q", kind)
	}

	var recorder engine.Recorder
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client, err := events.Connect(addr, getEnvInt("REDIS_DB", 0))
		if err != nil {
			log.Fatalf("unable to connect to redis: %v", err)
		}
		defer client.Close()
		recorder = events.NewRecorder(client, os.Getenv("RECORDER_QUEUE_NAME"))
		logger.Info("room completion events publishing to redis")
	}

	eng := engine.New(rooms, users, recorder, logger)
	srv := &handlers.Server{
		Logger:      logger,
		Engine:      eng,
		Users:       directory,
		Leaderboard: leaderboard,
		Staking:     staking,
	}

	handler := middleware.LogMiddleware(logger)(srv.Routes())

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server exited: %v", err)
	}
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
