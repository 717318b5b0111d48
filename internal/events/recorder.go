// internal/events/recorder.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starkshoot/lobby-server/internal/models"
)

// DefaultQueueName is the Redis list the lifecycle engine publishes
// room-completion records to. The recorder binary pops from the same list.
const DefaultQueueName = "starkshoot_room_events"

// Connect initializes a Redis client and verifies it with a ping.
func Connect(addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Recorder publishes room-completion records to a Redis queue. It implements
// engine.Recorder.
type Recorder struct {
	client *redis.Client
	queue  string
}

// NewRecorder builds a Recorder on the given client. An empty queue name
// falls back to DefaultQueueName.
func NewRecorder(client *redis.Client, queue string) *Recorder {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Recorder{client: client, queue: queue}
}

// RoomCompleted serializes the record and pushes it onto the queue. This is
// a quick network send; the consumers run out of process.
func (r *Recorder) RoomCompleted(ctx context.Context, record models.RoomCompletedRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal room completed record: %w", err)
	}
	if err := r.client.RPush(ctx, r.queue, data).Err(); err != nil {
		return fmt.Errorf("rpush to redis list %q: %w", r.queue, err)
	}
	return nil
}
