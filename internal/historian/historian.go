// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the game server publishes action
// records to and the historian binary drains from.
var DefaultQueueName = "fable_actions"

// ActionRecord is one applied session event, captured for out-of-band
// archival. The game server itself keeps no persistent state; this stream
// only observes it.
type ActionRecord struct {
	SessionID   uuid.UUID              `json:"session_id"`
	ActionIndex int                    `json:"action_index"`
	TeamName    string                 `json:"team_name"`
	ActionType  string                 `json:"action_type"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   int64                  `json:"timestamp"`
}

// Connect initializes a Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func Connect() (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// Publisher pushes action records onto the historian queue. Record never
// blocks the caller: the push happens on its own goroutine and failures are
// logged and dropped.
type Publisher struct {
	client    *redis.Client
	queue     string
	sessionID uuid.UUID
	log       *logrus.Logger

	// index increments per record; the publisher is only ever called from
	// the coordinator's single event loop, so no synchronization is needed.
	index int
}

// NewPublisher builds a publisher for one session lifetime.
func NewPublisher(client *redis.Client, logger *logrus.Logger) *Publisher {
	sessionID, _ := uuid.NewRandom()
	return &Publisher{
		client:    client,
		queue:     getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName),
		sessionID: sessionID,
		log:       logger,
	}
}

// Record enqueues one applied event, fire-and-forget.
func (p *Publisher) Record(actionType string, team string, payload map[string]interface{}) {
	rec := ActionRecord{
		SessionID:   p.sessionID,
		ActionIndex: p.index,
		TeamName:    team,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	p.index++

	go func() {
		data, err := json.Marshal(rec)
		if err != nil {
			p.log.Warnf("historian: failed to marshal action record: %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
			p.log.Warnf("historian: failed to push to queue %q: %v", p.queue, err)
		}
	}()
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
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
