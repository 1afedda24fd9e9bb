// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) the historian consumes
// session results from.
var DefaultQueueName = "arena_session_results"

// PlayerResult is one member's final session line.
type PlayerResult struct {
	StableID string `json:"stable_id"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Points   int    `json:"points"`
}

// SessionResultRecord holds the outcome of one lobby instantiation for
// asynchronous history persistence.
type SessionResultRecord struct {
	LobbyID    uuid.UUID      `json:"lobby_id"`
	MatchType  string         `json:"match_type"`
	MVPName    string         `json:"mvp_name,omitempty"`
	MVPKills   int            `json:"mvp_kills,omitempty"`
	TeamPoints map[string]int `json:"team_points,omitempty"`
	Players    []PlayerResult `json:"players"`
	EndedAt    int64          `json:"ended_at"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := GetEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := GetEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishSessionResult serializes the record to JSON and pushes it onto
// the history queue. This only costs a quick network send on the
// reconciliation path.
func PublishSessionResult(ctx context.Context, rec SessionResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionResultRecord: %w", err)
	}

	queueName := GetEnv("HISTORY_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt parses an environment variable as integer, else a default value.
func GetEnvInt(key string, def int) int {
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
