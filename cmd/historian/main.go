// cmd/historian/main.go is an asynchronous history service that pops
// session results from the Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/bhattrav/arena/internal/cache"
	"github.com/bhattrav/arena/internal/database"
)

// HistorianService encapsulates the Redis + DB logic for capturing
// session results emitted by the game server.
type HistorianService struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.SessionResultRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := cache.GetEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := cache.GetEnvInt("HISTORIAN_FLUSH_MS", 500)

	rdb := redis.NewClient(&redis.Options{
		Addr: cache.GetEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.SessionResultRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and consumes the queue until stopped.
func (hs *HistorianService) Run() {
	database.ConnectDB(database.ConfigFromEnv())

	go hs.readRedisLoop()

	log.Println("arena-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatchToDB()
	log.Println("arena-historian shutting down.")
}

// readRedisLoop pops session results with BLPop and accumulates them
// into batches, flushing on size or on the flush ticker.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := cache.GetEnv("HISTORY_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var rec cache.SessionResultRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				log.Printf("invalid session result record: %v\n", err)
				continue
			}
			hs.appendToBatch(rec)
		}
	}
}

// appendToBatch adds a record and flushes if the threshold is reached.
func (hs *HistorianService) appendToBatch(rec cache.SessionResultRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, rec)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchToDBLocked()
	}
}

// flushBatchToDB flushes the current batch in a single transaction.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchToDBLocked()
}

func (hs *HistorianService) flushBatchToDBLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]cache.SessionResultRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertSessionResultTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertSessionResultTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d session results to DB.\n", len(batchCopy))
	}
}

// insertSessionResultTx inserts one session row plus a line per player.
func insertSessionResultTx(ctx context.Context, tx pgx.Tx, rec cache.SessionResultRecord) error {
	teamPoints, err := json.Marshal(rec.TeamPoints)
	if err != nil {
		return err
	}

	sessionQ := `
		INSERT INTO session_results (lobby_id, match_type, mvp_name, mvp_kills, team_points, ended_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6))
		RETURNING id
	`
	var sessionID int64
	if err := tx.QueryRow(ctx, sessionQ,
		rec.LobbyID, rec.MatchType, rec.MVPName, rec.MVPKills, teamPoints, rec.EndedAt,
	).Scan(&sessionID); err != nil {
		return err
	}

	lineQ := `
		INSERT INTO session_result_players (session_id, stable_id, name, kills, deaths, points)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, p := range rec.Players {
		if _, err := tx.Exec(ctx, lineQ,
			sessionID, p.StableID, p.Name, p.Kills, p.Deaths, p.Points,
		); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}
