// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/bhattrav/arena/internal/cache"
	"github.com/bhattrav/arena/internal/database"
	"github.com/bhattrav/arena/internal/handlers"
	"github.com/bhattrav/arena/internal/middleware"
	"github.com/bhattrav/arena/internal/session"
)

func main() {
	database.ConnectDB(database.ConfigFromEnv())

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	reconciler := &session.Reconciler{
		Store:  database.Store{},
		Logger: logger,
	}

	// History publishing is optional: without redis the server still
	// runs, it just skips the queue.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, session history disabled: %v", err)
	} else {
		reconciler.Publish = cache.PublishSessionResult
	}

	capacity := cache.GetEnvInt("MATCH_CAPACITY", 2)
	durationSec := cache.GetEnvInt("SESSION_DURATION_SEC", 360)

	srv := handlers.NewGameServer(capacity, time.Duration(durationSec)*time.Second, reconciler, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(srv.WSHandler())))
	mux.Handle("/lobby/list", middleware.LogMiddleware(logger)(http.HandlerFunc(handlers.ListLobbiesHandler(srv))))
	mux.Handle("/leaderboard", middleware.LogMiddleware(logger)(http.HandlerFunc(handlers.LeaderboardHandler(srv))))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s (capacity %d, session %ds)", addr, capacity, durationSec)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
