// cmd/server/main.go
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/fablegame/fable/internal/coordinator"
	"github.com/fablegame/fable/internal/handlers"
	"github.com/fablegame/fable/internal/historian"
	"github.com/fablegame/fable/internal/middleware"
	"github.com/fablegame/fable/internal/session"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	env := getEnv("FABLE_ENV", "development")
	port := getEnv("PORT", "3001")
	logger.Infof("Environment: %s", env)
	logger.Infof("Server running on port: %s", port)

	sess := session.New(logger, session.Config{
		DeckSize: getEnvInt("DECK_SIZE", 0),
		HandSize: getEnvInt("HAND_SIZE", 0),
	})
	coord := coordinator.New(logger, sess)

	// The historian queue is optional: without REDIS_ADDR the session runs
	// exactly the same, just unarchived.
	if os.Getenv("REDIS_ADDR") != "" {
		if client, err := historian.Connect(); err != nil {
			logger.Warnf("historian queue disabled: %v", err)
		} else {
			pub := historian.NewPublisher(client, logger)
			coord.RecordFn = pub.Record
			logger.Info("historian queue enabled")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	logmw := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("/api/health", logmw(http.HandlerFunc(handlers.HealthHandler)))
	mux.Handle("/api/ping", logmw(http.HandlerFunc(handlers.PingHandler)))
	mux.Handle("/api/gamestate", logmw(handlers.GameStateHandler(coord)))
	mux.Handle("/ws", handlers.GameWSHandler(logger, coord))

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
	}

	l, err := net.Listen("tcp", ":"+port)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt retrieves an integer environment variable or returns a default.
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
