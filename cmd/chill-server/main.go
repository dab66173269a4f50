package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/AlanDaniels101/chill/pkg/chill/api"
	"github.com/AlanDaniels101/chill/pkg/chill/engine"
	"github.com/AlanDaniels101/chill/pkg/chill/logging"
	"github.com/AlanDaniels101/chill/pkg/chill/push"
	"github.com/AlanDaniels101/chill/pkg/chill/rules"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logging.Setup()

	dbPath := getEnv("CHILL_DB_PATH", "chill.db")
	listenAddr := getEnv("CHILL_LISTEN_ADDR", ":8080")
	pushEndpoint := getEnv("CHILL_PUSH_ENDPOINT", "https://fcm.googleapis.com/v1/projects/chill-app/messages:send")
	pushKey := os.Getenv("CHILL_PUSH_API_KEY")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		slog.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}

	st, err := store.Open(db, rules.New())
	if err != nil {
		slog.Error("failed to load store", "error", err)
		os.Exit(1)
	}
	slog.Info("store loaded", "database", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(st, push.NewHTTPSender(pushEndpoint, pushKey))
	eng.Start(ctx)
	slog.Info("reaction engine started")

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: api.NewRouter(st),
	}
	go func() {
		slog.Info("listening", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	eng.Quiesce(5 * time.Second)
	st.Close()
}
