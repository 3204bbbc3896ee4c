package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/david/place-sync/internal/api"
	"github.com/david/place-sync/internal/config"
	"github.com/david/place-sync/internal/db"
	"github.com/david/place-sync/internal/ingest"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(os.Getenv("PLACESYNC_CONFIG"))
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("Invalid log config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}

	registry, err := ingest.LoadRegistry(os.Getenv("PLACESYNC_FEEDS"))
	if err != nil {
		logger.Fatalf("Failed to load feed registry: %v", err)
	}

	srv, err := api.NewServer(pool, cfg, registry, logger)
	if err != nil {
		logger.Fatalf("Failed to build server: %v", err)
	}

	go func() {
		logger.Infof("Server starting on port %s...", cfg.Server.Port)
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
