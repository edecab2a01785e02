// Command shipyard runs the job execution and rollback API server
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/celestiaorg/shipyard/internal/app"
	"github.com/celestiaorg/shipyard/internal/config"
	"github.com/celestiaorg/shipyard/internal/db"
	"github.com/celestiaorg/shipyard/internal/logger"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.LogLevel)

	database, err := db.New(db.Options{DB: cfg.DB, AutoMigrate: true})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	shipyard, err := app.New(app.Options{Config: cfg, DB: database})
	if err != nil {
		logger.Fatalf("Failed to build application: %v", err)
	}

	if err := shipyard.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- shipyard.Listen()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-listenErr:
		if err != nil {
			logger.Errorf("Server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shipyard.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}

	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("👋 shipyard stopped")
}
