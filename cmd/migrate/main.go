// This file is used to run database migrations
// How to run:
// go run cmd/migrate/main.go              # Run all pending migrations
// go run cmd/migrate/main.go -down        # Rollback all migrations
// go run cmd/migrate/main.go -steps 1     # Run one migration
// go run cmd/migrate/main.go -steps -1    # Rollback one migration
// go run cmd/migrate/main.go -force 1     # Force version 1
package main

import (
	"errors"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/celestiaorg/shipyard/internal/config"
	"github.com/celestiaorg/shipyard/internal/db/migrations"
	"github.com/celestiaorg/shipyard/internal/logger"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatalf("Error loading .env file: %v", err)
	}

	defaults := migrations.DefaultConfig()
	var (
		dbURLFlag = flag.String("db", "", "Database URL (optional, defaults to env vars)")
		migPath   = flag.String("path", defaults.MigrationsPath, "Path to migration files")
		down      = flag.Bool("down", false, "Roll back migrations")
		steps     = flag.Int("steps", 0, "Number of migrations to apply (up or down)")
		force     = flag.Int("force", -1, "Force a specific version")
		retries   = flag.Int("retries", defaults.RetryAttempts, "Number of connection retries")
		retryWait = flag.Duration("retry-wait", defaults.RetryDelay, "Wait time between retries")
	)
	flag.Parse()

	// Use command line flag if provided, otherwise build the URL from env vars
	dbURL := *dbURLFlag
	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatalf("Invalid configuration: %v", err)
		}
		dbURL = cfg.DB.URL()
	}

	service, err := migrations.NewMigrationService(migrations.Config{
		MigrationsPath: *migPath,
		DatabaseURL:    dbURL,
		RetryAttempts:  *retries,
		RetryDelay:     *retryWait,
	})
	if err != nil {
		logger.Fatalf("Failed to create migration service: %v", err)
	}
	defer func() {
		if err := service.Close(); err != nil {
			logger.Warnf("Failed to close migration service: %v", err)
		}
	}()

	if err := run(service, *force, *steps, *down); err != nil {
		logger.Error(err)
		return
	}

	version, dirty, err := service.Version()
	if err != nil {
		logger.Warnf("Could not get final version: %v", err)
		return
	}
	logger.Infof("Current migration version: %d (dirty: %v)", version, dirty)
}

func run(service *migrations.MigrationService, force, steps int, down bool) error {
	switch {
	case force >= 0:
		if err := service.Force(force); err != nil {
			return err
		}
		logger.Infof("Successfully forced version to %d", force)
	case steps != 0:
		if err := service.Steps(steps); err != nil {
			return err
		}
		logger.Infof("Successfully applied %d steps", steps)
	case down:
		return service.Down()
	default:
		return service.Up()
	}
	return nil
}
