// Package cli holds the start-up steps shared by cmd/budgetpal and
// cmd/budgetpal-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/config"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/storage"
)

// Bootstrap loads .env and the configuration, installs the default logger
// for component and validates the configuration. It exits the process when
// the configuration is invalid.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	// Missing .env is normal in production/docker.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.ConfigFromEnv(cfg.LogLevel, cfg.LogFormat, component))
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// Fatal logs msg with args and exits.
func Fatal(logger *log.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

// InitSQLite opens the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		Fatal(logger, "Failed to initialize SQLite repository", "error", err, "path", dbPath)
	}
	return repo
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs first with a context bounded by timeout. done is closed once cleanup
// has returned.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context) error) (context.Context, context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Context cancelled")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			if err := cleanup(shutdownCtx); err != nil {
				logger.Error("Shutdown error", "error", err)
			}
		}
		cancel()
	}()

	return ctx, cancel, done
}
