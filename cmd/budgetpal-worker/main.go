package main

import (
	"context"
	"errors"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/amqp"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/cli"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/log"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/sheets"
	gsheet "github.com/WouterMerckaert-dev/BudgetPal/internal/sheets/google"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting budgetpal-worker")

	if cfg.DataBackend != "sqlite" {
		cli.Fatal(logger, "The worker needs the sqlite backend", "backend", cfg.DataBackend)
	}
	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "The worker needs AMQP_URL to receive family changes")
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	defer cancel()

	// Ledger export is optional; without it the worker only keeps the audit log.
	var exporter sheets.LedgerExporter
	if cfg.LedgerExportEnabled() {
		e, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			SheetPrefix:     cfg.GoogleSheetPrefix,
		})
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets exporter", "error", err)
		}
		exporter = e
		logger.Info("Google Sheets ledger export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", "error", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, repo, exporter, cfg.SyncBatchSize)

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		// Don't exit - continue with normal operation
		logger.Error("Failed startup sync check", "error", err)
	}

	go func() {
		if err := amqpClient.Run(ctx, syncWorker.HandleFamilyChanged); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncWorker.PeriodicSync(ctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	}()

	<-done
	logger.Info("Worker shutdown complete")
}
