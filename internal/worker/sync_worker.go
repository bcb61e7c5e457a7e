package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/amqp"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/sheets"
)

// FamilySource lists and loads families.
type FamilySource interface {
	GetFamily(ctx context.Context, id string) (core.Family, error)
	FamilyIDs(ctx context.Context) ([]string, error)
}

// EventRecorder appends a change to the membership audit log.
type EventRecorder interface {
	RecordEvent(ctx context.Context, change core.FamilyChange) error
}

// SyncWorker records family changes and mirrors the affected ledgers to
// Google Sheets.
type SyncWorker struct {
	families  FamilySource
	events    EventRecorder
	exporter  sheets.LedgerExporter
	batchSize int
}

// NewSyncWorker builds a worker. events and exporter may be nil to disable
// the audit log or the ledger export.
func NewSyncWorker(families FamilySource, events EventRecorder, exporter sheets.LedgerExporter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncWorker{
		families:  families,
		events:    events,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleFamilyChanged processes a single family change message from AMQP.
func (w *SyncWorker) HandleFamilyChanged(ctx context.Context, msg *amqp.FamilyChangedMessage) error {
	slog.InfoContext(ctx, "Processing family change",
		"event", msg.Event,
		"families", msg.FamilyIDs,
		"actor_id", msg.ActorID)

	if w.events != nil {
		if err := w.events.RecordEvent(ctx, msg.Change()); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
	}

	synced, failed := w.exportFamilies(ctx, msg.FamilyIDs)
	if failed > 0 {
		return fmt.Errorf("export ledgers: %d of %d failed", failed, synced+failed)
	}
	return nil
}

// StartupSyncCheck exports every family once. It recovers ledgers whose
// messages were lost while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	ids, err := w.families.FamilyIDs(ctx)
	if err != nil {
		return fmt.Errorf("list families for startup check: %w", err)
	}
	if len(ids) == 0 {
		slog.InfoContext(ctx, "No families found on startup")
		return nil
	}

	synced, failed := w.exportFamilies(ctx, ids)
	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(ids),
		"synced", synced,
		"errors", failed)
	return nil
}

// PeriodicSync is the backup path in case AMQP messages are lost.
func (w *SyncWorker) PeriodicSync(ctx context.Context) error {
	ids, err := w.families.FamilyIDs(ctx)
	if err != nil {
		return fmt.Errorf("list families: %w", err)
	}
	if _, failed := w.exportFamilies(ctx, ids); failed > 0 {
		slog.WarnContext(ctx, "Periodic sync finished with errors", "errors", failed)
	}
	return nil
}

// exportFamilies exports up to batchSize families concurrently. Families that
// no longer exist have their ledger removed.
func (w *SyncWorker) exportFamilies(ctx context.Context, ids []string) (synced, failed int) {
	if w.exporter == nil || len(ids) == 0 {
		return 0, 0
	}

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.exportFamily(gctx, id); err != nil {
				slog.ErrorContext(gctx, "Failed to export ledger", "family_id", id, "error", err)
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

func (w *SyncWorker) exportFamily(ctx context.Context, id string) error {
	f, err := w.families.GetFamily(ctx, id)
	if core.IsNotFound(err) {
		return w.exporter.RemoveFamily(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get family: %w", err)
	}
	return w.exporter.ExportFamily(ctx, f)
}
