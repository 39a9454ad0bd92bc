// Package worker exports recorded payments from SQLite to the
// configured sheet backend, driven by AMQP messages with a periodic
// pending scan as backstop.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finansheet/internal/amqp"
	"finansheet/internal/core"
	"finansheet/internal/sheets"
)

// Store is the storage surface the worker needs.
type Store interface {
	GetPayment(ctx context.Context, id string) (core.Payment, error)
	GetPendingSyncPayments(ctx context.Context, limit int) ([]core.Payment, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncWorker pushes payment rows to the export backend.
type SyncWorker struct {
	store     Store
	exporter  sheets.PaymentExporter
	batchSize int
}

func NewSyncWorker(store Store, exporter sheets.PaymentExporter, batchSize int) *SyncWorker {
	return &SyncWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single payment sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.PaymentSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"payment_id", msg.PaymentID,
		"commitment_id", msg.CommitmentID)

	payment, err := w.store.GetPayment(ctx, msg.PaymentID)
	if err != nil {
		return fmt.Errorf("get payment from storage: %w", err)
	}

	return w.exportPayment(ctx, payment)
}

// ProcessPending exports any payments the queue missed. This is a backup
// mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.GetPendingSyncPayments(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending payments: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending payments", "count", len(pending))

	for _, p := range pending {
		if err := w.exportPayment(ctx, p); err != nil {
			slog.ErrorContext(ctx, "Failed to sync payment", "payment_id", p.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains the pending backlog at worker startup, useful
// to recover from missed AMQP messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.GetPendingSyncPayments(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending payments for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending payments found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending payments on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, p := range pending {
		if err := w.exportPayment(ctx, p); err != nil {
			slog.ErrorContext(ctx, "Failed to sync payment during startup",
				"payment_id", p.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)
	return nil
}

// RunPendingScan re-checks the pending backlog on a fixed interval until
// the context is cancelled.
func (w *SyncWorker) RunPendingScan(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending scan failed", "error", err)
			}
		}
	}
}

func (w *SyncWorker) exportPayment(ctx context.Context, p core.Payment) error {
	ref, err := w.exporter.Append(ctx, p)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, p.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "payment_id", p.ID, "error", markErr)
		}
		return fmt.Errorf("export payment: %w", err)
	}

	if err := w.store.MarkSynced(ctx, p.ID); err != nil {
		return fmt.Errorf("mark payment synced: %w", err)
	}

	slog.InfoContext(ctx, "Payment exported",
		"payment_id", p.ID,
		"sheets_ref", ref)
	return nil
}
