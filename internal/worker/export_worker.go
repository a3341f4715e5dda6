// Package worker turns expense events into spreadsheet audit rows.
package worker

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets"
	"ledger/internal/storage"
)

// SnapshotAction marks rows written by Snapshot rather than by an event.
const SnapshotAction = "snapshot"

// ExportWorker appends one audit row per expense event.
type ExportWorker struct {
	store    storage.ExpenseStore
	exporter sheets.Exporter
	logger   *log.Logger
}

func NewExportWorker(store storage.ExpenseStore, exporter sheets.Exporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleExpenseEvent processes a single event from AMQP. A returned error
// asks the consumer to redeliver the message.
func (w *ExportWorker) HandleExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		log.FieldExpenseID, ev.ID,
		log.FieldAction, string(ev.Action))

	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var row sheets.AuditRow
	switch ev.Action {
	case amqp.ActionDeleted:
		row = sheets.AuditRow{Timestamp: at, Action: string(ev.Action), ExpenseID: ev.ID, OwnerID: ev.OwnerID}
	case amqp.ActionCreated, amqp.ActionUpdated:
		e, err := w.store.Get(ctx, ev.ID)
		if core.IsNotFound(err) {
			// Deleted before we got here; the delete event records it.
			w.logger.WarnContext(ctx, "Expense gone before export, skipping", log.FieldExpenseID, ev.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		row = sheets.RowFromExpense(string(ev.Action), at, e)
	default:
		w.logger.WarnContext(ctx, "Unknown expense action, skipping",
			log.FieldExpenseID, ev.ID,
			log.FieldAction, string(ev.Action))
		return nil
	}

	if _, err := w.exporter.AppendRows(ctx, []sheets.AuditRow{row}); err != nil {
		w.logger.ErrorContext(ctx, "Failed to export expense event",
			log.FieldExpenseID, ev.ID,
			log.FieldError, err)
		return fmt.Errorf("append to sheets: %w", err)
	}

	w.logger.InfoContext(ctx, "Exported expense event",
		log.FieldExpenseID, ev.ID,
		log.FieldOwnerID, ev.OwnerID,
		log.FieldOperation, log.OpExport)
	return nil
}

// Snapshot writes the current state of every expense ownerID has, in
// listing order, as a single batch.
func (w *ExportWorker) Snapshot(ctx context.Context, ownerID string) (int, error) {
	items, err := w.store.ListByOwner(ctx, ownerID, core.AllTypes)
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}
	if len(items) == 0 {
		w.logger.InfoContext(ctx, "No expenses to snapshot", log.FieldOwnerID, ownerID)
		return 0, nil
	}

	at := time.Now().UTC()
	rows := make([]sheets.AuditRow, 0, len(items))
	for _, e := range items {
		rows = append(rows, sheets.RowFromExpense(SnapshotAction, at, e))
	}
	n, err := w.exporter.AppendRows(ctx, rows)
	if err != nil {
		return n, fmt.Errorf("append snapshot: %w", err)
	}

	w.logger.InfoContext(ctx, "Snapshot exported",
		log.FieldOwnerID, ownerID,
		log.FieldCount, n)
	return n, nil
}
