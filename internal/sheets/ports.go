// Package sheets defines the spreadsheet export port used by the worker.
package sheets

import (
	"context"
	"time"

	"ledger/internal/core"
)

// Header is the first row of every export tab.
var Header = []string{"Timestamp", "Action", "ID", "Owner", "Date", "Title", "Category", "Type", "Amount"}

// AuditRow is one exported expense change. Deletions carry only the
// identity columns.
type AuditRow struct {
	Timestamp time.Time
	Action    string
	ExpenseID string
	OwnerID   string
	Date      core.Date
	Title     string
	Category  string
	Type      core.ExpenseType
	Amount    core.Money
}

// RowFromExpense fills a row from the stored record.
func RowFromExpense(action string, at time.Time, e core.Expense) AuditRow {
	return AuditRow{
		Timestamp: at,
		Action:    action,
		ExpenseID: e.ID,
		OwnerID:   e.OwnerID,
		Date:      e.Date,
		Title:     e.Title,
		Category:  e.Category,
		Type:      e.Type,
		Amount:    e.Amount,
	}
}

// Ports for outbound adapters.
type (
	// Exporter appends audit rows in order and returns how many were written.
	Exporter interface {
		AppendRows(ctx context.Context, rows []AuditRow) (int, error)
	}

	// RowReader reads back what was exported for a calendar year.
	RowReader interface {
		ListRows(ctx context.Context, year int) ([]AuditRow, error)
	}

	// Sheet is a destination that can be written and read back.
	Sheet interface {
		Exporter
		RowReader
	}
)
