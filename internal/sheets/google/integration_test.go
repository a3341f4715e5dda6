//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendAndReadBack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	opts := Options{
		SpreadsheetID:      spreadsheetID,
		SheetName:          "Ledger Integration",
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}
	if opts.ServiceAccountJSON == "" && opts.ServiceAccountFile == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := New(ctx, opts, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	now := time.Now().UTC()
	id := "it-" + now.Format("20060102150405")
	row := ports.AuditRow{
		Timestamp: now,
		Action:    "created",
		ExpenseID: id,
		OwnerID:   "integration",
		Date:      core.DateOf(now),
		Title:     "Integration test",
		Category:  "Other",
		Type:      core.Personal,
		Amount:    core.Money{Cents: 123},
	}
	if _, err := client.AppendRows(ctx, []ports.AuditRow{row}); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}

	rows, err := client.ListRows(ctx, now.Year())
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	for _, r := range rows {
		if r.ExpenseID == id {
			if r.Amount.Cents != 123 {
				t.Errorf("amount = %d, want 123", r.Amount.Cents)
			}
			return
		}
	}
	t.Errorf("row %s not found among %d rows", id, len(rows))
}
