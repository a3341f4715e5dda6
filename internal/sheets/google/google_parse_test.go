package google

import (
	"testing"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

func TestRowValues(t *testing.T) {
	at := time.Date(2025, 7, 14, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	r := ports.AuditRow{
		Timestamp: at,
		Action:    "created",
		ExpenseID: "e1",
		OwnerID:   "u1",
		Date:      core.NewDate(2025, 7, 13),
		Title:     "Groceries",
		Category:  "Food & Dining",
		Type:      core.Group,
		Amount:    core.Money{Cents: 4550},
	}
	got := rowValues(r)
	want := []any{"2025-07-14T07:30:00Z", "created", "e1", "u1", "2025-07-13", "Groceries", "Food & Dining", "group", "45.50"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("col %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRowValuesDeletionLeavesRecordColumnsBlank(t *testing.T) {
	got := rowValues(ports.AuditRow{Timestamp: time.Unix(0, 0), Action: "deleted", ExpenseID: "e1", OwnerID: "u1"})
	for i := 4; i < len(got); i++ {
		if got[i] != "" {
			t.Errorf("col %d = %v, want blank", i, got[i])
		}
	}
}

func TestParseAuditRows(t *testing.T) {
	values := [][]interface{}{
		{"Timestamp", "Action", "ID", "Owner", "Date", "Title", "Category", "Type", "Amount"},
		{"2025-07-14T07:30:00Z", "created", "e1", "u1", "2025-07-13", "Groceries", "Food & Dining", "group", "45.50"},
		{"2025-07-15T08:00:00Z", "updated", "e1", "u1", "2025-07-13", "Groceries", "Food & Dining", "group", 12.0},
		{"2025-07-16T08:00:00Z", "deleted", "e1", "u1"},
		{""},
	}
	rows := parseAuditRows(values)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Amount.Cents != 4550 || rows[0].Type != core.Group || !rows[0].Date.SameDay(core.NewDate(2025, 7, 13)) {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Amount.Cents != 1200 {
		t.Errorf("numeric cell amount = %d, want 1200", rows[1].Amount.Cents)
	}
	if rows[2].Action != "deleted" || !rows[2].Date.IsZero() || rows[2].Amount.Cents != 0 {
		t.Errorf("row 2 = %+v", rows[2])
	}
}

func TestParseAmountToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"45.50", 4550, true},
		{"45,5", 4550, true},
		{"12", 1200, true},
		{"0.005", 1, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseAmountToCents(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseAmountToCents(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
