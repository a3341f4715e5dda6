package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// rowValues renders r in Header column order. Deletions leave the record
// columns blank.
func rowValues(r ports.AuditRow) []any {
	out := []any{timestampString(r.Timestamp), r.Action, r.ExpenseID, r.OwnerID, "", "", "", "", ""}
	if r.Date.IsZero() && r.Title == "" {
		return out
	}
	out[4] = r.Date.String()
	out[5] = r.Title
	out[6] = r.Category
	out[7] = string(r.Type)
	out[8] = decimal.New(r.Amount.Cents, -2).StringFixed(2)
	return out
}

// parseAuditRows converts a values matrix (as returned by Sheets API) back
// into rows. The header and rows without a timestamp are skipped.
func parseAuditRows(values [][]interface{}) []ports.AuditRow {
	var out []ports.AuditRow
	for _, raw := range values {
		cols := toStrings(raw)
		ts, err := time.Parse(time.RFC3339, safeGet(cols, 0))
		if err != nil {
			continue
		}
		r := ports.AuditRow{
			Timestamp: ts,
			Action:    safeGet(cols, 1),
			ExpenseID: safeGet(cols, 2),
			OwnerID:   safeGet(cols, 3),
			Title:     safeGet(cols, 5),
			Category:  safeGet(cols, 6),
			Type:      core.ExpenseType(safeGet(cols, 7)),
		}
		if d, err := core.ParseDate(safeGet(cols, 4)); err == nil {
			r.Date = d
		}
		if cents, ok := parseAmountToCents(safeGet(cols, 8)); ok {
			r.Amount = core.Money{Cents: cents}
		}
		out = append(out, r)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseAmountToCents accepts "12.50", "12,50" and plain integers.
func parseAmountToCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true
}
