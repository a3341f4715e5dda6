package sheets

import (
	"fmt"
	"io"
	"text/tabwriter"

	"ledger/internal/core"
)

// WriteReport prints rows as an aligned table, keeping only ownerID's rows
// when it is set. It returns how many rows were printed.
func WriteReport(w io.Writer, rows []AuditRow, ownerID string) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tACTION\tID\tDATE\tTITLE\tCATEGORY\tTYPE\tAMOUNT")
	n := 0
	for _, r := range rows {
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		amount := ""
		if !r.Date.IsZero() || r.Title != "" {
			amount = core.FormatUSD(r.Amount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			r.Action, r.ExpenseID, r.Date, r.Title, r.Category, r.Type, amount)
		n++
	}
	return n, tw.Flush()
}
