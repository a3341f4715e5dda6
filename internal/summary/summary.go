// Package summary computes dashboard figures from a full scan of an owner's
// ledger.
package summary

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// RecentLimit is how many records the recency list holds.
const RecentLimit = 5

type Aggregator struct {
	store storage.ExpenseStore
	now   func() time.Time
}

func NewAggregator(store storage.ExpenseStore) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// WithClock replaces the time source used to place the current month.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Summarize scans ownerID's whole ledger. Store errors are returned as is.
func (a *Aggregator) Summarize(ctx context.Context, ownerID string) (core.Summary, error) {
	items, err := a.store.ListByOwner(ctx, ownerID, core.AllTypes)
	if err != nil {
		return core.Summary{}, err
	}
	return Compute(items, a.now()), nil
}

// Compute builds the summary of items as seen at now. Months are classified
// by expense date in now's location.
func Compute(items []core.Expense, now time.Time) core.Summary {
	currentStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	previousStart := currentStart.AddDate(0, -1, 0)

	s := core.Summary{Count: len(items)}
	byCategory := map[string]core.Money{}

	for _, e := range items {
		switch e.Type {
		case core.Personal:
			s.PersonalTotal = s.PersonalTotal.Add(e.Amount)
		case core.Group:
			s.GroupTotal = s.GroupTotal.Add(e.Amount)
		}
		s.Total = s.Total.Add(e.Amount)
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)

		day := time.Date(e.Date.Year(), time.Month(e.Date.Month()), e.Date.Day(), 0, 0, 0, 0, time.UTC)
		switch {
		case !day.Before(currentStart):
			s.CurrentMonthTotal = s.CurrentMonthTotal.Add(e.Amount)
		case !day.Before(previousStart):
			s.PreviousMonthTotal = s.PreviousMonthTotal.Add(e.Amount)
		}
	}

	s.MonthlyChangePercent = ChangePercent(s.CurrentMonthTotal, s.PreviousMonthTotal)
	s.ByCategory = sortedCategories(byCategory)
	s.Recent = Recent(items, RecentLimit)
	return s
}

// ChangePercent is round((cur-prev)/prev*100) with halves rounded toward
// positive infinity, or 0 when prev is not positive.
func ChangePercent(cur, prev core.Money) int64 {
	if prev.Cents <= 0 {
		return 0
	}
	p := decimal.NewFromInt(cur.Cents - prev.Cents).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(prev.Cents))
	return p.Add(decimal.NewFromFloat(0.5)).Floor().IntPart()
}

// Recent returns up to n records ordered by creation time, newest first.
func Recent(items []core.Expense, n int) []core.Expense {
	out := make([]core.Expense, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sortedCategories(m map[string]core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(m))
	for name, amount := range m {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
