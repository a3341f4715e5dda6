package summary

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/storage/memory"
)

var march15 = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func expense(cents int64, date core.Date, typ core.ExpenseType, category string, created time.Time) core.Expense {
	return core.Expense{
		ID:        fmt.Sprintf("%d-%s", cents, date),
		OwnerID:   "U",
		Title:     category,
		Amount:    core.Money{Cents: cents},
		Category:  category,
		Date:      date,
		Type:      typ,
		CreatedAt: created,
	}
}

func TestComputeTotalsAndTrend(t *testing.T) {
	items := []core.Expense{
		expense(15000, core.NewDate(2024, 3, 10), core.Personal, "Food & Dining", march15.Add(-time.Hour)),
		expense(10000, core.NewDate(2024, 3, 1), core.Group, "Travel", march15.Add(-2*time.Hour)),
		expense(20000, core.NewDate(2024, 2, 20), core.Personal, "Housing", march15.Add(-3*time.Hour)),
		expense(5000, core.NewDate(2024, 1, 31), core.Group, "Food & Dining", march15.Add(-4*time.Hour)),
	}

	s := Compute(items, march15)

	assert.Equal(t, int64(35000), s.PersonalTotal.Cents)
	assert.Equal(t, int64(15000), s.GroupTotal.Cents)
	assert.Equal(t, int64(50000), s.Total.Cents)
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, int64(25000), s.CurrentMonthTotal.Cents)
	assert.Equal(t, int64(20000), s.PreviousMonthTotal.Cents)
	assert.Equal(t, int64(25), s.MonthlyChangePercent)

	require.Len(t, s.ByCategory, 3)
	assert.Equal(t, "Food & Dining", s.ByCategory[0].Name)
	assert.Equal(t, int64(20000), s.ByCategory[0].Amount.Cents)
	assert.Equal(t, "Housing", s.ByCategory[1].Name)
}

func TestComputeNoPreviousMonth(t *testing.T) {
	items := []core.Expense{
		expense(30000, core.NewDate(2024, 3, 2), core.Personal, "Shopping", march15),
	}
	s := Compute(items, march15)
	assert.Equal(t, int64(30000), s.CurrentMonthTotal.Cents)
	assert.Zero(t, s.PreviousMonthTotal.Cents)
	assert.Zero(t, s.MonthlyChangePercent)
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, march15)
	assert.Zero(t, s.Total.Cents)
	assert.Zero(t, s.Count)
	assert.Empty(t, s.Recent)
	assert.Empty(t, s.ByCategory)
}

func TestMonthBoundaryAcrossYear(t *testing.T) {
	jan3 := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)
	items := []core.Expense{
		expense(100, core.NewDate(2025, 1, 1), core.Personal, "Other", jan3),
		expense(200, core.NewDate(2024, 12, 31), core.Personal, "Other", jan3),
		expense(400, core.NewDate(2024, 11, 30), core.Personal, "Other", jan3),
	}
	s := Compute(items, jan3)
	assert.Equal(t, int64(100), s.CurrentMonthTotal.Cents)
	assert.Equal(t, int64(200), s.PreviousMonthTotal.Cents)
	assert.Equal(t, int64(-50), s.MonthlyChangePercent)
}

func TestChangePercentRounding(t *testing.T) {
	tests := []struct {
		cur, prev int64
		want      int64
	}{
		{25000, 20000, 25},
		{20000, 20000, 0},
		{0, 20000, -100},
		{1, 3, -67},     // -66.67
		{2, 3, -33},     // -33.33
		{1005, 1000, 1}, // 0.5 rounds up
		{995, 1000, 0},  // -0.5 rounds toward +inf
		{985, 1000, -1}, // -1.5 rounds toward +inf
		{500, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		got := ChangePercent(core.Money{Cents: tt.cur}, core.Money{Cents: tt.prev})
		assert.Equal(t, tt.want, got, "cur=%d prev=%d", tt.cur, tt.prev)
	}
}

func TestRecentOrdersByCreation(t *testing.T) {
	var items []core.Expense
	for i := 0; i < 7; i++ {
		// Dates run opposite to creation order.
		items = append(items, expense(int64(100+i), core.NewDate(2024, 3, 10-i), core.Personal, "Other", march15.Add(time.Duration(i)*time.Minute)))
	}
	recent := Recent(items, RecentLimit)
	require.Len(t, recent, RecentLimit)
	for i, e := range recent {
		assert.Equal(t, int64(106-i), e.Amount.Cents)
	}
	assert.Equal(t, int64(100), items[0].Amount.Cents, "input must not be reordered")
}

type failingStore struct {
	*memory.Store
}

func (failingStore) ListByOwner(context.Context, string, core.TypeFilter) ([]core.Expense, error) {
	return nil, &core.TransientStoreError{Op: "list expenses", Err: errors.New("timeout")}
}

func TestSummarizePropagatesStoreErrors(t *testing.T) {
	a := NewAggregator(failingStore{memory.New()})
	_, err := a.Summarize(context.Background(), "U")
	assert.True(t, core.IsTransient(err))
}

func TestSummarizeUsesClock(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, f := range []core.ExpenseFields{
		{Title: "Feb", Amount: core.Money{Cents: 20000}, Category: "Other", Date: core.NewDate(2024, 2, 5), Type: core.Personal},
		{Title: "Mar", Amount: core.Money{Cents: 25000}, Category: "Other", Date: core.NewDate(2024, 3, 5), Type: core.Group},
		{Title: "Other owner", Amount: core.Money{Cents: 99999}, Category: "Other", Date: core.NewDate(2024, 3, 5), Type: core.Group},
	} {
		owner := "U"
		if f.Title == "Other owner" {
			owner = "V"
		}
		_, err := store.Create(ctx, owner, f)
		require.NoError(t, err)
	}

	s, err := NewAggregator(store).WithClock(func() time.Time { return march15 }).Summarize(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, int64(25), s.MonthlyChangePercent)
	assert.Equal(t, int64(20000), s.PersonalTotal.Cents)
	assert.Equal(t, int64(25000), s.GroupTotal.Cents)
	assert.Len(t, s.Recent, 2)
}
