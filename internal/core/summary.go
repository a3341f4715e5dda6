package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Summary is the dashboard view of one owner's ledger.
type Summary struct {
	PersonalTotal Money
	GroupTotal    Money
	Total         Money
	Count         int

	CurrentMonthTotal  Money
	PreviousMonthTotal Money
	// MonthlyChangePercent is 0 when the previous month has no spend.
	MonthlyChangePercent int64

	ByCategory []CategoryAmount
	// Recent holds the newest records by creation time.
	Recent []Expense
}
