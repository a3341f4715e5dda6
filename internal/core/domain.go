package core

import (
	"strings"
	"time"
)

const (
	Personal ExpenseType = "personal"
	Group    ExpenseType = "group"

	AllTypes     TypeFilter = "all"
	PersonalOnly TypeFilter = TypeFilter(Personal)
	GroupOnly    TypeFilter = TypeFilter(Group)
)

const isoDateLayout = "2006-01-02"

type (
	// ExpenseType partitions a ledger into its personal and group views.
	ExpenseType string

	// TypeFilter narrows a ledger listing; AllTypes applies no constraint.
	TypeFilter string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID          string
		OwnerID     string
		Title       string
		Amount      Money
		Category    string
		Date        Date
		Description string
		Type        ExpenseType
		CreatedAt   time.Time
	}

	// ExpenseFields are the owner-editable parts of an expense.
	ExpenseFields struct {
		Title       string      `json:"title" validate:"required,max=200"`
		Amount      Money       `json:"amount" validate:"-"`
		Category    string      `json:"category" validate:"required,max=100"`
		Date        Date        `json:"date" validate:"-"`
		Description string      `json:"description" validate:"max=1000"`
		Type        ExpenseType `json:"type" validate:"required,oneof=personal group"`
	}

	// ExpensePatch replaces only the non-nil fields.
	ExpensePatch struct {
		Title       *string
		Amount      *Money
		Category    *string
		Date        *Date
		Description *string
		Type        *ExpenseType
	}

	User struct {
		ID           string
		Email        string
		DisplayName  string
		PasswordHash string
		CreatedAt    time.Time
	}
)

// Categories is the fixed category set offered by the expense form.
var Categories = []string{
	"Food & Dining",
	"Transportation",
	"Entertainment",
	"Shopping",
	"Utilities",
	"Housing",
	"Travel",
	"Health & Medical",
	"Education",
	"Personal Care",
	"Gifts & Donations",
	"Other",
}

// IsKnownCategory reports whether name is one of Categories.
func IsKnownCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

func (t ExpenseType) IsValid() bool {
	return t == Personal || t == Group
}

// ParseTypeFilter accepts "", "all", "personal" and "group".
func ParseTypeFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", AllTypes:
		return AllTypes, nil
	case PersonalOnly, GroupOnly:
		return f, nil
	default:
		return "", &ValidationError{Field: "type", Reason: "must be one of all, personal, group"}
	}
}

// Matches reports whether an expense of type t passes the filter.
func (f TypeFilter) Matches(t ExpenseType) bool {
	return f == AllTypes || f == "" || ExpenseType(f) == t
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO calendar day (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Reason: "must be a date in YYYY-MM-DD format"}
	}
	return Date{Time: t}, nil
}

// String renders the ISO form used by every store.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(isoDateLayout)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// SameDay compares calendar days, ignoring time of day.
func (d Date) SameDay(o Date) bool {
	y1, m1, d1 := d.Time.Date()
	y2, m2, d2 := o.Time.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Normalize trims the free-text fields.
func (f ExpenseFields) Normalize() ExpenseFields {
	f.Title = strings.TrimSpace(f.Title)
	f.Category = strings.TrimSpace(f.Category)
	f.Description = strings.TrimSpace(f.Description)
	f.Type = ExpenseType(strings.ToLower(strings.TrimSpace(string(f.Type))))
	return f
}

// Fields returns the editable part of e.
func (e Expense) Fields() ExpenseFields {
	return ExpenseFields{
		Title:       e.Title,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
		Type:        e.Type,
	}
}

// Apply returns e with the patch applied. Identity fields are never touched.
func (e Expense) Apply(p ExpensePatch) Expense {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	f := e.Fields().Normalize()
	e.Title, e.Category, e.Description, e.Type = f.Title, f.Category, f.Description, f.Type
	return e
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Title == nil && p.Amount == nil && p.Category == nil &&
		p.Date == nil && p.Description == nil && p.Type == nil
}
