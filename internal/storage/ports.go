// Package storage defines the persistence ports shared by every backend.
package storage

import (
	"context"
	"errors"
	"sort"

	"ledger/internal/core"
)

// ErrEmailTaken is returned by UserStore.CreateUser and UpdateUser when the
// email already belongs to another user.
var ErrEmailTaken = errors.New("email already in use")

// Ports for outbound adapters.
type (
	// ExpenseStore is the expense record store adapter.
	ExpenseStore interface {
		// Create validates f, assigns id and creation time, and returns the id.
		Create(ctx context.Context, ownerID string, f core.ExpenseFields) (string, error)
		Get(ctx context.Context, id string) (core.Expense, error)
		// Update fails with *core.NotFoundError when id is missing.
		Update(ctx context.Context, id string, p core.ExpensePatch) error
		// Delete fails with *core.NotFoundError when id is missing.
		Delete(ctx context.Context, id string) error
		// ListByOwner returns only ownerID's records, newest date first.
		ListByOwner(ctx context.Context, ownerID string, f core.TypeFilter) ([]core.Expense, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
	}

	// Pinger reports backend reachability for readiness probes.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Store is what a backend provides to the application.
	Store interface {
		ExpenseStore
		UserStore
		Pinger
		Close() error
	}
)

// SortByDateDesc orders expenses the way ListByOwner must return them:
// date descending, then creation time descending, then id.
func SortByDateDesc(items []core.Expense) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// PrepareCreate normalizes and validates the fields of a new record.
func PrepareCreate(ownerID string, f core.ExpenseFields) (core.ExpenseFields, error) {
	if ownerID == "" {
		return f, &core.ValidationError{Field: "ownerId", Reason: "is required"}
	}
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// PrepareUpdate applies p to current and validates the result.
func PrepareUpdate(current core.Expense, p core.ExpensePatch) (core.Expense, error) {
	next := current.Apply(p)
	if err := next.Fields().Validate(); err != nil {
		return current, err
	}
	return next, nil
}

// NotFound builds the not-found error for an expense id.
func NotFound(id string) error {
	return &core.NotFoundError{Kind: "expense", ID: id}
}

// UserNotFound builds the not-found error for a user lookup key.
func UserNotFound(key string) error {
	return &core.NotFoundError{Kind: "user", ID: key}
}
