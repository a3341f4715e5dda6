// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Suite runs the storage contract against a fresh store per test.
type Suite struct {
	suite.Suite

	// NewStore returns an empty store; cleanup is registered on t.
	NewStore func(t *testing.T) storage.Store

	store storage.Store
	ctx   context.Context
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	suite.Run(t, &Suite{NewStore: newStore})
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore(s.T())
}

func fields(title string, cents int64, category string, date core.Date, typ core.ExpenseType) core.ExpenseFields {
	return core.ExpenseFields{Title: title, Amount: core.Money{Cents: cents}, Category: category, Date: date, Type: typ}
}

func (s *Suite) mustCreate(owner string, f core.ExpenseFields) string {
	id, err := s.store.Create(s.ctx, owner, f)
	s.Require().NoError(err)
	s.Require().NotEmpty(id)
	return id
}

func (s *Suite) TestCreateListDeleteRoundTrip() {
	id := s.mustCreate("U", core.ExpenseFields{
		Title:    "Groceries",
		Amount:   core.Money{Cents: 4550},
		Category: "Food & Dining",
		Date:     core.NewDate(2024, 3, 1),
		Type:     core.Personal,
	})

	items, err := s.store.ListByOwner(s.ctx, "U", core.PersonalOnly)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	got := items[0]
	s.Equal(id, got.ID)
	s.Equal("U", got.OwnerID)
	s.Equal("Groceries", got.Title)
	s.Equal(int64(4550), got.Amount.Cents)
	s.Equal("Food & Dining", got.Category)
	s.Equal("2024-03-01", got.Date.String())
	s.Equal(core.Personal, got.Type)
	s.False(got.CreatedAt.IsZero())

	s.Require().NoError(s.store.Delete(s.ctx, id))
	items, err = s.store.ListByOwner(s.ctx, "U", core.PersonalOnly)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *Suite) TestCreateRejectsInvalidFields() {
	for _, cents := range []int64{0, -100} {
		_, err := s.store.Create(s.ctx, "U", fields("Bad", cents, "Other", core.NewDate(2024, 1, 1), core.Personal))
		s.True(core.IsValidation(err), "cents=%d err=%v", cents, err)
	}
	_, err := s.store.Create(s.ctx, "U", fields(" ", 100, "Other", core.NewDate(2024, 1, 1), core.Personal))
	s.True(core.IsValidation(err))
	_, err = s.store.Create(s.ctx, "", fields("Ok", 100, "Other", core.NewDate(2024, 1, 1), core.Personal))
	s.True(core.IsValidation(err))

	items, err := s.store.ListByOwner(s.ctx, "U", core.AllTypes)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *Suite) TestListByOwnerOrderAndIsolation() {
	s.mustCreate("U", fields("Jan", 100, "Other", core.NewDate(2024, 1, 10), core.Personal))
	s.mustCreate("U", fields("Mar", 300, "Travel", core.NewDate(2024, 3, 5), core.Group))
	s.mustCreate("V", fields("Other owner", 999, "Other", core.NewDate(2024, 2, 1), core.Personal))
	s.mustCreate("U", fields("Feb", 200, "Housing", core.NewDate(2024, 2, 20), core.Personal))

	items, err := s.store.ListByOwner(s.ctx, "U", core.AllTypes)
	s.Require().NoError(err)
	s.Require().Len(items, 3)
	s.Equal([]string{"Mar", "Feb", "Jan"}, titles(items))
	for _, e := range items {
		s.Equal("U", e.OwnerID)
	}

	personal, err := s.store.ListByOwner(s.ctx, "U", core.PersonalOnly)
	s.Require().NoError(err)
	s.Equal([]string{"Feb", "Jan"}, titles(personal))

	group, err := s.store.ListByOwner(s.ctx, "U", core.GroupOnly)
	s.Require().NoError(err)
	s.Equal([]string{"Mar"}, titles(group))

	empty, err := s.store.ListByOwner(s.ctx, "nobody", core.AllTypes)
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *Suite) TestGetIsIdempotent() {
	id := s.mustCreate("U", fields("Lunch", 1250, "Food & Dining", core.NewDate(2024, 4, 2), core.Group))
	a, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	b, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(a.ID, b.ID)
	s.Equal(a.Fields(), b.Fields())
	s.True(a.CreatedAt.Equal(b.CreatedAt))
}

func (s *Suite) TestMissingRecords() {
	missing := []string{"does-not-exist", "999999", "0123456789abcdef01234567", "7f6b1c1e-7a9f-4b55-9c57-2b9a0f9b3c11"}
	for _, id := range missing {
		_, err := s.store.Get(s.ctx, id)
		s.True(core.IsNotFound(err), "get %s: %v", id, err)
		title := "x"
		err = s.store.Update(s.ctx, id, core.ExpensePatch{Title: &title})
		s.True(core.IsNotFound(err), "update %s: %v", id, err)
		err = s.store.Delete(s.ctx, id)
		s.True(core.IsNotFound(err), "delete %s: %v", id, err)
	}
}

func (s *Suite) TestDeleteTwiceIsNotFound() {
	id := s.mustCreate("U", fields("Taxi", 800, "Transportation", core.NewDate(2024, 5, 1), core.Personal))
	s.Require().NoError(s.store.Delete(s.ctx, id))
	s.True(core.IsNotFound(s.store.Delete(s.ctx, id)))
}

func (s *Suite) TestUpdateReplacesOnlyPatchedFields() {
	id := s.mustCreate("U", fields("Cinema", 1500, "Entertainment", core.NewDate(2024, 6, 1), core.Personal))
	before, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)

	amount := core.Money{Cents: 1800}
	typ := core.Group
	desc := "with friends"
	s.Require().NoError(s.store.Update(s.ctx, id, core.ExpensePatch{Amount: &amount, Type: &typ, Description: &desc}))

	after, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(before.ID, after.ID)
	s.Equal(before.OwnerID, after.OwnerID)
	s.True(before.CreatedAt.Equal(after.CreatedAt))
	s.Equal("Cinema", after.Title)
	s.Equal(int64(1800), after.Amount.Cents)
	s.Equal(core.Group, after.Type)
	s.Equal("with friends", after.Description)
	s.Equal("2024-06-01", after.Date.String())
}

func (s *Suite) TestUpdateRejectsInvalidAmount() {
	id := s.mustCreate("U", fields("Gym", 3000, "Health & Medical", core.NewDate(2024, 6, 3), core.Personal))
	zero := core.Money{}
	err := s.store.Update(s.ctx, id, core.ExpensePatch{Amount: &zero})
	s.True(core.IsValidation(err), "got %v", err)

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(int64(3000), got.Amount.Cents)
}

func (s *Suite) TestUsers() {
	u := core.User{
		ID:           "user-1",
		Email:        "ana@example.com",
		DisplayName:  "Ana",
		PasswordHash: "hash",
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s.Require().NoError(s.store.CreateUser(s.ctx, u))

	got, err := s.store.GetUserByEmail(s.ctx, "ANA@example.com")
	s.Require().NoError(err)
	s.Equal("user-1", got.ID)
	s.Equal("Ana", got.DisplayName)
	s.Equal("hash", got.PasswordHash)

	dup := u
	dup.ID = "user-2"
	err = s.store.CreateUser(s.ctx, dup)
	s.True(errors.Is(err, storage.ErrEmailTaken), "got %v", err)

	other := core.User{ID: "user-3", Email: "bo@example.com", DisplayName: "Bo", PasswordHash: "h"}
	s.Require().NoError(s.store.CreateUser(s.ctx, other))

	u.DisplayName = "Ana Maria"
	u.Email = "ana.maria@example.com"
	s.Require().NoError(s.store.UpdateUser(s.ctx, u))
	got, err = s.store.GetUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal("Ana Maria", got.DisplayName)
	s.Equal("ana.maria@example.com", got.Email)

	_, err = s.store.GetUserByEmail(s.ctx, "ana@example.com")
	s.True(core.IsNotFound(err), "old email should be released: %v", err)

	other.Email = "ana.maria@example.com"
	err = s.store.UpdateUser(s.ctx, other)
	s.True(errors.Is(err, storage.ErrEmailTaken), "got %v", err)

	_, err = s.store.GetUser(s.ctx, "missing")
	s.True(core.IsNotFound(err))
	err = s.store.UpdateUser(s.ctx, core.User{ID: "missing", Email: "z@example.com"})
	s.True(core.IsNotFound(err))
}

func (s *Suite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}

func titles(items []core.Expense) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.Title
	}
	return out
}
