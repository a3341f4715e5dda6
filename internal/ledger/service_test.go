package ledger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	return m.Called(ev.ID, ev.OwnerID, ev.Action).Error(0)
}

func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	return log.New(cfg)
}

func fields(title string, cents int64, category string, date core.Date, typ core.ExpenseType) core.ExpenseFields {
	return core.ExpenseFields{Title: title, Amount: core.Money{Cents: cents}, Category: category, Date: date, Type: typ}
}

func seed(t *testing.T, svc *Service, owner string, fs ...core.ExpenseFields) []string {
	t.Helper()
	ids := make([]string, 0, len(fs))
	for _, f := range fs {
		id, err := svc.Create(context.Background(), owner, f)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestListAppliesFiltersWithoutReordering(t *testing.T) {
	svc := NewService(memory.New(), nil, quietLogger())
	ctx := context.Background()
	seed(t, svc, "U",
		fields("Groceries", 4550, "Food & Dining", core.NewDate(2024, 3, 1), core.Personal),
		fields("Dinner", 3000, "food & dining", core.NewDate(2024, 3, 1), core.Group),
		fields("Train", 1200, "Transportation", core.NewDate(2024, 2, 14), core.Personal),
		fields("Snacks", 500, "Food & Dining", core.NewDate(2024, 1, 5), core.Personal),
	)
	seed(t, svc, "V", fields("Other owner", 100, "Food & Dining", core.NewDate(2024, 3, 1), core.Personal))

	all, err := svc.List(ctx, "U", Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	food, err := svc.List(ctx, "U", Query{Category: "FOOD"})
	require.NoError(t, err)
	require.Len(t, food, 3)
	assert.ElementsMatch(t, []string{"Groceries", "Dinner"}, titles(food[:2]))
	assert.Equal(t, "Snacks", food[2].Title)

	personalFood, err := svc.List(ctx, "U", Query{Type: core.PersonalOnly, Category: "food"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Groceries", "Snacks"}, titles(personalFood))

	onDay, err := svc.List(ctx, "U", Query{Date: core.NewDate(2024, 3, 1)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Groceries", "Dinner"}, titles(onDay))

	none, err := svc.List(ctx, "U", Query{Category: "travel"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListEmptyLedger(t *testing.T) {
	svc := NewService(memory.New(), nil, quietLogger())
	items, err := svc.List(context.Background(), "nobody", Query{Type: core.GroupOnly})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestListRequiresRequester(t *testing.T) {
	svc := NewService(memory.New(), nil, quietLogger())
	_, err := svc.List(context.Background(), "", Query{})
	assert.True(t, core.IsValidation(err))
}

func TestOwnershipIsEnforced(t *testing.T) {
	svc := NewService(memory.New(), nil, quietLogger())
	ctx := context.Background()
	id := seed(t, svc, "U", fields("Rent", 120000, "Housing", core.NewDate(2024, 4, 1), core.Personal))[0]

	_, err := svc.Get(ctx, "V", id)
	require.True(t, core.IsPermission(err), "got %v", err)
	assert.NotContains(t, err.Error(), "Rent")

	title := "Hijacked"
	assert.True(t, core.IsPermission(svc.Update(ctx, "V", id, core.ExpensePatch{Title: &title})))
	assert.True(t, core.IsPermission(svc.Delete(ctx, "V", id)))

	got, err := svc.Get(ctx, "U", id)
	require.NoError(t, err)
	assert.Equal(t, "Rent", got.Title)
}

func TestMissingRecordIsNotFound(t *testing.T) {
	svc := NewService(memory.New(), nil, quietLogger())
	_, err := svc.Get(context.Background(), "U", "missing")
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(svc.Delete(context.Background(), "U", "missing")))
}

func TestWritesPublishEvents(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewService(memory.New(), pub, quietLogger())
	ctx := context.Background()

	pub.On("PublishExpenseEvent", mock.Anything, "U", amqp.ActionCreated).Return(nil).Once()
	id, err := svc.Create(ctx, "U", fields("Coffee", 350, "Food & Dining", core.NewDate(2024, 5, 2), core.Personal))
	require.NoError(t, err)

	pub.On("PublishExpenseEvent", id, "U", amqp.ActionUpdated).Return(nil).Once()
	amount := core.Money{Cents: 400}
	require.NoError(t, svc.Update(ctx, "U", id, core.ExpensePatch{Amount: &amount}))

	pub.On("PublishExpenseEvent", id, "U", amqp.ActionDeleted).Return(nil).Once()
	require.NoError(t, svc.Delete(ctx, "U", id))

	pub.AssertExpectations(t)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("PublishExpenseEvent", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	store := memory.New()
	svc := NewService(store, pub, quietLogger())

	id, err := svc.Create(context.Background(), "U", fields("Taxi", 900, "Transportation", core.NewDate(2024, 5, 3), core.Personal))
	require.NoError(t, err)
	_, err = store.Get(context.Background(), id)
	assert.NoError(t, err)
}

func TestInvalidCreateDoesNotPublish(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewService(memory.New(), pub, quietLogger())
	_, err := svc.Create(context.Background(), "U", fields("Free", 0, "Other", core.NewDate(2024, 5, 3), core.Personal))
	assert.True(t, core.IsValidation(err))
	pub.AssertNotCalled(t, "PublishExpenseEvent", mock.Anything, mock.Anything, mock.Anything)
}

// countingStore records how many calls reach the underlying store.
type countingStore struct {
	storage.ExpenseStore
	calls int
}

func (c *countingStore) Create(ctx context.Context, owner string, f core.ExpenseFields) (string, error) {
	c.calls++
	return c.ExpenseStore.Create(ctx, owner, f)
}

func (c *countingStore) Get(ctx context.Context, id string) (core.Expense, error) {
	c.calls++
	return c.ExpenseStore.Get(ctx, id)
}

func (c *countingStore) Update(ctx context.Context, id string, p core.ExpensePatch) error {
	c.calls++
	return c.ExpenseStore.Update(ctx, id, p)
}

func TestInvalidWritesNeverReachStore(t *testing.T) {
	mem := memory.New()
	id, err := mem.Create(context.Background(), "U", fields("Lunch", 1250, "Food & Dining", core.NewDate(2024, 5, 3), core.Personal))
	require.NoError(t, err)

	store := &countingStore{ExpenseStore: mem}
	svc := NewService(store, nil, quietLogger())
	ctx := context.Background()

	zero := core.Money{}
	negative := core.Money{Cents: -100}
	blank := "   "
	bogus := core.ExpenseType("shared")
	patches := map[string]core.ExpensePatch{
		"zero amount":     {Amount: &zero},
		"negative amount": {Amount: &negative},
		"blank title":     {Title: &blank},
		"blank category":  {Category: &blank},
		"unknown type":    {Type: &bogus},
		"empty patch":     {},
	}
	for name, p := range patches {
		t.Run(name, func(t *testing.T) {
			err := svc.Update(ctx, "U", id, p)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}

	_, err = svc.Create(ctx, "U", fields("Free", 0, "Other", core.NewDate(2024, 5, 3), core.Personal))
	assert.True(t, core.IsValidation(err), "got %v", err)
	_, err = svc.Create(ctx, "", fields("Lunch", 100, "Other", core.NewDate(2024, 5, 3), core.Personal))
	assert.True(t, core.IsValidation(err), "got %v", err)

	assert.Zero(t, store.calls)

	got, err := mem.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), got.Amount.Cents)
}

func TestFilterByDateZeroKeepsAll(t *testing.T) {
	items := []core.Expense{{ID: "1"}, {ID: "2"}}
	assert.Len(t, FilterByDate(items, core.Date{}), 2)
	assert.Len(t, FilterByCategory(items, "  "), 2)
}

func titles(items []core.Expense) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.Title
	}
	return out
}
