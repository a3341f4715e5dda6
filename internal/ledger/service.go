// Package ledger is the query and write boundary over an owner's expenses.
// Every call is made on behalf of a requester and checked against the
// record's owner.
package ledger

import (
	"context"
	"strings"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// Publisher announces expense changes to downstream consumers.
type Publisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// Query narrows a listing. Zero values apply no constraint.
type Query struct {
	Type     core.TypeFilter
	Category string
	Date     core.Date
}

type Service struct {
	store     storage.ExpenseStore
	publisher Publisher
	logger    *log.Logger
}

// NewService builds a service over store. publisher may be nil.
func NewService(store storage.ExpenseStore, publisher Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

// List returns requester's expenses matching q, in store order.
func (s *Service) List(ctx context.Context, requester string, q Query) ([]core.Expense, error) {
	if requester == "" {
		return nil, &core.ValidationError{Field: "ownerId", Reason: "is required"}
	}
	typ := q.Type
	if typ == "" {
		typ = core.AllTypes
	}
	items, err := s.store.ListByOwner(ctx, requester, typ)
	if err != nil {
		return nil, err
	}
	return ApplyFilters(items, q), nil
}

// Create validates f before touching the store.
func (s *Service) Create(ctx context.Context, requester string, f core.ExpenseFields) (string, error) {
	if requester == "" {
		return "", &core.ValidationError{Field: "ownerId", Reason: "is required"}
	}
	if err := f.Validate(); err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, requester, f)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().WithExpense(id, requester, f.Amount.Cents, f.Category, string(f.Type)).WithOperation(log.OpCreate).ToSlice()...)
	s.publish(ctx, id, requester, amqp.ActionCreated)
	return id, nil
}

// Get fetches id, failing with *core.PermissionError if requester does not own it.
func (s *Service) Get(ctx context.Context, requester, id string) (core.Expense, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if e.OwnerID != requester {
		s.logger.WarnContext(ctx, "Expense access denied",
			log.FieldExpenseID, id,
			log.FieldUserID, requester,
			log.FieldOperation, log.OpRead)
		return core.Expense{}, &core.PermissionError{Kind: "expense", ID: id}
	}
	return e, nil
}

// Update rejects an invalid or empty patch before any store call.
func (s *Service) Update(ctx context.Context, requester, id string, p core.ExpensePatch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := s.Get(ctx, requester, id); err != nil {
		return err
	}
	if err := s.store.Update(ctx, id, p); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Expense updated",
		log.FieldExpenseID, id,
		log.FieldOwnerID, requester,
		log.FieldOperation, log.OpUpdate)
	s.publish(ctx, id, requester, amqp.ActionUpdated)
	return nil
}

func (s *Service) Delete(ctx context.Context, requester, id string) error {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldExpenseID, id,
		log.FieldOwnerID, requester,
		log.FieldOperation, log.OpDelete)
	s.publish(ctx, id, requester, amqp.ActionDeleted)
	return nil
}

// publish never fails the write; the record is already stored.
func (s *Service) publish(ctx context.Context, id, owner string, action amqp.Action) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping event",
			log.FieldExpenseID, id, log.FieldAction, action)
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(id, owner, action)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldExpenseID, id,
			log.FieldAction, action,
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}

// FilterByCategory keeps records whose category contains filter, ignoring case.
func FilterByCategory(items []core.Expense, filter string) []core.Expense {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return items
	}
	out := make([]core.Expense, 0, len(items))
	for _, e := range items {
		if strings.Contains(strings.ToLower(e.Category), filter) {
			out = append(out, e)
		}
	}
	return out
}

// FilterByDate keeps records dated on day. A zero day keeps everything.
func FilterByDate(items []core.Expense, day core.Date) []core.Expense {
	if day.IsZero() {
		return items
	}
	out := make([]core.Expense, 0, len(items))
	for _, e := range items {
		if e.Date.SameDay(day) {
			out = append(out, e)
		}
	}
	return out
}

// ApplyFilters runs the category and date filters of q. The type filter is
// the store's job. Order is preserved.
func ApplyFilters(items []core.Expense, q Query) []core.Expense {
	items = FilterByCategory(items, q.Category)
	items = FilterByDate(items, q.Date)
	if items == nil {
		return []core.Expense{}
	}
	return items
}
