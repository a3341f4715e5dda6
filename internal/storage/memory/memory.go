package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps everything in process memory. It is the default backend for
// local runs and the reference implementation in tests.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	expenses map[string]core.Expense
	users    map[string]core.User
	emails   map[string]string
}

func New() *Store {
	return &Store{
		now:      time.Now,
		expenses: map[string]core.Expense{},
		users:    map[string]core.User{},
		emails:   map[string]string{},
	}
}

// WithClock replaces the creation-time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Create(_ context.Context, ownerID string, f core.ExpenseFields) (string, error) {
	f, err := storage.PrepareCreate(ownerID, f)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := core.Expense{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       f.Title,
		Amount:      f.Amount,
		Category:    f.Category,
		Date:        f.Date,
		Description: f.Description,
		Type:        f.Type,
		CreatedAt:   s.now().UTC(),
	}
	s.expenses[e.ID] = e
	return e.ID, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, storage.NotFound(id)
	}
	return e, nil
}

func (s *Store) Update(_ context.Context, id string, p core.ExpensePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return storage.NotFound(id)
	}
	next, err := storage.PrepareUpdate(e, p)
	if err != nil {
		return err
	}
	s.expenses[id] = next
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return storage.NotFound(id)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string, f core.TypeFilter) ([]core.Expense, error) {
	s.mu.Lock()
	out := make([]core.Expense, 0)
	for _, e := range s.expenses {
		if e.OwnerID == ownerID && f.Matches(e.Type) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()
	storage.SortByDateDesc(out)
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, taken := s.emails[key]; taken {
		return storage.ErrEmailTaken
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, storage.UserNotFound(id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return core.User{}, storage.UserNotFound(email)
	}
	return s.users[id], nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return storage.UserNotFound(u.ID)
	}
	newKey := strings.ToLower(u.Email)
	if owner, taken := s.emails[newKey]; taken && owner != u.ID {
		return storage.ErrEmailTaken
	}
	delete(s.emails, strings.ToLower(old.Email))
	u.CreatedAt = old.CreatedAt
	s.users[u.ID] = u
	s.emails[newKey] = u.ID
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
