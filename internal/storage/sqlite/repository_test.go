package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/storagetest"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepositoryContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestRepository(t) })
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	repo, err := NewRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	id, err := repo.Create(context.Background(), "U", core.ExpenseFields{
		Title: "Rent", Amount: core.Money{Cents: 120000}, Category: "Housing",
		Date: core.NewDate(2024, 1, 1), Type: core.Personal,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.Close()

	reopened, err := NewRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	e, err := reopened.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if e.Title != "Rent" || e.Amount.Cents != 120000 {
		t.Fatalf("unexpected record %+v", e)
	}
}

func TestNonNumericIDIsNotFound(t *testing.T) {
	repo := newTestRepository(t)
	for _, id := range []string{"", "abc", "-1", "0"} {
		if _, err := repo.Get(context.Background(), id); !core.IsNotFound(err) {
			t.Fatalf("Get(%q) = %v, want not found", id, err)
		}
	}
}
