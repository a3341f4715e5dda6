package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"ledger/internal/storage"
	"ledger/internal/storage/storagetest"
)

var testURL string

func TestMain(m *testing.M) {
	if os.Getenv("LEDGER_DOCKER_TESTS") != "1" {
		os.Exit(m.Run())
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		slog.Error("Could not construct docker pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Client.Ping(); err != nil {
		slog.Error("Could not connect to docker", "error", err)
		os.Exit(1)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env:        []string{"POSTGRES_PASSWORD=secret", "POSTGRES_DB=ledger"},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		slog.Error("Could not start postgres", "error", err)
		os.Exit(1)
	}
	_ = resource.Expire(300)

	testURL = fmt.Sprintf("postgres://postgres:secret@%s/ledger?sslmode=disable", resource.GetHostPort("5432/tcp"))
	err = pool.Retry(func() error {
		ctx := context.Background()
		p, err := pgxpool.New(ctx, testURL)
		if err != nil {
			return err
		}
		defer p.Close()
		return p.Ping(ctx)
	})
	if err != nil {
		slog.Error("Postgres never became ready", "error", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	code := m.Run()
	if err := pool.Purge(resource); err != nil {
		slog.Error("Could not purge postgres", "error", err)
	}
	os.Exit(code)
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testURL == "" {
		t.Skip("set LEDGER_DOCKER_TESTS=1 to run postgres tests")
	}
	ctx := context.Background()
	r, err := Connect(ctx, testURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := r.pool.Exec(ctx, `TRUNCATE expenses, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRepositoryContract(t *testing.T) {
	if testURL == "" {
		t.Skip("set LEDGER_DOCKER_TESTS=1 to run postgres tests")
	}
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestRepository(t) })
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@h:5432/db", "pgx5://u:p@h:5432/db"},
		{"postgresql://u:p@h/db?sslmode=disable", "pgx5://u:p@h/db?sslmode=disable"},
		{"pgx5://u@h/db", "pgx5://u@h/db"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
