package backend

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage/memory"
	"ledger/internal/storage/sqlite"
)

func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = io.Discard
	return log.New(cfg)
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.ErrorContains(t, err, "invalid backend type")

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:   "mongo",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "ledger",
		AMQPURL:       "amqp://localhost:5672/",
	})
	require.NoError(t, err)
	assert.Equal(t, MongoBackend, cfg.Type)
	assert.Equal(t, "ledger", cfg.MongoDatabase)
	assert.Equal(t, "amqp://localhost:5672/", cfg.AMQPURL)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"unknown", Config{Type: "sheets"}, true},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"mongo without database", Config{Type: MongoBackend, MongoURI: "mongodb://x"}, true},
		{"postgres", Config{Type: PostgresBackend, PostgresURL: "postgres://x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(quietLogger()).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.IsType(t, &memory.Store{}, res.Store)
	assert.Nil(t, res.Publisher)
	assert.NoError(t, res.Store.Ping(context.Background()))
}

func TestCreateSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(quietLogger()).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.IsType(t, &sqlite.Repository{}, res.Store)
	_, err = res.Store.Create(ctx, "U", core.ExpenseFields{
		Title: "Rent", Amount: core.Money{Cents: 100}, Category: "Housing",
		Date: core.NewDate(2024, 1, 1), Type: core.Personal,
	})
	assert.NoError(t, err)
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend})
	assert.Error(t, err)
}
