// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/ledger, cmd/ledger-worker and cmd/ledger-admin.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	memsheet "ledger/internal/sheets/memory"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on failure.
func LoadAndValidateConfig() *config.Config {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger builds the process logger from the environment settings and
// makes it the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.ConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// OpenBackend opens the configured store. Exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend",
			log.FieldError, err,
			log.FieldBackend, bc.Type.String(),
			log.FieldErrorType, log.ErrorTypeDatabase)
		os.Exit(1)
	}
	return result
}

// Sheet returns the Google Sheets client when a spreadsheet is configured,
// otherwise an in-memory sheet that keeps rows for the process lifetime.
func Sheet(ctx context.Context, logger *log.Logger, cfg *config.Config) (sheets.Sheet, error) {
	if !cfg.ExportEnabled() {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, exported rows are kept in memory only")
		return memsheet.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
