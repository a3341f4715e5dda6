package main

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

const statsInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker", log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()
	if be.Publisher == nil {
		logger.Error("AMQP broker unreachable", "amqp_url_set", true)
		os.Exit(1)
	}

	sheet, err := cli.Sheet(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	exportWorker := worker.NewExportWorker(be.Store, sheet, logger)

	var handled, failed atomic.Int64
	handle := func(ctx context.Context, ev *amqp.ExpenseEvent) error {
		if err := exportWorker.HandleExpenseEvent(ctx, ev); err != nil {
			failed.Add(1)
			return err
		}
		handled.Add(1)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := be.Publisher.ConsumeExpenseEvents(gctx, handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logger.Info("Export worker stats",
					"handled", handled.Load(),
					"failed", failed.Load())
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully",
		"handled", handled.Load(),
		"failed", failed.Load())
}
