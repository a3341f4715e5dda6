package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/auth"
	"ledger/internal/cache"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/summary"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	// Assigned only when set so the interface stays nil without AMQP.
	var publisher ledger.Publisher
	if be.Publisher != nil {
		publisher = be.Publisher
	}

	hub := auth.NewHub()
	provider := auth.NewLocalProvider(be.Store, hub, auth.Config{
		SessionTTL:             cfg.SessionTTL,
		MaxSessions:            cfg.SessionMaxEntries,
		LoginAttemptsPerMinute: cfg.LoginAttemptsPerMinute,
	}, logger)
	defer provider.Close()

	caches := cache.NewManager(logger)
	caches.Register(provider.Sessions())

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:             ledger.NewService(be.Store, publisher, logger),
		Summaries:          summary.NewAggregator(be.Store),
		Auth:               provider,
		Sessions:           hub,
		Store:              be.Store,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CookieSecure:       cfg.CookieSecure,
		Development:        cfg.IsDevelopment(),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"amqp_enabled", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return caches.Run(gctx, sweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
