// Package bootstrap handles application initialization and lifecycle for
// the prospect research service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/north-cloud/prospect-research/internal/api"
	"github.com/north-cloud/prospect-research/internal/auth"
	"github.com/north-cloud/prospect-research/internal/config"
	"github.com/north-cloud/prospect-research/internal/engine"
	"github.com/north-cloud/prospect-research/internal/httpserver"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/metrics"
	"github.com/north-cloud/prospect-research/internal/profiling"
	"github.com/north-cloud/prospect-research/internal/provider"
	"github.com/north-cloud/prospect-research/internal/ratelimit"
	"github.com/north-cloud/prospect-research/internal/store"
)

const defaultConfigPath = "config.yml"

// Start initializes and runs the application.
func Start() error {
	// Phase 0: pprof side server (if enabled)
	profiling.StartPprofServer()

	// Phase 1: config and logger
	cfg, err := config.Load(config.Path(defaultConfigPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: storage
	st, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("Failed to close database", logger.Error(closeErr))
		}
	}()

	// Phase 3: execution engine
	reg := provider.NewRegistry()
	m := metrics.New()
	eng := engine.New(st, reg, ratelimit.NewGovernor(), m, log, engine.Config{
		MaxAttempts:    cfg.Engine.MaxAttempts,
		EmptyRetryBase: cfg.Engine.EmptyRetryBase,
		EmptyRetryCap:  cfg.Engine.EmptyRetryCap,
		Workers:        cfg.Engine.Workers,
	})

	// Phase 4: HTTP server
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := api.NewServer(st, eng, reg, issuer, m, log)

	server := httpserver.New(httpserver.Config{
		Addr:         cfg.Server.Address(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, srv.Router(cfg.Debug), log)

	log.Info("Starting prospect research service",
		logger.String("address", cfg.Server.Address()),
		logger.String("database", cfg.Database.Path),
	)

	if runErr := server.Run(context.Background()); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Server exited")
	return nil
}
