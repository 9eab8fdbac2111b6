/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize SQLite store
  3. Load the tax regime (built-in or REGIME_FILE)
  4. Create API handler and router
  5. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_ADDR)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Cancel running payroll runs and wait for them
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory database and a custom regime
  REGIME_FILE=./regime.json ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides APP_ADDR)")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	if *port != 0 {
		cfg.AppAddr = fmt.Sprintf(":%d", *port)
	}
	cfg.DBPath = *dbPath

	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	regime := payroll.DefaultRegime()
	if cfg.RegimeFile != "" {
		regime, err = factory.NewRegimeFactory().LoadRegimeFile(cfg.RegimeFile)
		if err != nil {
			return fmt.Errorf("load regime: %w", err)
		}
		logger.Info("tax regime loaded", "file", cfg.RegimeFile, "regime", regime.Name)
	}

	coverage := cfg.AttendanceCoverage
	handler := api.NewHandler(store, api.Options{
		Regime:   regime,
		Coverage: &coverage,
		Company:  cfg.CompanyName,
		Currency: cfg.Currency,
		Logger:   logger,
	})
	defer handler.Runs.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimitPerMinute,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	// Ending the runs ends their event streams, which Shutdown waits for.
	server.RegisterOnShutdown(handler.Runs.Stop)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.AppAddr, "db", cfg.DBPath, "regime", regime.Name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
