/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Read TOML configuration file (optional; flags override)
  3. Configure structured logging
  4. Initialize SQLite store
  5. Wire registry, lifecycle, aggregator, batch runner
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config   TOML configuration file path (optional)
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: payroll.db)
            Use ":memory:" for an in-memory database
  -workers  Batch calculation worker count (default: 4)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run from a config file
  ./server -config=payroll.toml

ENVIRONMENT:
  PAYROLL_DB, PAYROLL_PORT and PAYROLL_LOG_LEVEL are read after .env
  loading and take effect when the corresponding flag is unset.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

type config struct {
	Port     int    `toml:"port"`
	DB       string `toml:"db"`
	Workers  int    `toml:"workers"`
	LogLevel string `toml:"log_level"`
}

func defaults() config {
	return config{Port: 8080, DB: "payroll.db", Workers: 4, LogLevel: "info"}
}

func main() {
	// .env is optional; missing file is not an error.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "TOML configuration file path")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	workers := flag.Int("workers", 0, "batch calculation worker count")
	flag.Parse()

	cfg := defaults()
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	// Environment, then flags, override the file.
	if v := os.Getenv("PAYROLL_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("PAYROLL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("PAYROLL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	// Initialize store
	store, err := sqlite.New(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire the engine
	registry := payroll.NewRegistry(store)
	lifecycle := payroll.NewLifecycle(registry, store, store, store, log)
	aggregator := payroll.NewAggregator(store)
	runner := payroll.NewBatchRunner(lifecycle, cfg.Workers, log)

	handler := &api.Handler{
		Registry:   registry,
		Configs:    store,
		Lifecycle:  lifecycle,
		Aggregator: aggregator,
		Runner:     runner,
		Events:     store,
		Log:        log,
	}

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("db", cfg.DB).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
