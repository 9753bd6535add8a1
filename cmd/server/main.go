/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tender engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, .env) and parse flag overrides
  2. Initialize logger and metrics
  3. Initialize SQLite store
  4. Pick the drawer lock: Redis when REDIS_URL is set, in-process otherwise
  5. Create services, API handler and router
  6. Start the idle session reaper
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port
  -db      SQLite database path
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DB_PATH, REDIS_URL, LOG_LEVEL, LOG_FORMAT, DENOMINATIONS,
  LEDGER_MAX_AGE, SESSION_IDLE_TTL, LOCK_TTL, CORS_ALLOWED_ORIGINS
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reaper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections

EXAMPLES:
  # Run with file database
  ./server -db="./data/tender.db"

  # Two instances sharing one till
  REDIS_URL=redis://localhost:6379/0 ./server -port=8081

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/warp/tender-engine/api"
	"github.com/warp/tender-engine/cash"
	"github.com/warp/tender-engine/config"
	"github.com/warp/tender-engine/lock"
	"github.com/warp/tender-engine/obs"
	"github.com/warp/tender-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := obs.NewLogger("json", "info")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics("tender", registry)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Services
	tenders := cash.NewTenderService(store, store)
	tenders.Denominations = cfg.Denominations
	tenders.MaxLedgerAge = cfg.LedgerMaxAge
	tenders.LockTTL = cfg.LockTTL
	tenders.Log = logger.With().Str("component", "tender").Logger()

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("redis unreachable")
		}
		tenders.Locker = lock.Locker{R: rdb}
		logger.Info().Str("addr", opts.Addr).Msg("using redis drawer lock")
	}

	dayCash := cash.NewDayCashService(store)
	dayCash.Denominations = cfg.Denominations
	dayCash.Log = logger.With().Str("component", "daycash").Logger()

	// Initialize handler
	handler := api.NewHandler(store, tenders, dayCash)
	handler.Metrics = metrics
	handler.Log = logger

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Gatherer:       registry,
	})

	reaper := api.NewSessionReaper(handler.Sessions, cfg.SessionIdleTTL, logger.With().Str("component", "reaper").Logger())
	reaper.Start()

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("db", cfg.DBPath).
			Str("denominations", denominationList(cfg.Denominations)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	reaper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}

func denominationList(set cash.DenominationSet) string {
	out := ""
	for i, d := range set {
		if i > 0 {
			out += ","
		}
		out += strconv.FormatInt(int64(d), 10)
	}
	return out
}
