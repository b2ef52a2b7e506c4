/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock count reconciliation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Initialize SQLite store
  4. Build the lookup cache (memory, redis or none)
  5. Create API handler with dependencies
  6. Start the idle session sweeper
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Close cache and database connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/stock.db"

  # Run with in-memory database and no cache
  CACHE_BACKEND=none ./server -db=":memory:"

  # Share the lookup cache between instances
  CACHE_BACKEND=redis REDIS_ADDR=cache:6379 ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/stock-count/api"
	"github.com/warp/stock-count/cache"
	"github.com/warp/stock-count/config"
	"github.com/warp/stock-count/count"
	"github.com/warp/stock-count/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logger := config.NewLogger(cfg)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize lookup cache
	lookup, invalidator, closer, err := buildLookup(cfg, store, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Lookup:          lookup,
		Invalidator:     invalidator,
		Logger:          logger,
		HeaderRows:      cfg.HeaderRows,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		DefaultPageSize: cfg.DefaultPageSize,
	})

	sweeper := api.NewSessionSweeper(handler.Sessions, logger)
	sweeper.CheckInterval = cfg.SessionSweepEvery
	sweeper.TTL = cfg.SessionTTL
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":  cfg.Addr(),
			"db":    cfg.DBPath,
			"cache": cfg.CacheBackend,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Info("server stopped")
}

// buildLookup wraps store with the configured cache. closer is nil when
// there is nothing to close.
func buildLookup(cfg config.Config, store *sqlite.Store, logger logrus.FieldLogger) (count.Lookup, count.Invalidator, io.Closer, error) {
	onError := func(op string, locationID count.LocationID, err error) {
		config.LogError(logger, "cache", op, string(locationID), nil, err)
	}

	switch cfg.CacheBackend {
	case config.CacheMemory:
		cached := count.NewCachedLookup(store, cache.NewLRU(cfg.CacheSize, cfg.CacheTTL), onError)
		return cached, cached, nil, nil
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, nil, nil, err
		}
		cached := count.NewCachedLookup(store, rc, onError)
		return cached, cached, rc, nil
	}
	return store, nil, nil, nil
}
