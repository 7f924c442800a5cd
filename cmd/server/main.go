/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the dealer loyalty platform server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment configuration
  2. Open the selected store backend (memory, sqlite or postgres)
  3. Wire the notification sinks and engines
  4. Configure the HTTP router with auth middleware
  5. Start the low-stock sweep and the server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr     Listen address (overrides ADDR)
  -backend  Store backend: memory | sqlite | postgres (overrides STORE_BACKEND)
  -db       SQLite database path (overrides SQLITE_PATH)
  -seed     Path to a catalog JSON file seeded on startup

ENVIRONMENT:
  See config/config.go for the full list. The interesting ones:
  DATABASE_URL (postgres), REDIS_ADDR (event publishing), JWT_SECRET_KEY.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_GRACE_SEC)
  3. Stop the low-stock sweep, close the store
  4. Exit

EXAMPLES:
  # In-memory store for a quick demo
  ./server -backend=memory

  # SQLite with a seeded catalog
  ./server -db=./data/loyalty.db -seed=./catalog.json

  # PostgreSQL
  DATABASE_URL=postgres://... ./server -backend=postgres

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment knobs
  - cmd/migrate/main.go: PostgreSQL schema migrations
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/revinosolutions/dealer-loyality-sub003/api"
	"github.com/revinosolutions/dealer-loyality-sub003/config"
	"github.com/revinosolutions/dealer-loyality-sub003/factory"
	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
	memstore "github.com/revinosolutions/dealer-loyality-sub003/loyalty/store"
	"github.com/revinosolutions/dealer-loyality-sub003/notify"
	"github.com/revinosolutions/dealer-loyality-sub003/store/postgres"
	"github.com/revinosolutions/dealer-loyality-sub003/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	// Flags override the environment for local runs.
	addr := flag.String("addr", cfg.Addr, "listen address")
	backend := flag.String("backend", cfg.StoreBackend, "store backend: memory | sqlite | postgres")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	seedPath := flag.String("seed", "", "catalog JSON file seeded on startup")
	flag.Parse()

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, closeStore, err := openStore(*backend, *dbPath, cfg)
	if err != nil {
		log.Fatal("failed to open store", zap.String("backend", *backend), zap.Error(err))
	}
	defer closeStore()

	sink, closeSink, err := buildSink(cfg, log)
	if err != nil {
		log.Fatal("failed to build notification sink", zap.Error(err))
	}
	defer closeSink()

	// Engines
	audit := loyalty.NewStoreAuditRecorder(store)
	transfer := loyalty.NewTransferEngine(store, log)
	requests := loyalty.NewRequestService(store, transfer, sink, audit, log)
	points := loyalty.NewPointsLedger(store, sink, log)
	redemptions := loyalty.NewRedemptionEngine(store, points, sink, log)

	rate, err := decimal.NewFromString(cfg.PointsRate)
	if err != nil {
		log.Fatal("invalid POINTS_RATE", zap.String("value", cfg.PointsRate), zap.Error(err))
	}
	sales := loyalty.NewSaleRecorder(points, rate, log)

	ctx := context.Background()
	if *seedPath != "" {
		if err := seedCatalog(ctx, *seedPath, store, redemptions); err != nil {
			log.Fatal("failed to seed catalog", zap.String("path", *seedPath), zap.Error(err))
		}
		log.Info("catalog seeded", zap.String("path", *seedPath))
	}

	// HTTP surface
	handler := api.NewHandler(store, transfer, requests, points, redemptions, sales, log)
	tokens := api.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry)
	router := api.NewRouter(handler, tokens)

	alerter := api.NewLowStockAlerter(store, sink, log)
	alerter.SweepInterval = cfg.LowStockInterval
	alerter.Start()
	defer alerter.Stop()

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("addr", *addr),
			zap.String("backend", *backend),
			zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down", zap.Duration("grace", cfg.ShutdownGracePeriod))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// openStore returns the selected backend plus its close function.
func openStore(backend, dbPath string, cfg *config.Config) (loyalty.Store, func(), error) {
	switch backend {
	case "memory":
		return memstore.NewMemory(), func() {}, nil

	case "sqlite":
		st, err := sqlite.New(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(context.Background()); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// buildSink composes the notification sinks: always the log sink, plus
// Redis when configured.
func buildSink(cfg *config.Config, log *zap.Logger) (loyalty.NotificationSink, func(), error) {
	logSink := notify.NewLog(log)
	if cfg.RedisAddr == "" {
		return logSink, func() {}, nil
	}

	redisSink, err := notify.NewRedis(cfg.RedisAddr, cfg.RedisChannel)
	if err != nil {
		return nil, nil, err
	}
	log.Info("publishing events to redis",
		zap.String("addr", cfg.RedisAddr),
		zap.String("channel", cfg.RedisChannel))
	return notify.NewFanout(logSink, redisSink), func() { redisSink.Close() }, nil
}

func seedCatalog(ctx context.Context, path string, store loyalty.Store, redemptions *loyalty.RedemptionEngine) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	catalog, err := factory.ParseCatalog(string(data))
	if err != nil {
		return err
	}
	return catalog.Seed(ctx, store, redemptions)
}
