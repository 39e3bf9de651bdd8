/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, the config file and LEAVE_* environment overrides
  2. Build the zap logger
  3. Initialize SQLite store
  4. Wire notification sinks (inbox, plus Kafka when brokers are set)
  5. Build the leave service, token resolver and middleware collaborators
  6. Start the rollover scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file
  -port    HTTP server port (overrides server.port)
  -db      SQLite database path (overrides database.path)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Kafka writer, Redis client and database
  5. Exit

EXAMPLES:
  # Local demo with scenarios and a dev signing key
  LEAVE_APP_DEV_MODE=true ./server -db=":memory:"

  # Production style
  LEAVE_JWT_SECRET=... LEAVE_REDIS_ADDR=redis:6379 ./server -config=/etc/leave.yaml

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/identity"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/sqlite"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	var notifier leave.Notifier = store
	if cfg.KafkaEnabled() {
		writer := notify.NewKafkaWriter(cfg.Kafka.Brokers)
		defer writer.Close()
		notifier = notify.Multi{store, notify.NewKafkaSink(writer, cfg.Kafka.Topic, logger)}
		logger.Info("publishing notifications to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	svc := leave.NewService(store, store, notifier, leave.Options{
		RecheckBalanceOnEdit:          cfg.Leave.RecheckBalanceOnEdit,
		NotifyManagerOnApprovedCancel: cfg.Leave.NotifyManagerOnApprovedCancel,
	}, logger)
	resolver := identity.NewResolver(cfg.SigningSecret(), cfg.JWT.Issuer, store, logger)

	enforcer, err := api.NewEnforcer()
	if err != nil {
		return fmt.Errorf("build role gate: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, idempotency will pass requests through", zap.Error(err))
		}
	}

	handler := api.NewHandler(svc, store, store, logger)
	if cfg.App.DevMode {
		handler.Seeder = store
		handler.Issuer = resolver
		logger.Warn("dev mode: demo scenarios are mounted without authentication")
	}

	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Resolver:       resolver,
		Enforcer:       enforcer,
		Limiter:        api.NewActorRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst),
		Redis:          rdb,
		DevMode:        cfg.App.DevMode,
	})

	scheduler := api.NewRolloverScheduler(svc, store, logger)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.Bool("dev_mode", cfg.App.DevMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return cfg.Build()
}
