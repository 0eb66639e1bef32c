package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"finance-a2a-backend/internal/agents"
	"finance-a2a-backend/internal/api"
	"finance-a2a-backend/internal/config"
	"finance-a2a-backend/internal/crypto"
	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/internal/handlers"
	"finance-a2a-backend/internal/metrics"
	"finance-a2a-backend/internal/notify"
	"finance-a2a-backend/internal/services"
	"finance-a2a-backend/internal/sessionlock"
	"finance-a2a-backend/internal/store/postgres"
	"finance-a2a-backend/internal/tracking"
	"finance-a2a-backend/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Options{Level: cfg.App.LogLevel, Env: cfg.App.Env, File: cfg.App.LogFile}); err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get().With("component", "main")
	log.Infow("Starting finance A2A host agent", "env", cfg.App.Env)

	if cfg.Sentry.DSN != "" {
		tracker, err := tracking.NewSentryTracker(cfg.Sentry.DSN, cfg.App.Env)
		if err != nil {
			log.Warnw("Sentry disabled", "error", err)
		} else {
			logger.SetErrorTracker(tracker)
			defer tracker.Flush()
			log.Info("Sentry error tracking enabled")
		}
	}

	metrics.Init()

	// 2. Initialize Database Connection Pool
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	dbpool, err := pgxpool.NewWithConfig(dbCtx, poolCfg)
	if err != nil {
		return fmt.Errorf("unable to create database connection pool: %w", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(dbCtx); err != nil {
		return fmt.Errorf("unable to ping database: %w", err)
	}
	log.Info("Database connection pool established")

	if cfg.Database.AutoMigrate {
		applied, err := postgres.Migrate(dbCtx, dbpool)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		log.Infow("Migrations applied", "count", len(applied), "versions", applied)
	}

	pgStore := postgres.NewPostgresStore(dbpool)

	// 3. Session locks: Redis when configured so several replicas share them.
	var locker dialogue.Locker = sessionlock.NewKeyedMutex()
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(dbCtx).Err(); err != nil {
			return fmt.Errorf("unable to ping redis: %w", err)
		}
		locker = sessionlock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.Info("Using Redis session locks")
	}

	stateKey, err := cfg.StateKey()
	if err != nil {
		return err
	}
	sealer, err := crypto.NewSealer(stateKey)
	if err != nil {
		return fmt.Errorf("failed to create state sealer: %w", err)
	}
	if sealer == nil {
		log.Warn("STATE_ENCRYPTION_KEY not set, agent state is stored unencrypted")
	}

	// 4. Remote agents. Unreachable agents are retried lazily on dispatch.
	registry := agents.NewRegistry(cfg.Agents.URLs, cfg.Agents.CardResolveTimeout, cfg.Agents.DispatchTimeout)
	resolved := registry.Refresh(context.Background())
	log.Infow("Remote agents resolved", "resolved", resolved, "configured", len(cfg.Agents.URLs))
	analyser := agents.NewStockAnalyser(registry, cfg.Agents.StockAnalyserName)

	// 5. Services
	whitelistService := services.NewWhitelistService(pgStore)
	var notifier dialogue.Notifier
	if mailer := notify.NewMailer(cfg.Mail); mailer != nil {
		notifier = mailer
	} else {
		log.Info("SMTP not configured, dispatch receipts are disabled")
	}
	engine := dialogue.NewEngine(dialogue.EngineDeps{
		States:          pgStore,
		Sessions:        pgStore,
		Dispatcher:      analyser,
		Locker:          locker,
		Quota:           whitelistService,
		Notifier:        notifier,
		Sealer:          sealer,
		DispatchTimeout: cfg.Agents.DispatchTimeout,
		NotifyTimeout:   cfg.Mail.SendTimeout,
	})
	chatService := services.NewChatService(pgStore, engine, whitelistService, cfg.Chat)
	sessionService := services.NewSessionService(pgStore)
	userService := services.NewUserService(pgStore, cfg.Chat)
	analysisService := services.NewAnalysisService(pgStore, engine)

	// 6. Router
	router := api.NewRouter(api.RouterDependencies{
		ChatHandler:     handlers.NewChatHandlers(chatService, sessionService),
		UserHandler:     handlers.NewUserHandlers(userService),
		CallbackHandler: handlers.NewCallbackHandlers(analysisService),
		AdminHandler:    handlers.NewAdminHandlers(whitelistService, registry),
		Config:          cfg,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Agents.DispatchTimeout + 40*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Infow("Server listening", "port", cfg.App.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("could not listen on %s: %w", cfg.App.HTTPPort, err)
	case <-stopChan:
	}
	log.Info("Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("Server shutdown complete")
	return nil
}
