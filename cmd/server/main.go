package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"chatrelay/internal/config"
	"chatrelay/internal/domain"
	"chatrelay/internal/fanout"
	"chatrelay/internal/friends"
	"chatrelay/internal/httpserver"
	"chatrelay/internal/logger"
	"chatrelay/internal/presence"
	"chatrelay/internal/rooms"
	"chatrelay/internal/security"
	"chatrelay/internal/seen"
	"chatrelay/internal/service"
	"chatrelay/internal/store/postgres"
	"chatrelay/internal/store/sqlite"
	"chatrelay/internal/telemetry"
)

type stores struct {
	db            *sql.DB
	users         domain.UserRepository
	conversations domain.ConversationRepository
	seen          domain.SeenStateRepository
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			db:            db,
			users:         postgres.NewUserRepo(db),
			conversations: postgres.NewConversationRepo(db),
			seen:          postgres.NewSeenStateRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			db:            db,
			users:         sqlite.NewUserRepo(db),
			conversations: sqlite.NewConversationRepo(db),
			seen:          sqlite.NewSeenStateRepo(db),
		}, nil
	}
}

// @title           chatrelay API
// @version         1.0
// @description     Realtime relay for chat presence, conversation events and read state.

// @host            localhost:8000
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @securityDefinitions.apikey InternalToken
// @in header
// @name X-Internal-Token

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file read before the environment")
	logLevel := pflag.String("log-level", "", "override LOG_LEVEL")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log, err := logger.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.AppName, cfg.OTELEndpoint)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize database
	st, err := openStores(cfg)
	if err != nil {
		log.Fatal("failed to open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer st.db.Close()

	// Realtime core
	registry := presence.NewRegistry(log.Named("presence"))
	roomMgr := rooms.NewManager(log.Named("rooms"))
	router := fanout.NewRouter(registry, roomMgr, log.Named("fanout"))

	persister := seen.NewPersister(st.seen, seen.PersisterConfig{
		Workers:       cfg.PersistWorkers,
		Attempts:      cfg.PersistAttempts,
		SweepInterval: cfg.PersistSweepInterval,
		FailThreshold: cfg.HealthFailThreshold,
	}, log.Named("persister"))
	reconciler := seen.NewReconciler(st.conversations, st.seen, router, persister, log.Named("seen"))
	persister.OnDiscard(reconciler.Forget)
	persister.Start(ctx)
	go reconciler.Sweep(ctx, cfg.SeenSweepInterval, cfg.SeenIdleTTL)

	notifier := friends.NewNotifier(router, log.Named("friends"))
	realtime := service.NewRealtimeService(st.conversations, registry, roomMgr, router, reconciler, notifier, log.Named("service"))

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Hour)
	authSvc := service.NewAuthService(st.users, tokenSvc)

	// Build HTTP router
	handler := httpserver.NewRouter(cfg, httpserver.Deps{
		Auth:     authSvc,
		Realtime: realtime,
		Users:    service.NewUserService(st.users, registry),
		Registry: registry,
		Rooms:    roomMgr,
		Health:   persister,
	}, log.Named("http"))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting chatrelay", zap.String("addr", cfg.HTTPAddr()), zap.String("db", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	for _, id := range registry.Connections() {
		realtime.Disconnect(id)
	}
	if err := persister.Close(shutdownCtx); err != nil {
		log.Error("unsaved read state at shutdown", zap.Int("pending", persister.Pending()), zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}
