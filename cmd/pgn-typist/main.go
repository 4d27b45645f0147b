package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/park285/pgn-typist/internal/archive"
	appcfg "github.com/park285/pgn-typist/internal/config"
	"github.com/park285/pgn-typist/internal/httpapi"
	"github.com/park285/pgn-typist/internal/metrics"
	"github.com/park285/pgn-typist/internal/notation"
	"github.com/park285/pgn-typist/internal/obslog"
	"github.com/park285/pgn-typist/internal/rules"
	"github.com/park285/pgn-typist/internal/session"
	"github.com/park285/pgn-typist/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("server")

	table, err := notation.Load(cfg.NotationDir)
	if err != nil {
		logger.Fatal("notation_load_failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, closeStore := openStore(initCtx, cfg, logger)
	repo, db := openArchive(initCtx, cfg, logger)
	cancel()

	svc, err := session.NewService(rules.NewOracle(), table, st, repo, m, session.Config{
		DefaultLang:    cfg.DefaultLang,
		UndoLimit:      cfg.UndoLimit,
		HistoryLimit:   cfg.HistoryLimit,
		PersistQueue:   cfg.PersistQueue,
		PersistTimeout: cfg.PersistTimeout,
	}, obslog.Named("session"))
	if err != nil {
		logger.Fatal("session_service_init_failed", zap.Error(err))
	}

	api := httpapi.New(svc, m, reg, obslog.Named("http"))
	errCh := make(chan error, 1)
	go func() { errCh <- api.ListenAndServe(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("http_server_stopped", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	if err := svc.Close(ctx); err != nil {
		logger.Warn("session_drain_incomplete", zap.Error(err))
	}
	if err := closeStore(); err != nil {
		logger.Warn("store_close_failed", zap.Error(err))
	}
	if db != nil {
		_ = db.Close()
	}
	logger.Info("shutdown_complete")
}

// openStore uses Redis when REDIS_URL is set and process memory otherwise.
func openStore(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (store.Store, func() error) {
	if cfg.RedisURL == "" {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set; sessions are not durable"))
		return store.NewMemory(), func() error { return nil }
	}
	rs, err := store.NewRedis(ctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("redis_init_failed", zap.Error(err))
	}
	logger.Info("redis_ready", zap.Duration("ttl", cfg.SessionTTL))
	return rs, rs.Close
}

// openArchive uses Postgres when DATABASE_URL is set and process memory
// otherwise.
func openArchive(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (archive.Repository, *sql.DB) {
	if cfg.DatabaseURL == "" {
		logger.Warn("archive_in_memory", zap.String("reason", "DATABASE_URL not set"))
		return archive.NewMemoryRepository(), nil
	}
	db, err := archive.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres_init_failed", zap.Error(err))
	}
	if err := archive.EnsureSchema(ctx, db); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Fatal("postgres_schema_timeout", zap.Error(err))
		}
		logger.Fatal("postgres_schema_failed", zap.Error(err))
	}
	return archive.NewRepository(db), db
}
