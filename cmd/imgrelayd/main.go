// Command imgrelayd is the imgrelay process: it loads configuration,
// brings up the database and Redis connections, starts one worker per
// configured bot credential, the offload drainer and the reconciliation
// sweeper, and serves the ingest/content HTTP API until signalled to
// stop.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/bots"
	"github.com/nullstream/imgrelay/internal/config"
	"github.com/nullstream/imgrelay/internal/dbschema"
	"github.com/nullstream/imgrelay/internal/httpapi"
	"github.com/nullstream/imgrelay/internal/metrics"
	"github.com/nullstream/imgrelay/internal/offload"
	"github.com/nullstream/imgrelay/internal/queue"
	"github.com/nullstream/imgrelay/internal/resolver"
	"github.com/nullstream/imgrelay/internal/sweeper"
	"github.com/nullstream/imgrelay/internal/telegram"
	"github.com/nullstream/imgrelay/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "imgrelayd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer db.Close()

	if err := dbschema.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	botStore := &bots.Store{DB: db}
	clients := make(map[int16]resolver.FileGetter, len(cfg.Tokens))
	workers := make([]*worker.Worker, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		bot, err := botStore.GetOrCreate(ctx, token)
		if err != nil {
			return fmt.Errorf("bot setup for token: %w", err)
		}
		w := worker.New(bot, cfg.ChatID, db, cfg.TempDir, cfg.WorkerBatchSize, log, m)
		workers = append(workers, w)
		clients[bot.ID] = telegram.New(bot.Token, cfg.ChatID)
	}

	off := offload.New(db, log, m, cfg.OffloadQueueSize)
	res := resolver.New(rdb, db, off, clients, m)
	sw := sweeper.New(db, time.Duration(cfg.SweepInterval)*time.Second, log, m)

	var wg sync.WaitGroup
	wg.Add(1 + len(workers))
	go func() { defer wg.Done(); off.Run(ctx) }()
	for _, w := range workers {
		w := w
		go func() { defer wg.Done(); w.Run(ctx) }()
	}
	wg.Add(1)
	go func() { defer wg.Done(); sw.Run(ctx) }()

	queues := &queue.Store{DB: db}
	server := httpapi.NewServer(queues, res, cfg.TempDir, cfg.MaxUploadBytes, log, m)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Handler()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", zap.Error(err))
		}
	}

	wg.Wait()
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	dsnCfg := mysql.NewConfig()
	dsnCfg.User = cfg.DBUser
	dsnCfg.Passwd = cfg.DBPassword
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort)
	dsnCfg.DBName = cfg.DBDatabase
	dsnCfg.ParseTime = true
	dsnCfg.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
