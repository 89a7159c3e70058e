package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pavitrk/retirepipe/internal/api"
	"github.com/pavitrk/retirepipe/internal/collab"
	"github.com/pavitrk/retirepipe/internal/config"
	"github.com/pavitrk/retirepipe/internal/metrics"
	"github.com/pavitrk/retirepipe/internal/queue"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
	"github.com/pavitrk/retirepipe/internal/storage"
	"github.com/pavitrk/retirepipe/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	ctx := context.Background()

	shutdown, err := telemetry.Init(ctx, cfg, "retirepipe-api")
	if err != nil {
		logger.Error("tracing init error", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pg, err := storage.NewPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "err", err)
		os.Exit(1)
	}
	defer pg.Pool.Close()

	if err := retirement.EnsureSchema(ctx, pg.Pool, states.DefaultCatalog()); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}
	catalog, err := retirement.LoadCatalog(ctx, pg.Pool)
	if err != nil {
		logger.Error("loading state catalog failed", "err", err)
		os.Exit(1)
	}
	reg, err := states.NewRegistry(catalog)
	if err != nil {
		logger.Error("invalid state catalog", "err", err)
		os.Exit(1)
	}
	store := retirement.NewPostgresStore(pg.Pool, reg)

	rd := queue.NewRedis(cfg)
	if err := rd.Ping(ctx); err != nil {
		logger.Error("failed to connect redis", "err", err)
		os.Exit(1)
	}

	promReg := prometheus.NewRegistry()
	metrics.Register(promReg)
	promReg.MustRegister(metrics.NewQueueDepthCollector(cfg.QueueName, rd))

	directory := collab.NewRESTIdentity(cfg.IdentityURL)
	srv := api.NewServer(cfg.HTTPAddr, store, rd, directory, cfg.QueueName, promReg, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("api listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
