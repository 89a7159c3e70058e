package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pavitrk/retirepipe/internal/config"
	"github.com/pavitrk/retirepipe/internal/queue"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
	"github.com/pavitrk/retirepipe/internal/storage"
	"github.com/pavitrk/retirepipe/internal/telemetry"
	"github.com/pavitrk/retirepipe/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	ctx := context.Background()

	shutdown, err := telemetry.Init(ctx, cfg, "retirepipe-sweeper")
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

	reaper := worker.NewReaper(store, rd, cfg.QueueName)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.LeaseFor)
	defer ticker.Stop()

	logger.Info("sweeper started", "interval", cfg.LeaseFor, "stall_after", cfg.StallAfter)
	for {
		select {
		case <-ticker.C:
			now := time.Now().UTC()
			if n, err := reaper.RequeueExpiredLeases(ctx, now); err != nil {
				logger.Error("requeue expired leases failed", "err", err)
			} else if n > 0 {
				logger.Info("requeued expired leases", "count", n)
			}
			if n, err := reaper.RequeueStalled(ctx, now.Add(-cfg.StallAfter)); err != nil {
				logger.Error("requeue stalled failed", "err", err)
			} else if n > 0 {
				logger.Info("requeued stalled retirements", "count", n)
			}
		case <-stop:
			return
		}
	}
}
