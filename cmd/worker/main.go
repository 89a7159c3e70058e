package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pavitrk/retirepipe/internal/collab"
	"github.com/pavitrk/retirepipe/internal/config"
	"github.com/pavitrk/retirepipe/internal/engine"
	"github.com/pavitrk/retirepipe/internal/queue"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/retry"
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

	shutdown, err := telemetry.Init(ctx, cfg, "retirepipe-worker")
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

	identity := collab.NewRESTIdentity(cfg.IdentityURL)
	deps := engine.Deps{
		Identity: identity,
		Partners: collab.NewRedisPartnerQueue(rd.Client, cfg.PartnerQueueName),
		Records:  store,
	}
	if cfg.EnrollmentsURL != "" {
		deps.Enrollments = collab.NewRESTEnrollments(cfg.EnrollmentsURL)
	}
	if cfg.CredentialsURL != "" {
		deps.Credentials = collab.NewRESTEraser(cfg.CredentialsURL)
	}
	if cfg.EcommerceURL != "" {
		deps.Commerce = collab.NewRESTEraser(cfg.EcommerceURL)
	}
	if cfg.ForumsURL != "" {
		deps.Forums = collab.NewRESTEraser(cfg.ForumsURL)
	}
	if cfg.NotesURL != "" {
		deps.Notes = collab.NewRESTEraser(cfg.NotesURL)
	}
	if cfg.EmailListsURL != "" {
		deps.EmailLists = collab.NewRESTEraser(cfg.EmailListsURL)
	}

	execs, err := engine.NewSet(reg, engine.DefaultExecutors(deps)...)
	if err != nil {
		logger.Error("invalid executor set", "err", err)
		os.Exit(1)
	}

	policy := retry.Policy{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialDelay:      cfg.RetryInitialDelay,
		BackoffMultiplier: cfg.RetryBackoffMultiplier,
		MaxDelay:          cfg.RetryMaxDelay,
		Jitter:            cfg.RetryJitter,
	}
	eng, err := engine.New(store, execs, policy, logger)
	if err != nil {
		logger.Error("engine init error", "err", err)
		os.Exit(1)
	}

	owner := "worker-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	loop := worker.NewLoop(store, rd, cfg.QueueName, owner, cfg.LeaseFor, cfg.WorkerConcurrency, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "owner", owner, "concurrency", cfg.WorkerConcurrency)
	if err := loop.Run(runCtx, eng); err != nil {
		logger.Error("worker loop stopped with error", "err", err)
		os.Exit(1)
	}
}
