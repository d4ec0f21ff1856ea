package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/furnique/furnique-backend/internal/bootstrap"
	"github.com/furnique/furnique-backend/internal/cron"
	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/metrics"
	"github.com/furnique/furnique-backend/pkg/migrate"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("job", "", "run only the named job once and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// Notices raised by draft expiry are logged in-process; the cron worker
	// does not hold a Pub/Sub connection.
	notifier, err := bootstrap.Notifier(cfg, logg, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}
	core, err := bootstrap.NewCore(context.Background(), bootstrap.CoreParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Notifier: notifier,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire payment core", err)
		os.Exit(1)
	}

	draftExpiry, err := cron.NewDraftExpiryJob(cron.DraftExpiryJobParams{
		Logger:    logg,
		Drafts:    core.Payments,
		Payments:  core.Orchestrator,
		Orders:    core.Orders,
		TTL:       cfg.Checkout.DraftTTL,
		BatchSize: cfg.Cron.DraftBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create draft expiry job", err)
		os.Exit(1)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.Retention,
		BatchSize:  cfg.Outbox.RetentionBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	jobs, err := cron.NewRegistry(draftExpiry, retention)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: lock.TTL(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	switch {
	case *only != "":
		if err := service.RunJob(logg.WithField(ctx, "mode", "single-job"), *only); err != nil {
			logg.Error(ctx, "cron job run failed", err)
			os.Exit(1)
		}
		return
	case *once:
		if err := service.RunOnce(logg.WithField(ctx, "mode", "once")); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(logg.WithField(ctx, "jobs", jobs.Names()), "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
