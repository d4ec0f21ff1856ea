package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/migrate"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/outbox/registry"
)

func main() {
	listDLQ := flag.Bool("dlq-list", false, "print the newest dead-lettered events and exit")
	requeue := flag.String("requeue", "", "move the dead-lettered event with this id back to the outbox and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	dlq := outbox.NewDLQRepository(dbClient.DB())
	if *listDLQ || *requeue != "" {
		if err := runDLQCommand(context.Background(), dlq, *listDLQ, *requeue); err != nil {
			logg.Error(context.Background(), "dlq command failed", err)
			os.Exit(1)
		}
		return
	}

	brokerSink, closeSink, err := openSink(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap event broker", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeSink(); err != nil {
			logg.Error(context.Background(), "error closing event broker", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())
	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Sink:          brokerSink,
		Repository:    repo,
		Registry:      eventRegistry,
		DLQRepository: dlq,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
		"broker":      brokerSink.Name(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func runDLQCommand(ctx context.Context, dlq *outbox.DLQRepository, list bool, requeue string) error {
	if requeue != "" {
		id, err := uuid.Parse(requeue)
		if err != nil {
			return fmt.Errorf("-requeue: %w", err)
		}
		if err := dlq.Requeue(ctx, id); err != nil {
			return err
		}
		fmt.Printf("requeued %s\n", id)
	}
	if !list {
		return nil
	}
	rows, err := dlq.List(ctx, 50)
	if err != nil {
		return err
	}
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Printf("%s  %s  %-16s %-14s attempts=%d  %s\n",
			row.FailedAt.UTC().Format("2006-01-02T15:04:05Z"), row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, msg)
	}
	return nil
}
