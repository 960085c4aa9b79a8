package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attaboy/wallet/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox relay connected to postgres")

	// Without Kafka the relay drains the outbox into the log.
	var publisher infra.Publisher = logPublisher{logger: logger}
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if producer.Enabled() {
		publisher = producer
	}

	poller := infra.NewOutboxPoller(pool, publisher, cfg.KafkaTopicPrefix, infra.NewMetrics(), logger,
		infra.WithPollInterval(cfg.OutboxPollInterval),
		infra.WithBatchSize(cfg.OutboxBatchSize),
	)
	poller.Start(ctx)

	<-ctx.Done()
	logger.Info("outbox relay shutting down")
	return nil
}

type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) Publish(_ context.Context, topic string, key, _ []byte) error {
	p.logger.Info("outbox event", "topic", topic, "key", string(key))
	return nil
}
