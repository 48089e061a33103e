package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/config"
	"github.com/integrahub/orderflow/internal/consumer"
	"github.com/integrahub/orderflow/internal/notify"
	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/postgres"
	"github.com/integrahub/orderflow/internal/rabbit"
	"github.com/integrahub/orderflow/internal/redisx"
	"github.com/integrahub/orderflow/internal/restock"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", cfg.ServiceName+"-worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Broker (wait out container startup ordering)
	broker := rabbit.New(cfg.RabbitURL, log)
	defer broker.Close()
	if err := broker.WaitReady(12, 5*time.Second); err != nil {
		log.Fatal().Err(err).Msg("rabbitmq unreachable")
	}

	repo := &orders.Repo{DB: db}
	notifier := notify.New(cfg.SlackWebhookURL, cfg.DiscordWebhookURL, log)

	cons := &consumer.Consumer{
		Store:      repo,
		Broker:     broker,
		Notifier:   notifier,
		Cache:      &redisx.OrderCache{R: rdb},
		MaxRetries: cfg.MaxRetries,
		Log:        log.With().Str("component", "consumer").Logger(),
	}

	ingestor := &restock.Ingestor{
		Store:    repo,
		Dir:      cfg.InboxDir,
		Interval: cfg.RestockInterval,
		Log:      log.With().Str("component", "restock").Logger(),
	}

	// Two independently cancellable tasks sharing only the store and the
	// queue: the consumer and the restock file watcher.
	done := make(chan error, 2)
	go func() { done <- cons.Run(ctx, broker) }()
	go func() { done <- ingestor.Run(ctx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		log.Info().Msg("shutting down...")
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("task exited")
		}
	}
	cancel()

	// Give the in-flight message a moment to resolve before tearing down.
	time.Sleep(500 * time.Millisecond)
}
