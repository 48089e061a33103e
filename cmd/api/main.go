package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/integrahub/orderflow/internal/config"
	"github.com/integrahub/orderflow/internal/httpx"
	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/postgres"
	"github.com/integrahub/orderflow/internal/rabbit"
	"github.com/integrahub/orderflow/internal/reconcile"
	"github.com/integrahub/orderflow/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", cfg.ServiceName+"-api").Logger()

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

	// Broker: the API still serves (and marks orders FAILED_QUEUE) when the
	// broker is down, so no WaitReady here.
	broker := rabbit.New(cfg.RabbitURL, log)
	defer broker.Close()

	repo := &orders.Repo{DB: db}
	recon := &reconcile.Ops{
		Store:     repo,
		Broker:    broker,
		ScanLimit: cfg.PendingScanLimit,
		Log:       log.With().Str("component", "reconcile").Logger(),
	}

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Repo: repo, Recon: recon, Redis: rdb}).Register(router)
	(&httpx.ProductsHandler{Repo: repo}).Register(router)
	(&httpx.SystemHandler{DB: db, Broker: broker, Repo: repo}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
