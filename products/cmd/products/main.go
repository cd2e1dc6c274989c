package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagps/ecommerce-cx/common/audit"
	"github.com/gagps/ecommerce-cx/common/config"
	"github.com/gagps/ecommerce-cx/common/database"
	"github.com/gagps/ecommerce-cx/common/eventrecord"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/products/internal/events"
	"github.com/gagps/ecommerce-cx/products/internal/handlers"
	"github.com/gagps/ecommerce-cx/products/internal/repository"
	"github.com/gagps/ecommerce-cx/products/internal/server"

	natsclient "github.com/gagps/ecommerce-cx/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "apply database migrations before starting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("products"))
	logging.SetDefault(logger)

	slog.Info("Starting Products service",
		slog.Int("port", cfg.Products.Port),
		slog.Duration("event_ttl", cfg.Products.EventTTL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrate {
		if err := database.Migrate(cfg.Database.Postgres.DSN(), slog.Default()); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	pool, err := database.Connect(ctx, cfg.Database.Postgres, slog.Default())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "ecx-products",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer func() { _ = js.Drain() }()

	records := eventrecord.NewPostgresStore(pool, audit.NewSigner(cfg.Records.Secret), slog.Default())
	consumer := events.NewConsumer(records, cfg.Products.EventTTL)
	if err := consumer.Start(ctx, js); err != nil {
		log.Fatalf("Failed to start product events consumer: %v", err)
	}
	defer consumer.Stop()

	go eventrecord.NewJanitor(records, cfg.Records.PurgeInterval, slog.Default()).Run(ctx)

	h := handlers.NewHandler(repository.NewPostgresRepository(pool), events.NewPublisher(js), cfg.Products.EventEmail)
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Products.Port),
		Handler: server.NewRouter(h, func(r *http.Request) error {
			if !js.IsConnected() {
				return errors.New("not connected to message broker")
			}
			return pool.Ping(r.Context())
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Products API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down Products service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	slog.Info("Products service stopped")
}
