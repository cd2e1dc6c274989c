package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/gagps/ecommerce-cx/common/audit"
	"github.com/gagps/ecommerce-cx/common/config"
	"github.com/gagps/ecommerce-cx/common/database"
	"github.com/gagps/ecommerce-cx/common/eventrecord"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/orders/internal/email"
	"github.com/gagps/ecommerce-cx/orders/internal/events"
	"github.com/gagps/ecommerce-cx/orders/internal/handlers"
	"github.com/gagps/ecommerce-cx/orders/internal/repository"
	"github.com/gagps/ecommerce-cx/orders/internal/server"

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
	).With(logging.Service("orders"))
	logging.SetDefault(logger)

	slog.Info("Starting Orders service",
		slog.Int("port", cfg.Orders.Port),
		slog.Duration("event_ttl", cfg.Orders.EventTTL),
		slog.Bool("email_enabled", cfg.Email.Enabled),
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
		Name:          "ecx-orders",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer func() { _ = js.Drain() }()

	records := eventrecord.NewPostgresStore(pool, audit.NewSigner(cfg.Records.Secret), slog.Default())

	eventsConsumer := events.NewConsumer(records, cfg.Orders.EventTTL)
	if err := eventsConsumer.Start(ctx, js); err != nil {
		log.Fatalf("Failed to start order events consumer: %v", err)
	}
	defer eventsConsumer.Stop()

	sender, err := newSender(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure email: %v", err)
	}
	emailConsumer := email.NewConsumer(sender)
	if err := emailConsumer.Start(ctx, js); err != nil {
		log.Fatalf("Failed to start order emails consumer: %v", err)
	}
	defer emailConsumer.Stop()

	go eventrecord.NewJanitor(records, cfg.Records.PurgeInterval, slog.Default()).Run(ctx)

	h := handlers.NewHandler(repository.NewPostgresRepository(pool), events.NewPublisher(js), records)
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Orders.Port),
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
		slog.Info("Orders API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down Orders service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	slog.Info("Orders service stopped")
}

func newSender(ctx context.Context, cfg *config.Config) (email.Sender, error) {
	if !cfg.Email.Enabled {
		slog.Info("Email delivery disabled, confirmations are logged only")
		return email.NewLogSender(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	slog.Info("Email delivery enabled", slog.String("source", cfg.Email.Source))
	return email.NewSESSender(client, cfg.Email.Source, cfg.Email.ReplyTo), nil
}
