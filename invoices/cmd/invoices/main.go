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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/gagps/ecommerce-cx/common/config"
	"github.com/gagps/ecommerce-cx/common/dlq"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
	"github.com/gagps/ecommerce-cx/invoices/internal/gateway"
	"github.com/gagps/ecommerce-cx/invoices/internal/ingest"
	"github.com/gagps/ecommerce-cx/invoices/internal/invoice"
	"github.com/gagps/ecommerce-cx/invoices/internal/notify"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
	"github.com/gagps/ecommerce-cx/invoices/internal/ratelimit"
	"github.com/gagps/ecommerce-cx/invoices/internal/service"
	"github.com/gagps/ecommerce-cx/invoices/internal/slot"
	"github.com/gagps/ecommerce-cx/invoices/internal/transaction"

	natsclient "github.com/gagps/ecommerce-cx/common/messaging/nats"
)

const (
	modeGateway = "gateway"
	modeIngest  = "ingest"
	modeAll     = "all"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	mode := flag.String("mode", modeAll, "which roles to run: gateway, ingest or all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("invoices"))
	logging.SetDefault(logger)

	slog.Info("Starting Invoices service",
		slog.String("mode", *mode),
		slog.Int("port", cfg.Invoices.Port),
		slog.String("store_backend", cfg.Invoices.Store.Backend),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("push_backend", cfg.Invoices.Push.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode); err != nil {
		slog.Error("Invoices service failed", logging.Error(err))
		os.Exit(1)
	}
	slog.Info("Invoices service stopped")
}

func run(ctx context.Context, cfg *config.Config, mode string) error {
	gatewayRole := mode == modeGateway || mode == modeAll
	ingestRole := mode == modeIngest || mode == modeAll
	if !gatewayRole && !ingestRole {
		return fmt.Errorf("unknown mode %q (supported: gateway, ingest, all)", mode)
	}
	if cfg.Invoices.Push.Backend == "local" && mode != modeAll {
		return errors.New("the local push backend needs gateway and ingest in one process (--mode all)")
	}

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "ecx-invoices-" + mode,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := js.Drain(); err != nil {
			slog.Warn("Failed to drain NATS connection", logging.Error(err))
		}
	}()
	if _, err := js.CreateOrUpdateStream(ctx, natsclient.StorageEventsStream); err != nil {
		return err
	}

	var awsCfg aws.Config
	if cfg.Invoices.Store.Backend == "dynamodb" || cfg.Storage.Backend == "s3" || cfg.Invoices.Push.Backend == "apigateway" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	st, err := newStores(cfg, awsCfg)
	if err != nil {
		return err
	}
	defer st.close()

	objects, err := newObjectStore(cfg, awsCfg)
	if err != nil {
		return err
	}

	registry := connection.NewRegistry()
	defer registry.CloseAll()

	var pusher connection.Pusher
	switch cfg.Invoices.Push.Backend {
	case "nats":
		pusher = notify.NewNATSPusher(js, cfg.Invoices.Push.Timeout)
	case "local":
		pusher = registry
	case "apigateway":
		pusher = notify.NewAPIGatewayPusher(notify.NewAPIGatewayClient(awsCfg, cfg.Invoices.Push.Endpoint))
	}

	processor := ingest.NewProcessor(st.transactions, st.invoices, objects.store, notify.New(pusher), cfg.Invoices.InvoiceTTL)
	issuer := slot.NewIssuer(st.transactions, objects.presigner, cfg.Invoices.SlotTTL)

	var conns service.Connections = service.LocalConnections{Registry: registry}
	if cfg.Invoices.Push.Backend == "nats" && gatewayRole {
		relay := connection.NewRelay(js, registry)
		defer relay.Stop()
		conns = relay
	}
	svc := service.New(conns, issuer, processor)

	g, gctx := errgroup.WithContext(ctx)

	if ingestRole {
		queue, err := newDLQ(ctx, cfg, js)
		if err != nil {
			return err
		}
		consumer := ingest.NewConsumer(processor, queue, ingest.ConsumerConfig{
			MaxDeliver:     cfg.Invoices.Ingest.MaxDeliver,
			AckWait:        cfg.Invoices.Ingest.AckWait,
			RetryDelay:     cfg.Invoices.Ingest.RetryDelay,
			HandlerTimeout: cfg.Invoices.Ingest.HandlerTimeout,
		})
		if err := consumer.Start(gctx, js); err != nil {
			return fmt.Errorf("failed to start ingest consumer: %w", err)
		}
		defer consumer.Stop()
	}

	if gatewayRole {
		opts := []gateway.Option{
			gateway.WithBroker(js),
			gateway.WithStorageWebhook(js, cfg.Storage.WebhookSecret),
		}
		if lim := cfg.Invoices.SlotLimit; lim.Enabled {
			rdb, err := st.redisClient(cfg)
			if err != nil {
				return err
			}
			opts = append(opts, gateway.WithSlotLimiter(ratelimit.NewRedisLimiter(rdb, lim.Requests, lim.Window)))
			slog.Info("Slot rate limit enabled", slog.Int("requests", lim.Requests), slog.Duration("window", lim.Window))
		}
		if objects.files != nil {
			opts = append(opts, gateway.WithUploads(objects.files, objects.tokens))
			watcher := objectstore.NewWatcher(objects.files, cfg.Storage.Bucket, js)
			g.Go(func() error { return watcher.Run(gctx) })
		}
		gw := gateway.New(svc, opts...)

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Invoices.Port),
			Handler:      gw.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
		g.Go(func() error {
			slog.Info("Gateway listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("Shutting down gateway")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// stores holds the transaction and invoice record backends and the Redis
// client behind them, if any.
type stores struct {
	transactions transaction.Store
	invoices     invoice.Repository
	rdb          *redis.Client
}

func newStores(cfg *config.Config, awsCfg aws.Config) (*stores, error) {
	table := cfg.Invoices.Store.Table
	switch cfg.Invoices.Store.Backend {
	case "dynamodb":
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		slog.Info("Using DynamoDB store", slog.String("table", table))
		return &stores{
			transactions: transaction.NewDynamoStore(client, table),
			invoices:     invoice.NewDynamoRepository(client, table),
		}, nil
	default:
		st := &stores{}
		rdb, err := st.redisClient(cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Redis store", slog.String("addr", rdb.Options().Addr), slog.String("table", table))
		st.transactions = transaction.NewRedisStore(rdb, table)
		st.invoices = invoice.NewRedisRepository(rdb, table)
		return st, nil
	}
}

// redisClient returns the shared Redis client, connecting on first use.
func (s *stores) redisClient(cfg *config.Config) (*redis.Client, error) {
	if s.rdb != nil {
		return s.rdb, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.MaxRetries = cfg.Redis.MaxRetries
	opts.PoolSize = cfg.Redis.PoolSize
	s.rdb = redis.NewClient(opts)
	return s.rdb, nil
}

func (s *stores) close() {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Close(); err != nil {
		slog.Warn("Failed to close Redis client", logging.Error(err))
	}
}

// objectStore is the configured upload store. files and tokens are set for
// the file backend, whose uploads the gateway serves itself.
type objectStore struct {
	store     objectstore.Store
	presigner objectstore.Presigner
	files     *objectstore.FileStore
	tokens    *objectstore.TokenPresigner
}

func newObjectStore(cfg *config.Config, awsCfg aws.Config) (*objectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		client := objectstore.NewS3Client(awsCfg, cfg.AWS.Endpoint, cfg.Storage.UsePathStyle)
		store := objectstore.NewS3Store(client, s3.NewPresignClient(client), cfg.Storage.Bucket)
		slog.Info("Using S3 object store", slog.String("bucket", cfg.Storage.Bucket))
		return &objectStore{store: store, presigner: store}, nil
	default:
		files, err := objectstore.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		tokens := objectstore.NewTokenPresigner(cfg.Storage.UploadSecret, cfg.Storage.PublicURL)
		slog.Info("Using file object store", slog.String("dir", files.Dir()))
		return &objectStore{store: files, presigner: tokens, files: files, tokens: tokens}, nil
	}
}

func newDLQ(ctx context.Context, cfg *config.Config, js *natsclient.JetStreamClient) (dlq.Queue, error) {
	switch cfg.DLQ.Backend {
	case "file":
		q, err := dlq.NewFileQueue(cfg.DLQ.BasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file DLQ: %w", err)
		}
		slog.Info("Dead Letter Queue enabled", slog.String("backend", "file"), slog.String("path", cfg.DLQ.BasePath))
		slog.Warn("File-based DLQ does not support multiple ingest instances")
		return q, nil
	default:
		q, err := dlq.NewJetStreamQueue(ctx, js)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JetStream DLQ: %w", err)
		}
		slog.Info("Dead Letter Queue enabled", slog.String("backend", "jetstream"))
		return q, nil
	}
}
