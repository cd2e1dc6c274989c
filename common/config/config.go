// Package config provides configuration loading shared by every ecommerce-cx binary.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (ECX_REDIS_URL, ...).
const EnvPrefix = "ECX"

// Config is the root configuration shared by all services.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	AWS      AWSConfig      `mapstructure:"aws" yaml:"aws"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Invoices InvoicesConfig `mapstructure:"invoices" yaml:"invoices"`
	DLQ      DLQConfig      `mapstructure:"dlq" yaml:"dlq"`
	Products ProductsConfig `mapstructure:"products" yaml:"products"`
	Orders   OrdersConfig   `mapstructure:"orders" yaml:"orders"`
	Email    EmailConfig    `mapstructure:"email" yaml:"email"`
	Records  RecordsConfig  `mapstructure:"records" yaml:"records"`
}

// ServerConfig holds HTTP server timeouts shared by every listener.
type ServerConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size" yaml:"pool_size"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns int    `mapstructure:"max_conns" yaml:"max_conns"`

	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	BulkTimeout  time.Duration `mapstructure:"bulk_timeout" yaml:"bulk_timeout"`
}

// DSN returns a postgres:// connection URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// AWSConfig selects the region and an optional endpoint override (LocalStack, MinIO).
type AWSConfig struct {
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// StorageConfig configures the invoice upload object store.
type StorageConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"` // "file" or "s3"
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	PublicURL    string `mapstructure:"public_url" yaml:"public_url"`
	UploadSecret string `mapstructure:"upload_secret" yaml:"-"`
	// WebhookSecret authenticates POST /storage/events as a bearer token.
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"-"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// InvoicesConfig configures the invoice upload pipeline.
type InvoicesConfig struct {
	Port       int              `mapstructure:"port" yaml:"port"`
	SlotTTL    time.Duration    `mapstructure:"slot_ttl" yaml:"slot_ttl"`
	InvoiceTTL time.Duration    `mapstructure:"invoice_ttl" yaml:"invoice_ttl"`
	Store      InvoiceStoreConf `mapstructure:"store" yaml:"store"`
	Push       PushConfig       `mapstructure:"push" yaml:"push"`
	Ingest     IngestConfig     `mapstructure:"ingest" yaml:"ingest"`
	SlotLimit  RateLimitConfig  `mapstructure:"slot_limit" yaml:"slot_limit"`
}

// RateLimitConfig bounds upload slot requests per connection. Counters live
// in Redis so every gateway instance shares them.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

// InvoiceStoreConf selects the transaction and invoice record backend.
type InvoiceStoreConf struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "redis" or "dynamodb"
	Table   string `mapstructure:"table" yaml:"table"`
}

// PushConfig selects how status notifications reach sockets.
type PushConfig struct {
	Backend  string        `mapstructure:"backend" yaml:"backend"` // "nats", "local" or "apigateway"
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// IngestConfig holds trigger-layer delivery settings.
type IngestConfig struct {
	MaxDeliver     int           `mapstructure:"max_deliver" yaml:"max_deliver"`
	AckWait        time.Duration `mapstructure:"ack_wait" yaml:"ack_wait"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" yaml:"handler_timeout"`
}

// DLQConfig holds dead letter queue configuration
type DLQConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`     // "jetstream" (default) or "file"
	BasePath string `mapstructure:"base_path" yaml:"base_path"` // Only used for file backend
}

// ProductsConfig configures the products service.
type ProductsConfig struct {
	Port       int           `mapstructure:"port" yaml:"port"`
	EventTTL   time.Duration `mapstructure:"event_ttl" yaml:"event_ttl"`
	EventEmail string        `mapstructure:"event_email" yaml:"event_email"`
}

// OrdersConfig configures the orders service.
type OrdersConfig struct {
	Port     int           `mapstructure:"port" yaml:"port"`
	EventTTL time.Duration `mapstructure:"event_ttl" yaml:"event_ttl"`
}

// EmailConfig configures order confirmation email.
type EmailConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Source  string `mapstructure:"source" yaml:"source"`
	ReplyTo string `mapstructure:"reply_to" yaml:"reply_to"`
}

// RecordsConfig configures the shared event record store.
type RecordsConfig struct {
	Secret        string        `mapstructure:"secret" yaml:"-"`
	PurgeInterval time.Duration `mapstructure:"purge_interval" yaml:"purge_interval"`
}

// Load reads configuration from path, or $ECX_CONFIG_DIR/config.yaml when path
// is empty, then applies ECX_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		configDir := os.Getenv("ECX_CONFIG_DIR")
		if configDir == "" {
			configDir = "/etc/ecx"
		}
		path = filepath.Join(configDir, "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects enumerated settings outside their allowed values.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}

	check("storage.backend", c.Storage.Backend, "file", "s3")
	check("invoices.store.backend", c.Invoices.Store.Backend, "redis", "dynamodb")
	check("invoices.push.backend", c.Invoices.Push.Backend, "nats", "local", "apigateway")
	check("dlq.backend", c.DLQ.Backend, "jetstream", "file")

	if c.Invoices.Ingest.MaxDeliver < 1 {
		errs = append(errs, fmt.Errorf("invoices.ingest.max_deliver must be at least 1"))
	}
	if c.Invoices.SlotLimit.Enabled && (c.Invoices.SlotLimit.Requests < 1 || c.Invoices.SlotLimit.Window <= 0) {
		errs = append(errs, fmt.Errorf("invoices.slot_limit needs positive requests and window when enabled"))
	}
	if c.Storage.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("storage.webhook_secret must not be empty"))
	}
	if c.Invoices.Push.Backend == "apigateway" && c.Invoices.Push.Endpoint == "" {
		errs = append(errs, fmt.Errorf("invoices.push.endpoint is required for the apigateway backend"))
	}
	return errors.Join(errs...)
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "ecx")
	v.SetDefault("database.postgres.user", "ecx")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.query_timeout", 5*time.Second)
	v.SetDefault("database.postgres.write_timeout", 10*time.Second)
	v.SetDefault("database.postgres.bulk_timeout", 30*time.Second)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.bucket", "invoices")
	v.SetDefault("storage.data_dir", "/var/lib/ecx/uploads")
	v.SetDefault("storage.public_url", "http://localhost:8080")
	v.SetDefault("storage.upload_secret", "change-this-in-production")
	v.SetDefault("storage.webhook_secret", "change-this-in-production")
	v.SetDefault("storage.use_path_style", false)

	v.SetDefault("invoices.port", 8080)
	v.SetDefault("invoices.slot_ttl", "5m")
	v.SetDefault("invoices.invoice_ttl", "2m")
	v.SetDefault("invoices.store.backend", "redis")
	v.SetDefault("invoices.store.table", "invoices")
	v.SetDefault("invoices.push.backend", "nats")
	v.SetDefault("invoices.push.endpoint", "")
	v.SetDefault("invoices.push.timeout", "2s")
	v.SetDefault("invoices.ingest.max_deliver", 3)
	v.SetDefault("invoices.ingest.ack_wait", "30s")
	v.SetDefault("invoices.ingest.retry_delay", "2s")
	v.SetDefault("invoices.ingest.handler_timeout", "10s")
	v.SetDefault("invoices.slot_limit.enabled", true)
	v.SetDefault("invoices.slot_limit.requests", 10)
	v.SetDefault("invoices.slot_limit.window", "1m")

	v.SetDefault("dlq.backend", "jetstream")
	v.SetDefault("dlq.base_path", "/var/lib/ecx/dlq")

	v.SetDefault("products.port", 8081)
	v.SetDefault("products.event_ttl", "5m")
	v.SetDefault("products.event_email", "catalog@example.com")

	v.SetDefault("orders.port", 8082)
	v.SetDefault("orders.event_ttl", "120m")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.source", "orders@example.com")
	v.SetDefault("email.reply_to", "")

	v.SetDefault("records.secret", "change-this-in-production")
	v.SetDefault("records.purge_interval", "1m")
}
