package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Invoices.SlotTTL)
	assert.Equal(t, 2*time.Minute, cfg.Invoices.InvoiceTTL)
	assert.Equal(t, "redis", cfg.Invoices.Store.Backend)
	assert.Equal(t, "nats", cfg.Invoices.Push.Backend)
	assert.Equal(t, 3, cfg.Invoices.Ingest.MaxDeliver)
	assert.Equal(t, 30*time.Second, cfg.Invoices.Ingest.AckWait)
	assert.Equal(t, 10*time.Second, cfg.Invoices.Ingest.HandlerTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Products.EventTTL)
	assert.Equal(t, 120*time.Minute, cfg.Orders.EventTTL)
	assert.Equal(t, "jetstream", cfg.DLQ.Backend)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.True(t, cfg.Invoices.SlotLimit.Enabled)
	assert.Equal(t, 10, cfg.Invoices.SlotLimit.Requests)
	assert.Equal(t, time.Minute, cfg.Invoices.SlotLimit.Window)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
invoices:
  slot_ttl: 90s
  store:
    backend: dynamodb
    table: ecx-invoices
storage:
  backend: s3
  bucket: uploads
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("ECX_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("ECX_INVOICES_INGEST_MAX_DELIVER", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Invoices.SlotTTL)
	assert.Equal(t, "dynamodb", cfg.Invoices.Store.Backend)
	assert.Equal(t, "ecx-invoices", cfg.Invoices.Store.Table)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 5, cfg.Invoices.Ingest.MaxDeliver)
}

func TestLoad_ConfigDirEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging:\n  level: debug\n"), 0o600))
	t.Setenv("ECX_CONFIG_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("ECX_INVOICES_PUSH_BACKEND", "carrier-pigeon")

	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoices.push.backend")
}

func TestValidate_APIGatewayNeedsEndpoint(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	cfg.Invoices.Push.Backend = "apigateway"
	assert.Error(t, cfg.Validate())

	cfg.Invoices.Push.Endpoint = "https://abc.execute-api.us-east-1.amazonaws.com/prod"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_SlotLimit(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	cfg.Invoices.SlotLimit.Requests = 0
	assert.ErrorContains(t, cfg.Validate(), "invoices.slot_limit")

	cfg.Invoices.SlotLimit.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestValidate_WebhookSecret(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Storage.WebhookSecret)

	cfg.Storage.WebhookSecret = ""
	assert.ErrorContains(t, cfg.Validate(), "storage.webhook_secret")
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, Database: "ecx", User: "ecx", Password: "p@ss", SSLMode: "disable"}
	assert.Equal(t, "postgres://ecx:p%40ss@db:5432/ecx?sslmode=disable", p.DSN())
}
