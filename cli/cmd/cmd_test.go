package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gagps/ecommerce-cx/common/dlq"
)

func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string][]string{
		"migrate": {"up", "down", "version"},
		"dlq":     {"list", "stats", "purge"},
		"invoice": {"import <file>"},
		"config":  {"show"},
	}

	registered := map[string][]string{}
	for _, c := range rootCmd.Commands() {
		for _, sub := range c.Commands() {
			registered[c.Use] = append(registered[c.Use], sub.Use)
		}
	}

	for name, subs := range expected {
		assert.ElementsMatch(t, subs, registered[name], "subcommands of %q", name)
	}
}

func TestPersistentFlags(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
	assert.Equal(t, "o", flag.Shorthand)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestDLQ_FileBackend(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "dlq:\n  backend: file\n  base_path: "+dir+"\n")

	q, err := dlq.NewFileQueue(dir)
	require.NoError(t, err)
	ev := dlq.NewFailedEvent("storage.objects.completed", []byte(`{}`), errors.New("store unavailable"), dlq.ReasonMaxDeliveries, 5)
	ev.Key = "tx-1"
	require.NoError(t, q.Write(context.Background(), ev))

	var runErr error
	out := captureStdout(t, func() {
		runErr = run("--config", path, "-o", "json", "dlq", "list")
	})
	require.NoError(t, runErr)

	var listed []dlq.FailedEvent
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "tx-1", listed[0].Key)
	assert.Equal(t, 5, listed[0].Attempts)

	out = captureStdout(t, func() {
		runErr = run("--config", path, "-o", "yaml", "dlq", "stats")
	})
	require.NoError(t, runErr)
	assert.Contains(t, out, "backend: file")
	assert.Contains(t, out, "messages: 1")
}

func TestDLQPurge_RequiresForce(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "dlq:\n  backend: file\n  base_path: "+dir+"\n")

	q, err := dlq.NewFileQueue(dir)
	require.NoError(t, err)
	require.NoError(t, q.Write(context.Background(), dlq.NewFailedEvent("s", nil, nil, dlq.ReasonMalformedEvent, 1)))

	err = run("--config", path, "-o", "table", "dlq", "purge")
	assert.ErrorContains(t, err, "--force")

	captureStdout(t, func() {
		err = run("--config", path, "-o", "table", "dlq", "purge", "--force")
	})
	require.NoError(t, err)

	events, err := q.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestConfigShow_OmitsSecrets(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: db.internal
    password: hunter2
records:
  secret: record-signing-key
`)

	var runErr error
	out := captureStdout(t, func() {
		runErr = run("--config", path, "-o", "table", "config", "show")
	})
	require.NoError(t, runErr)

	assert.Contains(t, out, "host: db.internal")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "record-signing-key")
}

func TestInvoiceImport_Args(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: warn\n")

	err := run("--config", path, "invoice", "import")
	assert.Error(t, err)

	err = run("--config", path, "invoice", "import", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read invoice file")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
