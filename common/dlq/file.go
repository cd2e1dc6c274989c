package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gagps/ecommerce-cx/common/logging"
)

// DefaultBasePath is used when no directory is configured.
const DefaultBasePath = "/var/lib/ecx/dlq"

// FileQueue writes failed events as JSON files in one directory. It suits
// single-instance deployments without JetStream.
type FileQueue struct {
	basePath string
	mu       sync.Mutex
	written  uint64
	logger   *slog.Logger
}

// NewFileQueue creates the directory if needed.
func NewFileQueue(basePath string) (*FileQueue, error) {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{
		basePath: basePath,
		logger:   logging.Component("dlq"),
	}, nil
}

// Write implements Queue.
func (q *FileQueue) Write(_ context.Context, ev *FailedEvent) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	filename := fmt.Sprintf("failed_%d_%d.json", ev.Timestamp.UnixNano(), q.written)
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0o644); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	q.logger.Warn("Storage event dead-lettered",
		logging.ObjectKey(ev.Key),
		slog.String("reason", ev.Reason),
		slog.String("file", filename))
	return nil
}

// Stats implements Queue.
func (q *FileQueue) Stats(_ context.Context) Stats {
	if q == nil {
		return Stats{Backend: "file"}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{Enabled: true, Backend: "file", Written: q.written, Location: q.basePath}
	files, err := q.entries()
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Messages = uint64(len(files))
	return st
}

// List implements Queue, oldest first.
func (q *FileQueue) List(_ context.Context, limit int) ([]FailedEvent, error) {
	if q == nil {
		return nil, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return nil, err
	}

	var events []FailedEvent
	for _, name := range files {
		if limit > 0 && len(events) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.Error("Failed to read DLQ file", slog.String("file", name), logging.Error(err))
			continue
		}
		var failed FailedEvent
		if err := json.Unmarshal(data, &failed); err != nil {
			q.logger.Error("Failed to parse DLQ file", slog.String("file", name), logging.Error(err))
			continue
		}
		events = append(events, failed)
	}
	return events, nil
}

// Purge implements Queue.
func (q *FileQueue) Purge(_ context.Context) error {
	if q == nil {
		return ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return err
	}
	deleted := 0
	for _, name := range files {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.Error("Failed to delete DLQ file", slog.String("file", name), logging.Error(err))
			continue
		}
		deleted++
	}
	q.logger.Info("DLQ purged", slog.Int("deleted", deleted))
	return nil
}

func (q *FileQueue) entries() ([]string, error) {
	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), "failed_") {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names, nil
}
