package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
)

// Watcher turns new files in a FileStore directory into bucket
// notifications on the storage completion subject.
type Watcher struct {
	dir       string
	bucket    string
	publisher messaging.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewWatcher creates a watcher for store. bucket names the logical bucket
// reported in events.
func NewWatcher(store *FileStore, bucket string, publisher messaging.Publisher) *Watcher {
	return &Watcher{
		dir:       store.Dir(),
		bucket:    bucket,
		publisher: publisher,
		logger:    logging.Component("objectstore-watcher"),
		now:       time.Now,
	}
}

// Run watches until ctx is done. It returns once the watch is torn down.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching upload directory", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				w.handleCreate(ctx, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	key := filepath.Base(path)
	if strings.HasPrefix(key, ".") || ValidateKey(key) != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	if err := w.publish(ctx, Event{Bucket: w.bucket, Key: key, Size: info.Size()}); err != nil {
		w.logger.Error("Failed to publish storage event", logging.ObjectKey(key), logging.Error(err))
		return
	}
	w.logger.Debug("Storage event published", logging.ObjectKey(key))
}

func (w *Watcher) publish(ctx context.Context, ev Event) error {
	data, err := EncodeNotification(w.now(), ev)
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, messaging.SubjectStorageObjectsCompleted, data)
}
