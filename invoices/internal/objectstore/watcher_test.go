package objectstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gagps/ecommerce-cx/common/messaging"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
}

func (p *capturePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, &messaging.Message{Subject: subject, Data: data})
	return nil
}

func (p *capturePublisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	return p.Publish(ctx, msg.Subject, msg.Data)
}

func (p *capturePublisher) snapshot() []*messaging.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*messaging.Message(nil), p.msgs...)
}

func TestWatcher_PublishesCompletedWrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	pub := &capturePublisher{}
	w := NewWatcher(store, "local", pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// fsnotify needs the watch in place before the write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Write(ctx, "abc123", []byte(`{"invoiceNumber":"1"}`)))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)

	msg := pub.snapshot()[0]
	assert.Equal(t, messaging.SubjectStorageObjectsCompleted, msg.Subject)
	events, err := ParseNotification(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, []Event{{Bucket: "local", Key: "abc123", Size: 21}}, events)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
