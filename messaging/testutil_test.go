package messaging

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stratizen/crypto"
	"stratizen/logging"
	"stratizen/models"
	"stratizen/storage"
)

var testKey = crypto.StaticKey(bytes.Repeat([]byte{0x42}, crypto.KeySize))

type testClock struct {
	mu sync.Mutex
	ms int64
}

func (c *testClock) Set(ms int64) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), zerolog.Nop())
}

func newTestRepo(t *testing.T) *storage.Store {
	t.Helper()

	repo, _, err := storage.Open(t.TempDir(), storage.WithMaintenanceInterval(0))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Fatalf("close test repository: %v", err)
		}
	})
	return repo
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *storage.Store, *testClock) {
	t.Helper()

	repo := newTestRepo(t)
	clock := &testClock{}
	store, err := New(testContext(), repo, testKey, append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store, repo, clock
}

func mustSendAt(t *testing.T, store *Store, clock *testClock, ms int64, sender, receiver, content string) {
	t.Helper()

	clock.Set(ms)
	if err := store.SendMessage(testContext(), outgoing(sender, receiver, content)); err != nil {
		t.Fatalf("SendMessage %s->%s failed: %v", sender, receiver, err)
	}
}

func outgoing(sender, receiver, content string) models.OutgoingMessage {
	return models.OutgoingMessage{Sender: sender, Receiver: receiver, Content: content}
}
