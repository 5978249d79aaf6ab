package storage

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir, opts...)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustInsertMessage(t *testing.T, store *Store, sender, receiver string, timestamp int64) int64 {
	t.Helper()

	id, err := store.InsertMessage(context.Background(), Message{
		Sender:    sender,
		Receiver:  receiver,
		Content:   "ciphertext-" + sender + "-" + receiver,
		Timestamp: timestamp,
	})
	if err != nil {
		t.Fatalf("insert message %s->%s: %v", sender, receiver, err)
	}
	return id
}
