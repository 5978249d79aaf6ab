package storage

import (
	"context"
	"errors"
	"testing"
)

func TestInsertAndListPairMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := mustInsertMessage(t, store, "alice", "bob", 10)
	second := mustInsertMessage(t, store, "bob", "alice", 10)
	third := mustInsertMessage(t, store, "alice", "bob", 5)
	mustInsertMessage(t, store, "alice", "carol", 7)
	mustInsertMessage(t, store, "carol", "bob", 8)

	if first >= second {
		t.Fatalf("expected increasing IDs, got %d then %d", first, second)
	}

	forward, err := store.ListPairMessages(ctx, "alice", "bob", AllTime)
	if err != nil {
		t.Fatalf("ListPairMessages failed: %v", err)
	}
	backward, err := store.ListPairMessages(ctx, "bob", "alice", AllTime)
	if err != nil {
		t.Fatalf("ListPairMessages reversed failed: %v", err)
	}

	wantIDs := []int64{third, first, second}
	if len(forward) != len(wantIDs) {
		t.Fatalf("expected %d pair messages, got %d", len(wantIDs), len(forward))
	}
	for i, id := range wantIDs {
		if forward[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, forward[i].ID)
		}
		if backward[i] != forward[i] {
			t.Fatalf("position %d: reversed pair order differs: %+v vs %+v", i, backward[i], forward[i])
		}
	}

	windowed, err := store.ListPairMessages(ctx, "alice", "bob", TimeRange{From: 6, To: 100})
	if err != nil {
		t.Fatalf("ListPairMessages windowed failed: %v", err)
	}
	if len(windowed) != 2 {
		t.Fatalf("expected 2 messages inside window, got %d", len(windowed))
	}

	none, err := store.ListPairMessages(ctx, "alice", "nobody", AllTime)
	if err != nil {
		t.Fatalf("ListPairMessages empty failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", none)
	}
}

func TestListParticipantMessagesIncludesBothDirectionsAndSelf(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustInsertMessage(t, store, "alice", "bob", 1)
	mustInsertMessage(t, store, "carol", "alice", 2)
	mustInsertMessage(t, store, "alice", "alice", 3)
	mustInsertMessage(t, store, "bob", "carol", 4)

	messages, err := store.ListParticipantMessages(ctx, "alice", AllTime)
	if err != nil {
		t.Fatalf("ListParticipantMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages touching alice, got %d", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Timestamp < messages[i-1].Timestamp {
			t.Fatalf("messages not ordered by timestamp: %+v", messages)
		}
	}
}

func TestInsertMessageValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []Message{
		{Receiver: "bob", Content: "c", Timestamp: 1},
		{Sender: "alice", Content: "c", Timestamp: 1},
		{Sender: "alice", Receiver: "bob", Timestamp: 1},
	}
	for _, message := range cases {
		if _, err := store.InsertMessage(ctx, message); err == nil {
			t.Fatalf("expected validation error for %+v", message)
		}
	}
}

func TestInsertMessageOnceSuppressesRecentDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	message := Message{Sender: "alice", Receiver: "bob", Content: "c", Timestamp: 100}
	firstID, inserted, err := store.InsertMessageOnce(ctx, message, "tok-1", 0)
	if err != nil {
		t.Fatalf("InsertMessageOnce failed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first send to insert")
	}

	message.Timestamp = 150
	dupID, inserted, err := store.InsertMessageOnce(ctx, message, "tok-1", 50)
	if err != nil {
		t.Fatalf("InsertMessageOnce duplicate failed: %v", err)
	}
	if inserted || dupID != firstID {
		t.Fatalf("expected duplicate to resolve to id %d without insert, got id=%d inserted=%v", firstID, dupID, inserted)
	}

	message.Timestamp = 500
	laterID, inserted, err := store.InsertMessageOnce(ctx, message, "tok-1", 400)
	if err != nil {
		t.Fatalf("InsertMessageOnce after window failed: %v", err)
	}
	if !inserted || laterID == firstID {
		t.Fatalf("expected token outside window to insert a new row")
	}

	all, err := store.ListPairMessages(ctx, "alice", "bob", AllTime)
	if err != nil {
		t.Fatalf("ListPairMessages failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(all))
	}

	if _, _, err := store.InsertMessageOnce(ctx, message, "", 0); err == nil {
		t.Fatalf("expected empty token to fail")
	}
}

func TestLatestTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestTimestamp(ctx)
	if err != nil {
		t.Fatalf("LatestTimestamp failed: %v", err)
	}
	if latest != 0 {
		t.Fatalf("expected 0 for empty table, got %d", latest)
	}

	mustInsertMessage(t, store, "alice", "bob", 3)
	mustInsertMessage(t, store, "bob", "alice", 9)
	mustInsertMessage(t, store, "alice", "carol", 20)

	tieID := mustInsertMessage(t, store, "alice", "bob", 9)

	pairLatest, err := store.LatestPairMessage(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("LatestPairMessage failed: %v", err)
	}
	if pairLatest.Timestamp != 9 || pairLatest.ID != tieID {
		t.Fatalf("expected pair latest (9, %d), got (%d, %d)", tieID, pairLatest.Timestamp, pairLatest.ID)
	}
	if _, err := store.LatestPairMessage(ctx, "bob", "carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty pair, got %v", err)
	}
}

func TestScanToleratesNullColumns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Legacy rows written before NOT NULL constraints existed may hold NULLs.
	if _, err := store.db.Exec(`CREATE TABLE legacy AS SELECT * FROM messages WHERE 0`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := store.db.Exec(`INSERT INTO legacy (id, sender, receiver, content, timestamp) VALUES (1, 'alice', 'bob', NULL, NULL)`); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	rows, err := store.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM legacy`)
	if err != nil {
		t.Fatalf("query legacy rows: %v", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		t.Fatalf("collectMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "" || messages[0].Timestamp != 0 {
		t.Fatalf("expected zero-valued legacy fields, got %+v", messages)
	}
}
