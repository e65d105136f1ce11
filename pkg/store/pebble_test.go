package store

import (
	"os"
	"testing"
	"time"

	"placeme/pkg/logger"
	"placeme/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	dir, err := os.MkdirTemp("", "placeme-store-test")
	if err != nil {
		panic(err)
	}
	if err := Open(dir); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func mustInsert(t *testing.T, sender, receiver, content string) models.Message {
	t.Helper()
	m, err := InsertMessage(models.Message{ID: "m-" + t.Name() + "-" + content, Sender: sender, Receiver: receiver, Content: content})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return m
}

func TestInsertAssignsTimestampAndUnread(t *testing.T) {
	m, err := InsertMessage(models.Message{ID: "ts-check", Sender: "ts-a", Receiver: "ts-b", Content: "hi", IsRead: true})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.CreatedTS == 0 {
		t.Fatal("expected server-assigned timestamp")
	}
	if m.IsRead {
		t.Fatal("insert must store messages unread regardless of input flag")
	}
	got, err := GetMessage("ts-check")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsRead || got.CreatedTS != m.CreatedTS {
		t.Fatalf("stored row mismatch: %+v", got)
	}
}

func TestFetchForUserNewestFirst(t *testing.T) {
	mustInsert(t, "nf-a", "nf-b", "one")
	mustInsert(t, "nf-b", "nf-a", "two")
	mustInsert(t, "nf-a", "nf-c", "three")

	msgs, err := FetchForUser("nf-a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].CreatedTS < msgs[i].CreatedTS {
			t.Fatalf("not newest first at %d: %d < %d", i, msgs[i-1].CreatedTS, msgs[i].CreatedTS)
		}
	}
	if msgs[0].Content != "three" {
		t.Fatalf("expected newest message first, got %q", msgs[0].Content)
	}
}

func TestFetchForPairChronologicalBothDirections(t *testing.T) {
	mustInsert(t, "pp-a", "pp-b", "first")
	mustInsert(t, "pp-b", "pp-a", "second")
	mustInsert(t, "pp-a", "pp-b", "third")

	// participant order must not matter
	forward, err := FetchForPair("pp-a", "pp-b")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	reverse, err := FetchForPair("pp-b", "pp-a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(forward) != 3 || len(reverse) != 3 {
		t.Fatalf("expected 3 each, got %d and %d", len(forward), len(reverse))
	}
	for i := range forward {
		if forward[i].ID != reverse[i].ID {
			t.Fatalf("pair fetch depends on argument order at %d", i)
		}
	}
	want := []string{"first", "second", "third"}
	for i, m := range forward {
		if m.Content != want[i] {
			t.Fatalf("expected %q at %d, got %q", want[i], i, m.Content)
		}
	}
}

func TestPairFetchExcludesThirdParties(t *testing.T) {
	mustInsert(t, "tp-a", "tp-b", "ours")
	mustInsert(t, "tp-a", "tp-c", "other")
	msgs, err := FetchForPair("tp-a", "tp-b")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, m := range msgs {
		if m.Receiver != "tp-b" && m.Sender != "tp-b" {
			t.Fatalf("leaked third-party message %q", m.Content)
		}
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	m := mustInsert(t, "mr-a", "mr-b", "note")
	for i := 0; i < 3; i++ {
		if err := MarkRead([]string{m.ID}); err != nil {
			t.Fatalf("mark read pass %d: %v", i, err)
		}
		got, err := GetMessage(m.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.IsRead {
			t.Fatalf("pass %d: message still unread", i)
		}
	}
	// unknown ids are skipped, not errors
	if err := MarkRead([]string{"no-such-id"}); err != nil {
		t.Fatalf("mark read unknown id: %v", err)
	}
}

func TestDeleteRemovesIndexRowsAndIsIdempotent(t *testing.T) {
	m := mustInsert(t, "del-a", "del-b", "gone")
	if err := DeleteMessage(m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteMessage(m.ID); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, err := GetMessage(m.ID); err == nil {
		t.Fatal("canonical row survived delete")
	}
	msgs, err := FetchForUser("del-a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, got := range msgs {
		if got.ID == m.ID {
			t.Fatal("deleted message still reachable via user index")
		}
	}
	pair, err := FetchForPair("del-a", "del-b")
	if err != nil {
		t.Fatalf("fetch pair: %v", err)
	}
	for _, got := range pair {
		if got.ID == m.ID {
			t.Fatal("deleted message still reachable via pair index")
		}
	}
}

func TestSelfAddressedMessageSingleIndexRow(t *testing.T) {
	m := mustInsert(t, "self-a", "self-a", "memo")
	msgs, err := FetchForUser("self-a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	seen := 0
	for _, got := range msgs {
		if got.ID == m.ID {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("self message appeared %d times in user history", seen)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	old, err := InsertMessage(models.Message{ID: "purge-old", Sender: "pg-a", Receiver: "pg-b", Content: "old", CreatedTS: time.Now().Add(-48 * time.Hour).UnixNano()})
	if err != nil {
		t.Fatalf("insert old: %v", err)
	}
	fresh := mustInsert(t, "pg-a", "pg-b", "fresh")

	cutoff := time.Now().Add(-24 * time.Hour).UnixNano()
	n, err := PurgeOlderThan(cutoff, 100)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected at least one purged row, got %d", n)
	}
	if _, err := GetMessage(old.ID); err == nil {
		t.Fatal("expired message survived purge")
	}
	if _, err := GetMessage(fresh.ID); err != nil {
		t.Fatalf("fresh message purged: %v", err)
	}
}

func TestProfileJoinOnFetch(t *testing.T) {
	if err := SaveProfile(models.Profile{ID: "pj-b", Name: "Bea"}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	mustInsert(t, "pj-a", "pj-b", "hello")
	msgs, err := FetchForPair("pj-a", "pj-b")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatal("no messages")
	}
	got := msgs[len(msgs)-1]
	if got.ReceiverProfile == nil || got.ReceiverProfile.Name != "Bea" {
		t.Fatalf("receiver profile not joined: %+v", got.ReceiverProfile)
	}
	if got.SenderProfile != nil {
		t.Fatal("sender has no profile document; join must leave it nil")
	}
}
