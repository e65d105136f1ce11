package retention

import (
	"os"
	"testing"
	"time"

	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/models"
	"placeme/pkg/store"
)

func TestMain(m *testing.M) {
	logger.Init()
	dir, err := os.MkdirTemp("", "placeme-retention-test")
	if err != nil {
		panic(err)
	}
	if err := store.Open(dir); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = store.Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestNewValidatesConfig(t *testing.T) {
	if r, err := New(config.RetentionConfig{Enabled: false}); err != nil || r != nil {
		t.Fatalf("disabled retention: %v %v", r, err)
	}
	if _, err := New(config.RetentionConfig{Enabled: true, Period: "not-a-period"}); err == nil {
		t.Fatal("bad period accepted")
	}
	if _, err := New(config.RetentionConfig{Enabled: true, Period: "30d", Cron: "not a cron"}); err == nil {
		t.Fatal("bad cron accepted")
	}
	r, err := New(config.RetentionConfig{Enabled: true, Period: "30d"})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if r.cron == "" || r.batch <= 0 {
		t.Fatalf("defaults not applied: %+v", r)
	}
}

func TestRunImmediatePurgesOnlyExpired(t *testing.T) {
	old := models.Message{ID: "ret-old", Sender: "ra", Receiver: "rb", Content: "old",
		CreatedTS: time.Now().Add(-60 * 24 * time.Hour).UnixNano()}
	if _, err := store.InsertMessage(old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	fresh := models.Message{ID: "ret-fresh", Sender: "ra", Receiver: "rb", Content: "fresh"}
	if _, err := store.InsertMessage(fresh); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	r, err := New(config.RetentionConfig{Enabled: true, Period: "30d", BatchSize: 10})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, err := r.RunImmediate()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, err := store.GetMessage("ret-old"); err == nil {
		t.Fatal("expired message survived")
	}
	if _, err := store.GetMessage("ret-fresh"); err != nil {
		t.Fatalf("fresh message purged: %v", err)
	}
}
