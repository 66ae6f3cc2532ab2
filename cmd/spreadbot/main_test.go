package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/api"
	"spread-trading/internal/book"
	"spread-trading/internal/config"
	"spread-trading/internal/core"
	"spread-trading/internal/events"
	"spread-trading/internal/exchange"
	"spread-trading/internal/exchange/paper"
	"spread-trading/internal/exchange/wazirx"
	"spread-trading/internal/obs"
	"spread-trading/internal/store"
)

func TestStateDirSeparatesModeAndInstance(t *testing.T) {
	cfg := config.Config{Mode: config.ModeLive, InstanceID: "a1", State: config.StateConfig{Dir: "state"}}
	if got, want := stateDir(cfg), filepath.Join("state", "live", "a1"); got != want {
		t.Fatalf("stateDir() = %q, want %q", got, want)
	}
}

func TestBuildExchangeDryRunIsPaper(t *testing.T) {
	client := wazirx.NewClientWithOptions(wazirx.Options{RestBaseURL: "http://127.0.0.1:1"})
	cfg := config.Config{Mode: config.ModeDryRun}
	if _, ok := buildExchange(cfg, client, client, zap.NewNop().Sugar()).(*paper.Exchange); !ok {
		t.Fatalf("dry run exchange is not paper")
	}
	cfg.Mode = config.ModeLive
	if ex := buildExchange(cfg, client, client, zap.NewNop().Sugar()); ex != exchange.Exchange(client) {
		t.Fatalf("live exchange with rest depth must be the client")
	}
}

func TestBuildPublisherHonoursJournal(t *testing.T) {
	st, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	hub := api.NewHub(nil)
	metrics := obs.NewMetrics()

	cfg := config.Config{}
	pub, closeFn := buildPublisher(cfg, hub, st, metrics, zap.NewNop().Sugar())
	defer closeFn()
	if n := len(pub.(events.Fanout)); n != 2 {
		t.Fatalf("publishers = %d, want 2 without journal or kafka", n)
	}

	cfg.Events.Journal = true
	pub, closeFn2 := buildPublisher(cfg, hub, st, metrics, zap.NewNop().Sugar())
	defer closeFn2()
	if n := len(pub.(events.Fanout)); n != 3 {
		t.Fatalf("publishers = %d, want 3 with journal", n)
	}
}

func TestRestoreBookFromSnapshot(t *testing.T) {
	st, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	prev := book.New([]string{"btcinr", "gone"})
	if err := prev.Insert("btcinr", core.Sell, book.Record{ID: "s1", Price: decimal.RequireFromString("101.5")}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveBook(prev.Snapshot(time.Now())); err != nil {
		t.Fatalf("SaveBook() error = %v", err)
	}

	h := book.New([]string{"btcinr"})
	if err := restoreBook(st, h, zap.NewNop().Sugar()); err != nil {
		t.Fatalf("restoreBook() error = %v", err)
	}
	c, err := h.Counts("btcinr")
	if err != nil || c.Sell != 1 {
		t.Fatalf("counts = %+v err=%v", c, err)
	}
}

func TestRestoreBookWithoutSnapshot(t *testing.T) {
	st, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	if err := restoreBook(st, book.New([]string{"btcinr"}), zap.NewNop().Sugar()); err != nil {
		t.Fatalf("restoreBook() error = %v", err)
	}
}

func TestBuildAlertManagerDisabled(t *testing.T) {
	if m := buildAlertManager(config.Config{}, zap.NewNop().Sugar()); m != nil {
		t.Fatalf("alert manager must be nil when telegram is disabled")
	}
}
