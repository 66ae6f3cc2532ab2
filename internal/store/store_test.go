package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spread-trading/internal/book"
	"spread-trading/internal/core"
	"spread-trading/internal/events"
)

func TestStoreRuntimeStatusRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := RuntimeStatus{
		Mode:        "dryrun",
		InstanceID:  "bot1",
		PID:         1234,
		State:       "running",
		StartedAt:   time.Now().UTC().Add(-time.Minute),
		Passes:      7,
		LastPassMs:  420,
		AssetErrors: map[string]string{"ethinr": "depth incomplete"},
		Counts:      map[string]book.Counts{"btcinr": {Buy: 1, Sell: 2}},
	}
	if err := s.SaveRuntimeStatus(in); err != nil {
		t.Fatalf("SaveRuntimeStatus() error = %v", err)
	}

	out, ok, err := s.LoadRuntimeStatus()
	if err != nil || !ok {
		t.Fatalf("LoadRuntimeStatus() ok=%v err=%v", ok, err)
	}
	if out.Mode != in.Mode || out.InstanceID != in.InstanceID || out.Passes != 7 || out.PID != 1234 {
		t.Fatalf("LoadRuntimeStatus() mismatch: got %+v want %+v", out, in)
	}
	if out.UpdatedAt.IsZero() {
		t.Fatalf("updated_at should be set")
	}
	if out.Counts["btcinr"].Total() != 3 || out.AssetErrors["ethinr"] == "" {
		t.Fatalf("per-asset fields lost: %+v", out)
	}
}

func TestStoreLoadMissingFiles(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok, err := s.LoadRuntimeStatus(); err != nil || ok {
		t.Fatalf("LoadRuntimeStatus() ok=%v err=%v, want false nil", ok, err)
	}
	if _, ok, err := s.LoadBook(); err != nil || ok {
		t.Fatalf("LoadBook() ok=%v err=%v, want false nil", ok, err)
	}
}

func TestStoreLoadBookRejectsEmptyFile(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "book.json"), []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.LoadBook(); err == nil {
		t.Fatalf("LoadBook() error = nil, want empty file error")
	}
}

func TestStoreBookRoundTripRestores(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := book.New([]string{"btcinr"})
	placed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := h.Insert("btcinr", core.Buy, book.Record{ID: "11", Price: decimal.RequireFromString("100.50"), PlacedAt: placed}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := h.Insert("btcinr", core.Sell, book.Record{ID: "12", Price: decimal.RequireFromString("101"), PlacedAt: placed}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.SaveBook(h.Snapshot(placed)); err != nil {
		t.Fatalf("SaveBook() error = %v", err)
	}

	snap, ok, err := s.LoadBook()
	if err != nil || !ok {
		t.Fatalf("LoadBook() ok=%v err=%v", ok, err)
	}
	fresh := book.New([]string{"btcinr"})
	restored, skipped := fresh.Restore(snap)
	if restored != 2 || len(skipped) != 0 {
		t.Fatalf("Restore() = %d %v, want 2 []", restored, skipped)
	}
	buys, err := fresh.Orders("btcinr", core.Buy)
	if err != nil {
		t.Fatalf("Orders() error = %v", err)
	}
	if !buys["11"].Price.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("restored price = %s", buys["11"].Price)
	}
}

func TestStoreJournalAppendsPerDay(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	at := time.Date(2026, 5, 6, 23, 59, 0, 0, time.UTC)
	for _, typ := range []events.Type{events.OrderPlaced, events.OrderCancelled} {
		ev := events.Event{Type: typ, Symbol: "btcinr", Side: core.Buy, OrderID: "1", Time: at}
		if err := s.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	f, err := os.Open(filepath.Join(root, "events", "2026-05-06.jsonl"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var types []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev events.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("journal line not json: %v", err)
		}
		types = append(types, string(ev.Type))
	}
	if len(types) != 2 || types[0] != "order_placed" || types[1] != "order_cancelled" {
		t.Fatalf("journal types = %v", types)
	}
}
