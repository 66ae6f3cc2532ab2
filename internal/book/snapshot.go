package book

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssetSnapshot struct {
	Buy      []Record                   `json:"buy"`
	Sell     []Record                   `json:"sell"`
	Deferred map[string]decimal.Decimal `json:"deferred,omitempty"`
	Counts   Counts                     `json:"counts"`
}

type Snapshot struct {
	TakenAt time.Time                `json:"taken_at"`
	Assets  map[string]AssetSnapshot `json:"assets"`
}

func ordered(o Orders) []Record {
	out := make([]Record, 0, len(o))
	for _, id := range o.IDs() {
		out = append(out, o[id])
	}
	return out
}

// Snapshot copies the whole history under one lock acquisition.
func (h *TradeHistory) Snapshot(now time.Time) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := Snapshot{TakenAt: now.UTC(), Assets: make(map[string]AssetSnapshot, len(h.assets))}
	for symbol, a := range h.assets {
		as := AssetSnapshot{
			Buy:    ordered(a.buy),
			Sell:   ordered(a.sell),
			Counts: Counts{Buy: len(a.buy), Sell: len(a.sell), Deferred: len(a.deferred)},
		}
		if len(a.deferred) > 0 {
			as.Deferred = make(map[string]decimal.Decimal, len(a.deferred))
			for id, price := range a.deferred {
				as.Deferred[id] = price
			}
		}
		snap.Assets[symbol] = as
	}
	return snap
}

// Restore loads tracked orders for symbols this history knows. Symbols no
// longer present are skipped and returned.
func (h *TradeHistory) Restore(snap Snapshot) (restored int, skipped []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for symbol, as := range snap.Assets {
		a, ok := h.assets[symbol]
		if !ok {
			skipped = append(skipped, symbol)
			continue
		}
		for _, rec := range as.Buy {
			if rec.ID == "" {
				continue
			}
			a.buy[rec.ID] = rec
			restored++
		}
		for _, rec := range as.Sell {
			if rec.ID == "" {
				continue
			}
			a.sell[rec.ID] = rec
			restored++
		}
		for id, price := range as.Deferred {
			a.deferred[id] = price
		}
	}
	return restored, skipped
}
