// Package book keeps the engine's own open orders per asset.
package book

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spread-trading/internal/core"
)

var ErrDuplicateOrder = errors.New("order already tracked")

// Record is one of our own orders resting on the exchange.
type Record struct {
	ID       string          `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Filled   bool            `json:"filled"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Orders maps order id to record. Values returned by TradeHistory are copies.
type Orders map[string]Record

func (o Orders) clone() Orders {
	out := make(Orders, len(o))
	for id, rec := range o {
		out[id] = rec
	}
	return out
}

// IDs returns the order ids sorted by placement time, then id.
func (o Orders) IDs() []string {
	ids := make([]string, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := o[ids[i]], o[ids[j]]
		if !a.PlacedAt.Equal(b.PlacedAt) {
			return a.PlacedAt.Before(b.PlacedAt)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Removed returns the records present in before and missing from after.
func Removed(before, after Orders) Orders {
	out := make(Orders)
	for id, rec := range before {
		if _, ok := after[id]; !ok {
			out[id] = rec
		}
	}
	return out
}

// Counts are derived from map sizes on every read. Deferred sells are owed
// a slot but have no order on the exchange yet.
type Counts struct {
	Buy      int `json:"buy"`
	Sell     int `json:"sell"`
	Deferred int `json:"deferred,omitempty"`
}

// Total counts open orders on the exchange.
func (c Counts) Total() int {
	return c.Buy + c.Sell
}

// Committed is Total plus the slots held for deferred sells.
func (c Counts) Committed() int {
	return c.Total() + c.Deferred
}

type assetOrders struct {
	buy      Orders
	sell     Orders
	deferred map[string]decimal.Decimal
}

func newAssetOrders() *assetOrders {
	return &assetOrders{
		buy:      make(Orders),
		sell:     make(Orders),
		deferred: make(map[string]decimal.Decimal),
	}
}

func (a *assetOrders) side(side core.Side) (Orders, error) {
	switch side {
	case core.Buy:
		return a.buy, nil
	case core.Sell:
		return a.sell, nil
	default:
		return nil, fmt.Errorf("unknown side %q", side)
	}
}

func (a *assetOrders) replace(side core.Side, orders Orders) {
	if side == core.Buy {
		a.buy = orders
		return
	}
	a.sell = orders
}

// TradeHistory holds per-asset order state behind a single mutex. Every
// method takes the lock itself.
type TradeHistory struct {
	mu     sync.Mutex
	assets map[string]*assetOrders
}

// New creates an empty entry for every symbol.
func New(symbols []string) *TradeHistory {
	h := &TradeHistory{assets: make(map[string]*assetOrders, len(symbols))}
	for _, symbol := range symbols {
		h.assets[symbol] = newAssetOrders()
	}
	return h
}

func (h *TradeHistory) Symbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.assets))
	for symbol := range h.assets {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (h *TradeHistory) lookup(symbol string, side core.Side) (*assetOrders, Orders, error) {
	a, ok := h.assets[symbol]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrUnknownAsset, symbol)
	}
	orders, err := a.side(side)
	if err != nil {
		return nil, nil, err
	}
	return a, orders, nil
}

// Insert tracks a newly accepted order.
func (h *TradeHistory) Insert(symbol string, side core.Side, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("order id required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, orders, err := h.lookup(symbol, side)
	if err != nil {
		return err
	}
	if _, ok := orders[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, rec.ID)
	}
	orders[rec.ID] = rec
	return nil
}

// Delete drops an order after a confirmed cancel.
func (h *TradeHistory) Delete(symbol string, side core.Side, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, orders, err := h.lookup(symbol, side)
	if err != nil {
		return false
	}
	if _, ok := orders[id]; !ok {
		return false
	}
	delete(orders, id)
	return true
}

// MarkFilled flags an order the exchange reported done.
func (h *TradeHistory) MarkFilled(symbol string, side core.Side, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, orders, err := h.lookup(symbol, side)
	if err != nil {
		return false
	}
	rec, ok := orders[id]
	if !ok {
		return false
	}
	rec.Filled = true
	orders[id] = rec
	return true
}

// Orders returns a copy of one side's open orders.
func (h *TradeHistory) Orders(symbol string, side core.Side) (Orders, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, orders, err := h.lookup(symbol, side)
	if err != nil {
		return nil, err
	}
	return orders.clone(), nil
}

// RemoveCompleted drops every filled record of one side and returns the side
// as it was before and after.
func (h *TradeHistory) RemoveCompleted(symbol string, side core.Side) (before, after Orders, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, orders, err := h.lookup(symbol, side)
	if err != nil {
		return nil, nil, err
	}
	before = orders.clone()
	after = make(Orders, len(orders))
	for id, rec := range orders {
		if !rec.Filled {
			after[id] = rec
		}
	}
	a.replace(side, after.clone())
	return before, after, nil
}

func (h *TradeHistory) Counts(symbol string) (Counts, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.assets[symbol]
	if !ok {
		return Counts{}, fmt.Errorf("%w: %s", core.ErrUnknownAsset, symbol)
	}
	return Counts{Buy: len(a.buy), Sell: len(a.sell), Deferred: len(a.deferred)}, nil
}

// Defer parks a sell requote that could not be placed this pass.
func (h *TradeHistory) Defer(symbol, id string, price decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.assets[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownAsset, symbol)
	}
	a.deferred[id] = price
	return nil
}

// TakeDeferred returns and clears the parked sell requotes of an asset.
func (h *TradeHistory) TakeDeferred(symbol string) (map[string]decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.assets[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownAsset, symbol)
	}
	out := a.deferred
	a.deferred = make(map[string]decimal.Decimal)
	return out, nil
}
