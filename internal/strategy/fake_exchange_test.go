package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"spread-trading/internal/core"
)

type fakeExchange struct {
	mu       sync.Mutex
	nextID   int
	placed   []core.Order
	queried  []string
	canceled []string
	status   map[string]core.OrderQuery

	placeErr  error
	cancelErr error
	rules     core.Rules
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{status: make(map[string]core.OrderQuery)}
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Depth(context.Context, string, int) (core.Depth, error) {
	return core.Depth{}, nil
}

func (f *fakeExchange) Rules(context.Context, string) (core.Rules, error) { return f.rules, nil }

func (f *fakeExchange) PlaceOrder(_ context.Context, o core.Order) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return core.Order{}, f.placeErr
	}
	f.nextID++
	o.ID = fmt.Sprintf("o-%d", f.nextID)
	o.Status = core.OrderWait
	f.placed = append(f.placed, o)
	f.status[o.ID] = core.OrderQuery{ID: o.ID, Symbol: o.Symbol, Side: o.Side, Price: o.Price, OrigQty: o.Qty, ExecutedQty: decimal.Zero, Status: core.OrderWait}
	return o, nil
}

func (f *fakeExchange) QueryOrder(_ context.Context, _ string, id string) (core.OrderQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, id)
	q, ok := f.status[id]
	if !ok {
		return core.OrderQuery{}, core.ErrOrderNotFound
	}
	return q, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	q := f.status[id]
	q.Status = core.OrderCancel
	f.status[id] = q
	return nil
}

// fill marks an order fully executed.
func (f *fakeExchange) fill(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.status[id]
	q.Status = core.OrderDone
	q.ExecutedQty = q.OrigQty
	f.status[id] = q
}

func (f *fakeExchange) setStatus(id string, status core.OrderStatus, executed string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.status[id]
	q.ID = id
	q.Status = status
	q.ExecutedQty = decimal.RequireFromString(executed)
	f.status[id] = q
}
