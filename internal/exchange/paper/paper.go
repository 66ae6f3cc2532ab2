// Package paper simulates order handling over a live public order book so
// the engine can run end to end without credentials.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/core"
	"spread-trading/internal/exchange"
)

type RulesSource interface {
	Rules(ctx context.Context, symbol string) (core.Rules, error)
}

type order struct {
	core.Order
	executed decimal.Decimal
	updated  time.Time
}

// Exchange fills a resting order once the most recently observed book
// trades through it: best ask at or below a buy, best bid at or above a sell.
type Exchange struct {
	depth exchange.DepthSource
	rules RulesSource
	log   *zap.SugaredLogger
	now   func() time.Time

	mu     sync.Mutex
	orders map[string]*order
	books  map[string]core.Depth
}

// New uses rules for symbol filters when it is non-nil; otherwise orders
// are accepted unsnapped.
func New(depth exchange.DepthSource, rules RulesSource, log *zap.SugaredLogger) *Exchange {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Exchange{
		depth:  depth,
		rules:  rules,
		log:    log,
		now:    time.Now,
		orders: make(map[string]*order),
		books:  make(map[string]core.Depth),
	}
}

func (e *Exchange) Name() string { return "paper" }

func (e *Exchange) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	d, err := e.depth.Depth(ctx, symbol, limit)
	if err != nil {
		return core.Depth{}, err
	}
	e.mu.Lock()
	e.books[symbol] = d
	e.mu.Unlock()
	return d, nil
}

func (e *Exchange) Rules(ctx context.Context, symbol string) (core.Rules, error) {
	if e.rules == nil {
		return core.Rules{}, nil
	}
	return e.rules.Rules(ctx, symbol)
}

func (e *Exchange) PlaceOrder(_ context.Context, o core.Order) (core.Order, error) {
	if !o.Side.Valid() || o.Price.Sign() <= 0 || o.Qty.Sign() <= 0 {
		return core.Order{}, fmt.Errorf("%w: paper order %s %s@%s", core.ErrInvalidOrder, o.Side, o.Qty, o.Price)
	}
	now := e.now().UTC()
	o.ID = uuid.NewString()
	o.Status = core.OrderWait
	o.CreatedAt = now

	e.mu.Lock()
	e.orders[o.ID] = &order{Order: o, executed: decimal.Zero, updated: now}
	e.mu.Unlock()
	e.log.Debugw("paper_order_accepted", "symbol", o.Symbol, "side", o.Side, "price", core.FormatPrice(o.Price), "qty", o.Qty, "id", o.ID)
	return o, nil
}

func (e *Exchange) QueryOrder(_ context.Context, symbol, orderID string) (core.OrderQuery, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok || o.Symbol != symbol {
		return core.OrderQuery{}, fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}
	if o.Status == core.OrderWait && crossed(o.Side, o.Price, e.books[symbol]) {
		o.Status = core.OrderDone
		o.executed = o.Qty
		o.updated = e.now().UTC()
	}
	return core.OrderQuery{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Price:       o.Price,
		OrigQty:     o.Qty,
		ExecutedQty: o.executed,
		Status:      o.Status,
		UpdatedAt:   o.updated,
	}, nil
}

func (e *Exchange) CancelOrder(_ context.Context, symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok || o.Symbol != symbol || o.Status != core.OrderWait {
		return fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}
	o.Status = core.OrderCancel
	o.updated = e.now().UTC()
	return nil
}

// Open returns the number of resting orders.
func (e *Exchange) Open() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, o := range e.orders {
		if o.Status == core.OrderWait {
			n++
		}
	}
	return n
}

func crossed(side core.Side, price decimal.Decimal, book core.Depth) bool {
	switch side {
	case core.Buy:
		return len(book.Asks) > 0 && book.Asks[0].Price.Cmp(price) <= 0
	case core.Sell:
		return len(book.Bids) > 0 && book.Bids[0].Price.Cmp(price) >= 0
	}
	return false
}
