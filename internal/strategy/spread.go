package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/book"
	"spread-trading/internal/catalog"
	"spread-trading/internal/core"
	"spread-trading/internal/events"
	"spread-trading/internal/exchange"
)

type Options struct {
	// SellMarkup is added to a survivor's seed price when the market sits
	// below it.
	SellMarkup decimal.Decimal
	OrderType  core.OrderType
}

// Spread manages the order lifecycle of every catalog asset.
type Spread struct {
	ex      exchange.Exchange
	book    *book.TradeHistory
	reactor *Reactor
	pub     events.Publisher
	log     *zap.SugaredLogger
	opts    Options
	now     func() time.Time

	rulesMu sync.Mutex
	rules   map[string]core.Rules
}

func NewSpread(ex exchange.Exchange, h *book.TradeHistory, pub events.Publisher, opts Options, log *zap.SugaredLogger) *Spread {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.SellMarkup.Sign() <= 0 {
		opts.SellMarkup = decimal.RequireFromString("0.02")
	}
	if opts.OrderType == "" {
		opts.OrderType = core.Limit
	}
	return &Spread{
		ex:      ex,
		book:    h,
		reactor: NewReactor(ex, h, pub, log),
		pub:     pub,
		log:     log,
		opts:    opts,
		now:     time.Now,
		rules:   make(map[string]core.Rules),
	}
}

// BuyAsset reconciles filled sells, pulls stale buys, then quotes one new
// buy at the effective price while the asset has a free slot. Slots held by
// deferred sells are not free.
func (s *Spread) BuyAsset(ctx context.Context, entry catalog.AssetEntry, bid core.Quotes) (Result, error) {
	res := Result{Side: core.Buy}
	if err := s.refreshFills(ctx, entry.Symbol, core.Sell); err != nil {
		return res, err
	}
	before, after, err := s.book.RemoveCompleted(entry.Symbol, core.Sell)
	if err != nil {
		return res, err
	}
	res.Filled = len(book.Removed(before, after))

	reaction, err := s.reactor.React(ctx, entry.Symbol, core.Buy, bid, nil)
	if err != nil {
		return res, err
	}
	res.Cancelled = reaction.Cancelled
	res.Effective = reaction.Effective

	counts, err := s.book.Counts(entry.Symbol)
	if err != nil {
		return res, err
	}
	if counts.Committed() >= entry.TradeLimit {
		s.log.Debugw("buy_skipped_trade_limit", "symbol", entry.Symbol, "open", counts.Total(), "deferred", counts.Deferred, "trade_limit", entry.TradeLimit)
		return res, nil
	}
	id, err := s.place(ctx, entry, core.Buy, reaction.Effective)
	if err != nil {
		// placement failures are soft; only cancellation propagates
		return res, ctx.Err()
	}
	res.Placed = append(res.Placed, id)
	return res, nil
}

type survivor struct {
	id   string
	seed decimal.Decimal
}

// SellAsset turns filled buys, cancelled sells and previously deferred
// requotes into sell orders priced by the profit ratchet. Survivors that
// cannot be placed are deferred to the next pass.
func (s *Spread) SellAsset(ctx context.Context, entry catalog.AssetEntry, ask core.Quotes) (Result, error) {
	res := Result{Side: core.Sell, Effective: ask.Top}
	if err := s.refreshFills(ctx, entry.Symbol, core.Buy); err != nil {
		return res, err
	}
	before, after, err := s.book.RemoveCompleted(entry.Symbol, core.Buy)
	if err != nil {
		return res, err
	}
	filled := book.Removed(before, after)
	res.Filled = len(filled)

	requotes := make(map[string]decimal.Decimal)
	reaction, err := s.reactor.React(ctx, entry.Symbol, core.Sell, ask, requotes)
	res.Cancelled = reaction.Cancelled
	if err != nil {
		s.deferAll(entry.Symbol, survivorsOf(filled, requotes, nil))
		return res, err
	}

	deferred, err := s.book.TakeDeferred(entry.Symbol)
	if err != nil {
		return res, err
	}
	pending := survivorsOf(filled, requotes, deferred)
	for i, sv := range pending {
		if ctx.Err() != nil {
			s.deferAll(entry.Symbol, pending[i:])
			return res, ctx.Err()
		}
		counts, err := s.book.Counts(entry.Symbol)
		if err != nil {
			return res, err
		}
		if counts.Total() >= entry.TradeLimit {
			s.deferSell(entry.Symbol, sv, "trade_limit")
			res.Deferred++
			continue
		}
		price := core.Ratchet(ask.Top, sv.seed, s.opts.SellMarkup)
		id, err := s.place(ctx, entry, core.Sell, price)
		if err != nil {
			s.deferSell(entry.Symbol, sv, "place_failed")
			res.Deferred++
			continue
		}
		res.Placed = append(res.Placed, id)
	}
	return res, nil
}

// survivorsOf merges the three survivor sources in a stable order. A later
// source never overrides an earlier one for the same id.
func survivorsOf(filled book.Orders, requotes, deferred map[string]decimal.Decimal) []survivor {
	seen := make(map[string]struct{})
	var out []survivor
	add := func(id string, seed decimal.Decimal) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, survivor{id: id, seed: seed})
	}
	for _, id := range filled.IDs() {
		add(id, filled[id].Price)
	}
	for _, id := range sortedKeys(requotes) {
		add(id, requotes[id])
	}
	for _, id := range sortedKeys(deferred) {
		add(id, deferred[id])
	}
	return out
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Spread) deferAll(symbol string, svs []survivor) {
	for _, sv := range svs {
		s.deferSell(symbol, sv, "interrupted")
	}
}

func (s *Spread) deferSell(symbol string, sv survivor, reason string) {
	if err := s.book.Defer(symbol, sv.id, sv.seed); err != nil {
		s.log.Errorw("sell_defer_failed", "symbol", symbol, "survivor", sv.id, "err", err)
		return
	}
	s.log.Infow("sell_deferred", "symbol", symbol, "survivor", sv.id, "seed", core.FormatPrice(sv.seed), "reason", reason)
	publish(context.Background(), s.pub, s.log, events.Event{
		Type:    events.SellDeferred,
		Symbol:  symbol,
		Side:    core.Sell,
		OrderID: sv.id,
		Price:   sv.seed,
		Reason:  reason,
		Time:    s.now().UTC(),
	})
}

// refreshFills asks the exchange about every open order of one side of one
// asset. Done orders are flagged for RemoveCompleted; orders cancelled
// outside the engine are dropped. Query failures leave the record as is.
func (s *Spread) refreshFills(ctx context.Context, symbol string, side core.Side) error {
	orders, err := s.book.Orders(symbol, side)
	if err != nil {
		return err
	}
	for _, id := range orders.IDs() {
		rec := orders[id]
		if rec.Filled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := s.ex.QueryOrder(ctx, symbol, id)
		if err != nil {
			logExchangeError(s.log, "order_query_failed", err, "symbol", symbol, "side", side, "order_id", id)
			continue
		}
		switch st.Status {
		case core.OrderDone:
			if s.book.MarkFilled(symbol, side, id) {
				s.log.Infow("order_filled", "symbol", symbol, "side", side, "order_id", id, "price", core.FormatPrice(rec.Price))
				publish(ctx, s.pub, s.log, events.Event{
					Type:     events.OrderFilled,
					Symbol:   symbol,
					Side:     side,
					OrderID:  id,
					Price:    rec.Price,
					Quantity: st.ExecutedQty,
					Time:     s.now().UTC(),
				})
			}
		case core.OrderCancel:
			if s.book.Delete(symbol, side, id) {
				s.log.Warnw("order_cancelled_externally", "symbol", symbol, "side", side, "order_id", id, "executed_qty", st.ExecutedQty)
				publish(ctx, s.pub, s.log, events.Event{
					Type:     events.OrderCancelled,
					Symbol:   symbol,
					Side:     side,
					OrderID:  id,
					Price:    rec.Price,
					Quantity: st.ExecutedQty,
					Reason:   "external",
					Time:     s.now().UTC(),
				})
			}
		}
	}
	return nil
}

// place submits one order and tracks it on acceptance. Rejections are
// logged and published; the caller decides what a failure means.
func (s *Spread) place(ctx context.Context, entry catalog.AssetEntry, side core.Side, price decimal.Decimal) (string, error) {
	order := core.Order{
		Symbol: entry.Symbol,
		Side:   side,
		Type:   s.opts.OrderType,
		Price:  price,
		Qty:    entry.Quantity,
	}
	rules, err := s.rulesFor(ctx, entry.Symbol)
	if err == nil {
		order, err = core.NormalizeOrder(order, rules)
	}
	if err == nil {
		var placed core.Order
		placed, err = s.ex.PlaceOrder(ctx, order)
		if err == nil && placed.ID == "" {
			err = fmt.Errorf("%w: exchange returned no order id", core.ErrOrderRejected)
		}
		if err == nil {
			return s.track(ctx, entry.Symbol, order, placed)
		}
	}
	if errors.Is(err, core.ErrInvalidOrder) || errors.Is(err, core.ErrBelowMinQty) || errors.Is(err, core.ErrBelowMinNotional) {
		s.log.Warnw("order_rejected_locally", "symbol", entry.Symbol, "side", side, "price", core.FormatPrice(price), "qty", entry.Quantity, "err", err)
	} else {
		logExchangeError(s.log, "order_place_failed", err, "symbol", entry.Symbol, "side", side, "price", core.FormatPrice(price), "qty", entry.Quantity)
	}
	publish(ctx, s.pub, s.log, events.Event{
		Type:     events.OrderRejected,
		Symbol:   entry.Symbol,
		Side:     side,
		Price:    order.Price,
		Quantity: order.Qty,
		Reason:   err.Error(),
		Time:     s.now().UTC(),
	})
	return "", err
}

func (s *Spread) track(ctx context.Context, symbol string, sent, placed core.Order) (string, error) {
	price := placed.Price
	if price.Sign() <= 0 {
		price = sent.Price
	}
	rec := book.Record{ID: placed.ID, Price: price, PlacedAt: s.now().UTC()}
	if err := s.book.Insert(symbol, sent.Side, rec); err != nil {
		s.log.Errorw("order_track_failed", "symbol", symbol, "side", sent.Side, "order_id", placed.ID, "err", err)
		return "", err
	}
	s.log.Infow("order_placed", "symbol", symbol, "side", sent.Side, "order_id", placed.ID, "price", core.FormatPrice(price), "qty", sent.Qty)
	publish(ctx, s.pub, s.log, events.Event{
		Type:     events.OrderPlaced,
		Symbol:   symbol,
		Side:     sent.Side,
		OrderID:  placed.ID,
		Price:    price,
		Quantity: sent.Qty,
		Time:     rec.PlacedAt,
	})
	return placed.ID, nil
}

func (s *Spread) rulesFor(ctx context.Context, symbol string) (core.Rules, error) {
	s.rulesMu.Lock()
	r, ok := s.rules[symbol]
	s.rulesMu.Unlock()
	if ok {
		return r, nil
	}
	r, err := s.ex.Rules(ctx, symbol)
	if err != nil {
		return core.Rules{}, err
	}
	s.rulesMu.Lock()
	s.rules[symbol] = r
	s.rulesMu.Unlock()
	return r, nil
}
