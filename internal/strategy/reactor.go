package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/book"
	"spread-trading/internal/core"
	"spread-trading/internal/events"
	"spread-trading/internal/exchange"
)

type Rule int

const (
	RuleKeep Rule = iota
	// RuleOutbid: the top of book sits above our price. A buy is requoted up
	// to the new best bid; a sell is only ever requoted up, never chased down.
	RuleOutbid
	// RuleOverRival: a buy pays more than one tick over the rival level.
	RuleOverRival
)

// Decision is what Decide wants done with one open order.
type Decision struct {
	ID     string
	Price  decimal.Decimal
	Rule   Rule
	Target decimal.Decimal
}

func (d Decision) Cancel() bool { return d.Rule != RuleKeep }

// Decide classifies every unfilled open order of one side against a single
// depth snapshot. It has no side effects. Decisions follow placement order.
// A sell resting above a falling ask is kept so its ratcheted markup holds.
func Decide(side core.Side, orders book.Orders, current, rival decimal.Decimal) []Decision {
	improved := core.TickIncrement(rival)
	out := make([]Decision, 0, len(orders))
	for _, id := range orders.IDs() {
		rec := orders[id]
		d := Decision{ID: id, Price: rec.Price, Rule: RuleKeep, Target: current}
		switch {
		case rec.Price.Equal(current):
		case rec.Filled:
		case current.GreaterThan(rec.Price):
			d.Rule = RuleOutbid
		case side == core.Buy && core.MoreAggressive(side, rec.Price, improved):
			d.Rule = RuleOverRival
			d.Target = rival
		}
		out = append(out, d)
	}
	return out
}

// Reaction is the outcome of one React call.
type Reaction struct {
	Cancelled int
	Effective decimal.Decimal
}

// Reactor pulls our stale quotes off the book.
type Reactor struct {
	ex   exchange.Exchange
	book *book.TradeHistory
	pub  events.Publisher
	log  *zap.SugaredLogger
	now  func() time.Time
}

func NewReactor(ex exchange.Exchange, h *book.TradeHistory, pub events.Publisher, log *zap.SugaredLogger) *Reactor {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reactor{ex: ex, book: h, pub: pub, log: log, now: time.Now}
}

// React cancels every order Decide marks, but only after the exchange
// confirms the order is still open with nothing executed. Each confirmed
// cancel removes the record; when requotes is non-nil the cancelled id is
// added to it with its requote target. The effective price is the rival when
// any over-rival cancel went through, otherwise the current top.
func (r *Reactor) React(ctx context.Context, symbol string, side core.Side, q core.Quotes, requotes map[string]decimal.Decimal) (Reaction, error) {
	orders, err := r.book.Orders(symbol, side)
	if err != nil {
		return Reaction{}, err
	}
	res := Reaction{Effective: q.Top}
	for _, d := range Decide(side, orders, q.Top, q.Rival) {
		if !d.Cancel() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !r.cancelIfUntouched(ctx, symbol, side, d) {
			continue
		}
		res.Cancelled++
		if d.Rule == RuleOverRival {
			res.Effective = q.Rival
		}
		if requotes != nil {
			requotes[d.ID] = d.Target
		}
	}
	return res, nil
}

func (r *Reactor) cancelIfUntouched(ctx context.Context, symbol string, side core.Side, d Decision) bool {
	st, err := r.ex.QueryOrder(ctx, symbol, d.ID)
	if err != nil {
		logExchangeError(r.log, "order_query_failed", err, "symbol", symbol, "side", side, "order_id", d.ID)
		return false
	}
	if !st.Untouched() {
		r.log.Infow("order_cancel_skipped",
			"symbol", symbol, "side", side, "order_id", d.ID,
			"status", st.Status, "executed_qty", st.ExecutedQty,
		)
		return false
	}
	if err := r.ex.CancelOrder(ctx, symbol, d.ID); err != nil {
		logExchangeError(r.log, "order_cancel_failed", err, "symbol", symbol, "side", side, "order_id", d.ID)
		return false
	}
	r.book.Delete(symbol, side, d.ID)
	r.log.Infow("order_cancelled",
		"symbol", symbol, "side", side, "order_id", d.ID,
		"price", core.FormatPrice(d.Price), "target", core.FormatPrice(d.Target), "rule", d.Rule,
	)
	publish(ctx, r.pub, r.log, events.Event{
		Type:    events.OrderCancelled,
		Symbol:  symbol,
		Side:    side,
		OrderID: d.ID,
		Price:   d.Price,
		Reason:  d.Rule.String(),
		Time:    r.now().UTC(),
	})
	return true
}

func (r Rule) String() string {
	switch r {
	case RuleOutbid:
		return "outbid"
	case RuleOverRival:
		return "over_rival"
	default:
		return "keep"
	}
}

// logExchangeError keeps open circuits at warn so a tripped breaker does not
// flood the error log.
func logExchangeError(log *zap.SugaredLogger, event string, err error, kv ...any) {
	kv = append(kv, "err", err)
	if errors.Is(err, core.ErrCircuitOpen) {
		log.Warnw(event, kv...)
		return
	}
	log.Errorw(event, kv...)
}

func publish(ctx context.Context, pub events.Publisher, log *zap.SugaredLogger, ev events.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warnw("event_publish_failed", "type", ev.Type, "symbol", ev.Symbol, "err", err)
	}
}
