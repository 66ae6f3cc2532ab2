package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

// OrderStatus mirrors the exchange's order lifecycle vocabulary.
type OrderStatus string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

const (
	Limit     OrderType = "limit"
	StopLimit OrderType = "stop_limit"
)

const (
	OrderIdle   OrderStatus = "idle"
	OrderWait   OrderStatus = "wait"
	OrderDone   OrderStatus = "done"
	OrderCancel OrderStatus = "cancel"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Terminal reports whether no further fills can happen for the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderDone || s == OrderCancel
}

type Order struct {
	ID        string
	ClientID  string
	Symbol    string
	Side      Side
	Type      OrderType
	Price     decimal.Decimal
	StopPrice decimal.Decimal
	Qty       decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
}

// OrderQuery is the live exchange view of a single order.
type OrderQuery struct {
	ID          string
	Symbol      string
	Side        Side
	Price       decimal.Decimal
	OrigQty     decimal.Decimal
	ExecutedQty decimal.Decimal
	Status      OrderStatus
	UpdatedAt   time.Time
}

// Untouched reports whether the order is still open with nothing executed.
func (q OrderQuery) Untouched() bool {
	return q.Status != OrderDone && q.ExecutedQty.IsZero()
}

type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

type Depth struct {
	Symbol string
	Bids   []Level
	Asks   []Level
	Time   time.Time
}

// Quotes holds the two best price levels for one side of a depth snapshot.
type Quotes struct {
	Top   decimal.Decimal
	Rival decimal.Decimal
}

// BestQuotes extracts top and rival prices for both sides. The depth must
// carry at least two levels per side.
func (d Depth) BestQuotes() (bid Quotes, ask Quotes, err error) {
	if len(d.Bids) < 2 || len(d.Asks) < 2 {
		return Quotes{}, Quotes{}, ErrDepthIncomplete
	}
	for _, lvl := range []Level{d.Bids[0], d.Bids[1], d.Asks[0], d.Asks[1]} {
		if lvl.Price.Sign() <= 0 {
			return Quotes{}, Quotes{}, ErrBadPrice
		}
	}
	bid = Quotes{Top: d.Bids[0].Price, Rival: d.Bids[1].Price}
	ask = Quotes{Top: d.Asks[0].Price, Rival: d.Asks[1].Price}
	return bid, ask, nil
}

type Rules struct {
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	PriceTick   decimal.Decimal
	QtyStep     decimal.Decimal
}
