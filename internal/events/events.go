// Package events carries order lifecycle notifications out of the trading
// core.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"spread-trading/internal/core"
)

type Type string

const (
	OrderPlaced    Type = "order_placed"
	OrderCancelled Type = "order_cancelled"
	OrderFilled    Type = "order_filled"
	OrderRejected  Type = "order_rejected"
	SellDeferred   Type = "sell_deferred"
)

type Event struct {
	Type     Type            `json:"type"`
	Symbol   string          `json:"symbol"`
	Side     core.Side       `json:"side"`
	OrderID  string          `json:"order_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason,omitempty"`
	Time     time.Time       `json:"time"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout delivers every event to all publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
