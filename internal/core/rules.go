package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrBelowMinQty      = errors.New("qty below min")
	ErrBelowMinNotional = errors.New("notional below min")
)

// NormalizeOrder snaps price and quantity onto the symbol's tick and lot steps. Buy prices
// round down and sell prices round up so a snapped quote never gives away
// more than the unsnapped one.
func NormalizeOrder(order Order, rules Rules) (Order, error) {
	if !order.Side.Valid() {
		return order, fmt.Errorf("%w: side %q", ErrInvalidOrder, order.Side)
	}
	if order.Qty.Sign() <= 0 {
		return order, ErrInvalidOrder
	}
	if rules.QtyStep.Sign() > 0 {
		order.Qty = RoundDown(order.Qty, rules.QtyStep)
	}
	if order.Qty.Sign() <= 0 {
		return order, ErrInvalidOrder
	}
	if rules.MinQty.Sign() > 0 && order.Qty.Cmp(rules.MinQty) < 0 {
		return order, ErrBelowMinQty
	}
	if order.Price.Sign() <= 0 {
		return order, ErrInvalidOrder
	}
	if rules.PriceTick.Sign() > 0 {
		if order.Side == Sell {
			order.Price = RoundUp(order.Price, rules.PriceTick)
		} else {
			order.Price = RoundDown(order.Price, rules.PriceTick)
		}
	}
	if order.Price.Sign() <= 0 {
		return order, ErrInvalidOrder
	}
	if order.Type == StopLimit && order.StopPrice.Sign() <= 0 {
		return order, fmt.Errorf("%w: stop_limit without stop price", ErrInvalidOrder)
	}
	if rules.MinNotional.Sign() > 0 {
		notional := order.Price.Mul(order.Qty)
		if notional.Cmp(rules.MinNotional) < 0 {
			return order, ErrBelowMinNotional
		}
	}
	return order, nil
}

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

func RoundUp(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	return value.Div(step).Ceil().Mul(step)
}
