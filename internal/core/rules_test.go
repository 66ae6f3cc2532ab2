package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeOrderBuyRoundsPriceDown(t *testing.T) {
	order := Order{
		Symbol: "btcinr",
		Side:   Buy,
		Type:   Limit,
		Price:  decimal.RequireFromString("100.037"),
		Qty:    decimal.RequireFromString("0.123456"),
	}
	rules := Rules{
		MinQty:      decimal.RequireFromString("0.01"),
		MinNotional: decimal.RequireFromString("10"),
		PriceTick:   decimal.RequireFromString("0.01"),
		QtyStep:     decimal.RequireFromString("0.001"),
	}

	got, err := NormalizeOrder(order, rules)
	if err != nil {
		t.Fatalf("NormalizeOrder() error = %v", err)
	}
	if !got.Price.Equal(decimal.RequireFromString("100.03")) {
		t.Fatalf("unexpected rounded price: %s", got.Price)
	}
	if !got.Qty.Equal(decimal.RequireFromString("0.123")) {
		t.Fatalf("unexpected rounded qty: %s", got.Qty)
	}
}

func TestNormalizeOrderSellRoundsPriceUp(t *testing.T) {
	order := Order{
		Symbol: "btcinr",
		Side:   Sell,
		Type:   Limit,
		Price:  decimal.RequireFromString("102.0306"),
		Qty:    decimal.RequireFromString("1"),
	}
	got, err := NormalizeOrder(order, Rules{PriceTick: decimal.RequireFromString("0.01")})
	if err != nil {
		t.Fatalf("NormalizeOrder() error = %v", err)
	}
	if !got.Price.Equal(decimal.RequireFromString("102.04")) {
		t.Fatalf("unexpected rounded price: %s", got.Price)
	}
}

func TestNormalizeOrderBelowMinQty(t *testing.T) {
	order := Order{
		Symbol: "btcinr",
		Side:   Buy,
		Type:   Limit,
		Price:  decimal.RequireFromString("100"),
		Qty:    decimal.RequireFromString("0.009"),
	}
	_, err := NormalizeOrder(order, Rules{MinQty: decimal.RequireFromString("0.01")})
	if !errors.Is(err, ErrBelowMinQty) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrBelowMinQty)
	}
}

func TestNormalizeOrderBelowMinNotional(t *testing.T) {
	order := Order{
		Symbol: "btcinr",
		Side:   Buy,
		Type:   Limit,
		Price:  decimal.RequireFromString("100"),
		Qty:    decimal.RequireFromString("0.05"),
	}
	_, err := NormalizeOrder(order, Rules{MinNotional: decimal.RequireFromString("60")})
	if !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrBelowMinNotional)
	}
}

func TestNormalizeOrderRejectsUnknownSide(t *testing.T) {
	order := Order{
		Symbol: "btcinr",
		Side:   Side("hold"),
		Type:   Limit,
		Price:  decimal.RequireFromString("100"),
		Qty:    decimal.RequireFromString("1"),
	}
	_, err := NormalizeOrder(order, Rules{})
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrInvalidOrder)
	}
}

func TestNormalizeOrderStopLimitNeedsStopPrice(t *testing.T) {
	order := Order{
		Symbol: "btcinr",
		Side:   Sell,
		Type:   StopLimit,
		Price:  decimal.RequireFromString("100"),
		Qty:    decimal.RequireFromString("1"),
	}
	_, err := NormalizeOrder(order, Rules{})
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrInvalidOrder)
	}
}
