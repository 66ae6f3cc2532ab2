// Package strategy decides, per asset and per pass, which of our quotes to
// pull and where to place new ones.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"spread-trading/internal/catalog"
	"spread-trading/internal/core"
)

// Trader is driven by the engine once per asset per pass: buy side first,
// then sell side.
type Trader interface {
	BuyAsset(ctx context.Context, entry catalog.AssetEntry, bid core.Quotes) (Result, error)
	SellAsset(ctx context.Context, entry catalog.AssetEntry, ask core.Quotes) (Result, error)
}

// Result summarises one side of one asset for a pass.
type Result struct {
	Side      core.Side
	Filled    int
	Cancelled int
	Placed    []string
	Deferred  int
	Effective decimal.Decimal
}

// Changed reports whether the pass touched the book.
func (r Result) Changed() bool {
	return r.Filled > 0 || r.Cancelled > 0 || len(r.Placed) > 0 || r.Deferred > 0
}
