package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Sizer splits a quote budget evenly across assets and picks a lot size per
// asset.
type Sizer struct {
	BaseAmount   decimal.Decimal
	SharePercent decimal.Decimal
	MinNotional  decimal.Decimal
	QtyStep      decimal.Decimal
}

// Size returns the lot size and trade limit for one of n assets quoted at
// buy. The lot's notional is always strictly above MinNotional.
func (s Sizer) Size(n int, buy decimal.Decimal) (decimal.Decimal, int, error) {
	if n < 1 {
		return decimal.Zero, 0, fmt.Errorf("asset count must be >= 1")
	}
	if buy.Sign() <= 0 {
		return decimal.Zero, 0, fmt.Errorf("buy price must be > 0")
	}
	step := s.QtyStep
	if step.Sign() <= 0 {
		step = decimal.New(1, -1)
	}
	funds := s.BaseAmount.Div(decimal.NewFromInt(int64(n))).Floor()
	qty := funds.Div(buy).Mul(s.SharePercent).Div(hundred).Div(step).Round(0).Mul(step)
	if qty.Mul(buy).Cmp(s.MinNotional) <= 0 {
		qty = s.MinNotional.Div(buy).Div(step).Floor().Add(decimal.NewFromInt(1)).Mul(step)
	}
	notional := qty.Mul(buy)
	limit := funds.Div(notional).Floor().IntPart()
	return qty, int(limit), nil
}
