package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var wholeIncrement = decimal.New(1, -1)

// ParsePrice parses an exchange price string, keeping its written precision.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrBadPrice)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadPrice, s)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %q not positive", ErrBadPrice, s)
	}
	return d, nil
}

// TickIncrement adds one unit of the price's last written decimal place, or
// 0.1 when the price has no fractional part. "0.0099" becomes "0.0100" and
// "12.30" becomes "12.31".
func TickIncrement(price decimal.Decimal) decimal.Decimal {
	exp := price.Exponent()
	if exp >= 0 {
		return price.Add(wholeIncrement)
	}
	return price.Add(decimal.New(1, exp))
}

// TickIncrementString is TickIncrement over the exchange's string form.
func TickIncrementString(s string) (string, error) {
	price, err := ParsePrice(s)
	if err != nil {
		return "", err
	}
	return FormatPrice(TickIncrement(price)), nil
}

// FormatPrice renders a price with every fractional digit it carries,
// including trailing zeros.
func FormatPrice(price decimal.Decimal) string {
	if exp := price.Exponent(); exp < 0 {
		return price.StringFixed(-exp)
	}
	return price.String()
}

// Ratchet prices a sell requote. When the market is at or above the recorded
// price the quote snaps to the market, otherwise it holds the recorded price
// plus markup.
func Ratchet(current, recorded, markup decimal.Decimal) decimal.Decimal {
	if current.Cmp(recorded) >= 0 {
		return current
	}
	return recorded.Add(recorded.Mul(markup))
}

// MoreAggressive reports whether price a would trade before price b on side.
func MoreAggressive(side Side, a, b decimal.Decimal) bool {
	if side == Sell {
		return a.Cmp(b) < 0
	}
	return a.Cmp(b) > 0
}
