// Package catalog describes the assets the engine trades and how they are
// chosen and sized.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"spread-trading/internal/core"
)

// AssetEntry is immutable for a trading session.
type AssetEntry struct {
	Symbol     string          `json:"symbol"`
	Buy        decimal.Decimal `json:"buy"`
	Sell       decimal.Decimal `json:"sell"`
	Quantity   decimal.Decimal `json:"quantity"`
	TradeLimit int             `json:"trade_limit"`
}

func (e AssetEntry) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if e.Buy.Sign() <= 0 || e.Sell.Sign() <= 0 {
		return fmt.Errorf("%s: buy/sell must be > 0", e.Symbol)
	}
	if e.Quantity.Sign() <= 0 {
		return fmt.Errorf("%s: quantity must be > 0", e.Symbol)
	}
	if e.TradeLimit < 1 {
		return fmt.Errorf("%s: trade_limit must be >= 1", e.Symbol)
	}
	return nil
}

// Catalog is the ordered set of tradable assets.
type Catalog struct {
	Assets []AssetEntry `json:"assets"`
}

// New sorts entries by symbol and validates them.
func New(entries []AssetEntry) (Catalog, error) {
	assets := append([]AssetEntry(nil), entries...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	c := Catalog{Assets: assets}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate rejects an empty catalog, duplicate symbols and malformed entries.
// Errors wrap core.ErrInvalidConfig.
func (c Catalog) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("%w: catalog is empty", core.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, e := range c.Assets {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: catalog entry %v", core.ErrInvalidConfig, err)
		}
		if _, ok := seen[e.Symbol]; ok {
			return fmt.Errorf("%w: duplicate catalog symbol %s", core.ErrInvalidConfig, e.Symbol)
		}
		seen[e.Symbol] = struct{}{}
	}
	return nil
}

func (c Catalog) Symbols() []string {
	out := make([]string, 0, len(c.Assets))
	for _, e := range c.Assets {
		out = append(out, e.Symbol)
	}
	return out
}

func (c Catalog) Get(symbol string) (AssetEntry, bool) {
	for _, e := range c.Assets {
		if e.Symbol == symbol {
			return e, true
		}
	}
	return AssetEntry{}, false
}

func (c Catalog) Len() int { return len(c.Assets) }

// Store persists the selected asset list.
type Store interface {
	Load(ctx context.Context) (Catalog, error)
	Save(ctx context.Context, c Catalog) error
}
