package exchange

import (
	"context"

	"spread-trading/internal/core"
)

// DepthSource serves order book snapshots.
type DepthSource interface {
	Depth(ctx context.Context, symbol string, limit int) (core.Depth, error)
}

// Exchange is everything the trading core needs from a venue. Every non
// success response surfaces as an error.
type Exchange interface {
	DepthSource
	Name() string
	Rules(ctx context.Context, symbol string) (core.Rules, error)
	PlaceOrder(ctx context.Context, order core.Order) (core.Order, error)
	QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderQuery, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

type depthOverride struct {
	Exchange
	depth DepthSource
}

func (d depthOverride) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	return d.depth.Depth(ctx, symbol, limit)
}

// WithDepth serves depth from src and everything else from ex. A nil src
// returns ex unchanged.
func WithDepth(ex Exchange, src DepthSource) Exchange {
	if src == nil {
		return ex
	}
	return depthOverride{Exchange: ex, depth: src}
}
