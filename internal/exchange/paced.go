package exchange

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"spread-trading/internal/core"
)

// Paced spaces every call to the wrapped exchange by a fixed delay, shared
// across all goroutines using it.
type Paced struct {
	inner   Exchange
	limiter *rate.Limiter
}

func NewPaced(inner Exchange, delay time.Duration) *Paced {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Paced{inner: inner, limiter: rate.NewLimiter(limit, 1)}
}

func (p *Paced) Name() string { return p.inner.Name() }

func (p *Paced) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return core.Depth{}, err
	}
	return p.inner.Depth(ctx, symbol, limit)
}

func (p *Paced) Rules(ctx context.Context, symbol string) (core.Rules, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return core.Rules{}, err
	}
	return p.inner.Rules(ctx, symbol)
}

func (p *Paced) PlaceOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return core.Order{}, err
	}
	return p.inner.PlaceOrder(ctx, order)
}

func (p *Paced) QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderQuery, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return core.OrderQuery{}, err
	}
	return p.inner.QueryOrder(ctx, symbol, orderID)
}

func (p *Paced) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.inner.CancelOrder(ctx, symbol, orderID)
}
