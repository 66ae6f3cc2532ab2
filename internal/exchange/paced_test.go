package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-trading/internal/core"
)

type countingExchange struct {
	calls []time.Time
}

func (c *countingExchange) Name() string { return "counting" }

func (c *countingExchange) Depth(context.Context, string, int) (core.Depth, error) {
	c.calls = append(c.calls, time.Now())
	return core.Depth{}, nil
}

func (c *countingExchange) Rules(context.Context, string) (core.Rules, error) {
	c.calls = append(c.calls, time.Now())
	return core.Rules{}, nil
}

func (c *countingExchange) PlaceOrder(_ context.Context, o core.Order) (core.Order, error) {
	c.calls = append(c.calls, time.Now())
	return o, nil
}

func (c *countingExchange) QueryOrder(context.Context, string, string) (core.OrderQuery, error) {
	c.calls = append(c.calls, time.Now())
	return core.OrderQuery{}, nil
}

func (c *countingExchange) CancelOrder(context.Context, string, string) error {
	c.calls = append(c.calls, time.Now())
	return nil
}

func TestPacedSpacesCalls(t *testing.T) {
	inner := &countingExchange{}
	p := NewPaced(inner, 20*time.Millisecond)
	ctx := context.Background()

	_, err := p.Depth(ctx, "btcinr", 5)
	require.NoError(t, err)
	_, err = p.QueryOrder(ctx, "btcinr", "1")
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, "btcinr", "1"))

	require.Len(t, inner.calls, 3)
	assert.GreaterOrEqual(t, inner.calls[2].Sub(inner.calls[0]), 30*time.Millisecond)
	assert.Equal(t, "counting", p.Name())
}

func TestPacedHonoursContext(t *testing.T) {
	inner := &countingExchange{}
	p := NewPaced(inner, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Depth(ctx, "btcinr", 5)
	require.NoError(t, err)
	cancel()
	_, err = p.Depth(ctx, "btcinr", 5)
	assert.Error(t, err)
	assert.Len(t, inner.calls, 1)
}

type fixedDepth struct{ d core.Depth }

func (f fixedDepth) Depth(context.Context, string, int) (core.Depth, error) { return f.d, nil }

func TestWithDepthOverridesOnlyDepth(t *testing.T) {
	inner := &countingExchange{}
	ex := WithDepth(inner, fixedDepth{d: core.Depth{Symbol: "stream"}})
	ctx := context.Background()

	d, err := ex.Depth(ctx, "btcinr", 5)
	require.NoError(t, err)
	assert.Equal(t, "stream", d.Symbol)
	assert.Empty(t, inner.calls)

	_, err = ex.QueryOrder(ctx, "btcinr", "1")
	require.NoError(t, err)
	assert.Len(t, inner.calls, 1)

	assert.Same(t, inner, WithDepth(inner, nil))
}
