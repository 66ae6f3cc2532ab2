package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-trading/internal/core"
)

type scriptedDepth struct {
	books []core.Depth
	i     int
}

func (s *scriptedDepth) Depth(context.Context, string, int) (core.Depth, error) {
	d := s.books[s.i]
	if s.i < len(s.books)-1 {
		s.i++
	}
	return d, nil
}

func book(bid, ask string) core.Depth {
	lvl := func(p string) core.Level {
		return core.Level{Price: decimal.RequireFromString(p), Qty: decimal.NewFromInt(1)}
	}
	return core.Depth{
		Symbol: "btcinr",
		Bids:   []core.Level{lvl(bid), lvl(bid)},
		Asks:   []core.Level{lvl(ask), lvl(ask)},
	}
}

func TestPaperFillsWhenBookCrosses(t *testing.T) {
	ctx := context.Background()
	src := &scriptedDepth{books: []core.Depth{book("99", "101"), book("98", "100")}}
	ex := New(src, nil, nil)

	_, err := ex.Depth(ctx, "btcinr", 5)
	require.NoError(t, err)
	placed, err := ex.PlaceOrder(ctx, core.Order{Symbol: "btcinr", Side: core.Buy, Type: core.Limit, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.NotEmpty(t, placed.ID)
	assert.Equal(t, core.OrderWait, placed.Status)

	q, err := ex.QueryOrder(ctx, "btcinr", placed.ID)
	require.NoError(t, err)
	assert.True(t, q.Untouched())

	_, err = ex.Depth(ctx, "btcinr", 5)
	require.NoError(t, err)
	q, err = ex.QueryOrder(ctx, "btcinr", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderDone, q.Status)
	assert.True(t, q.ExecutedQty.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 0, ex.Open())

	err = ex.CancelOrder(ctx, "btcinr", placed.ID)
	assert.True(t, errors.Is(err, core.ErrOrderNotFound))
}

func TestPaperSellFillsOnBid(t *testing.T) {
	ctx := context.Background()
	ex := New(&scriptedDepth{books: []core.Depth{book("105", "106")}}, nil, nil)
	_, err := ex.Depth(ctx, "btcinr", 5)
	require.NoError(t, err)
	placed, err := ex.PlaceOrder(ctx, core.Order{Symbol: "btcinr", Side: core.Sell, Price: decimal.NewFromInt(104), Qty: decimal.NewFromInt(1)})
	require.NoError(t, err)
	q, err := ex.QueryOrder(ctx, "btcinr", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderDone, q.Status)
}

func TestPaperCancel(t *testing.T) {
	ctx := context.Background()
	ex := New(&scriptedDepth{books: []core.Depth{book("99", "101")}}, nil, nil)
	placed, err := ex.PlaceOrder(ctx, core.Order{Symbol: "btcinr", Side: core.Buy, Price: decimal.NewFromInt(90), Qty: decimal.NewFromInt(1)})
	require.NoError(t, err)

	require.NoError(t, ex.CancelOrder(ctx, "btcinr", placed.ID))
	q, err := ex.QueryOrder(ctx, "btcinr", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderCancel, q.Status)

	assert.True(t, errors.Is(ex.CancelOrder(ctx, "btcinr", placed.ID), core.ErrOrderNotFound))
	assert.True(t, errors.Is(ex.CancelOrder(ctx, "btcinr", "missing"), core.ErrOrderNotFound))
	_, err = ex.QueryOrder(ctx, "ethinr", placed.ID)
	assert.True(t, errors.Is(err, core.ErrOrderNotFound))
}

func TestPaperRejectsInvalidOrder(t *testing.T) {
	ex := New(&scriptedDepth{books: []core.Depth{book("1", "2")}}, nil, nil)
	_, err := ex.PlaceOrder(context.Background(), core.Order{Symbol: "btcinr", Side: core.Buy, Price: decimal.Zero, Qty: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, core.ErrInvalidOrder))
}
