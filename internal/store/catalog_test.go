package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-trading/internal/catalog"
	"spread-trading/internal/config"
	"spread-trading/internal/core"
)

func sampleCatalog(t *testing.T) catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.AssetEntry{
		{Symbol: "xrpinr", Buy: decimal.RequireFromString("50.10"), Sell: decimal.RequireFromString("50.30"), Quantity: decimal.RequireFromString("1.2"), TradeLimit: 4},
		{Symbol: "btcinr", Buy: decimal.RequireFromString("3150000"), Sell: decimal.RequireFromString("3160000.5"), Quantity: decimal.RequireFromString("0.0001"), TradeLimit: 2},
	})
	require.NoError(t, err)
	return c
}

func assertSameCatalog(t *testing.T, want, got catalog.Catalog) {
	t.Helper()
	require.Equal(t, want.Symbols(), got.Symbols())
	for i := range want.Assets {
		w, g := want.Assets[i], got.Assets[i]
		assert.True(t, w.Buy.Equal(g.Buy), "%s buy %s != %s", w.Symbol, w.Buy, g.Buy)
		assert.True(t, w.Sell.Equal(g.Sell), "%s sell", w.Symbol)
		assert.True(t, w.Quantity.Equal(g.Quantity), "%s qty", w.Symbol)
		assert.Equal(t, w.TradeLimit, g.TradeLimit)
	}
}

func TestFileCatalogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.yaml")
	fc := NewFileCatalog(path, nil)
	want := sampleCatalog(t)

	require.NoError(t, fc.Save(context.Background(), want))
	got, err := fc.Load(context.Background())
	require.NoError(t, err)
	assertSameCatalog(t, want, got)
}

func TestFileCatalogKeepsWrittenPrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "assets:\n  - symbol: xrpinr\n    buy: 50.10\n    sell: \"50.30\"\n    quantity: 1\n    trade_limit: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := NewFileCatalog(path, nil).Load(context.Background())
	require.NoError(t, err)
	e, ok := got.Get("xrpinr")
	require.True(t, ok)
	assert.Equal(t, "50.10", core.FormatPrice(e.Buy))
	assert.Equal(t, "50.31", core.FormatPrice(core.TickIncrement(e.Sell)))
}

func TestFileCatalogLoadErrorsAreConfigErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileCatalog(filepath.Join(dir, "missing.yaml"), nil).Load(context.Background())
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("assets:\n  - symbol: a\n    buy: 1\n    sell: 1\n    quantity: 1\n    trade_limit: 0\n"), 0o644))
	_, err = NewFileCatalog(bad, nil).Load(context.Background())
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("assets:\n  - symbol: a\n    price: 1\n"), 0o644))
	_, err = NewFileCatalog(unknown, nil).Load(context.Background())
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestPebbleCatalogSaveReplaces(t *testing.T) {
	pc, err := OpenPebbleCatalog(filepath.Join(t.TempDir(), "catalog.pebble"))
	require.NoError(t, err)
	defer pc.Close()

	ctx := context.Background()
	want := sampleCatalog(t)
	require.NoError(t, pc.Save(ctx, want))
	got, err := pc.Load(ctx)
	require.NoError(t, err)
	assertSameCatalog(t, want, got)

	smaller, err := catalog.New(want.Assets[:1])
	require.NoError(t, err)
	require.NoError(t, pc.Save(ctx, smaller))
	got, err = pc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"btcinr"}, got.Symbols())
}

func TestPebbleCatalogEmptyIsConfigError(t *testing.T) {
	pc, err := OpenPebbleCatalog(filepath.Join(t.TempDir(), "empty.pebble"))
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.Load(context.Background())
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestOpenCatalogDefaultsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	cfg := config.CatalogConfig{Source: config.CatalogFile, Path: path}
	s, err := OpenCatalog(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleCatalog(t)))
	require.NoError(t, s.Close())

	got, err := LoadCatalog(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestAssetRowConversion(t *testing.T) {
	e := sampleCatalog(t).Assets[0]
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row := rowFromEntry(e, now)
	assert.Equal(t, e.Symbol, row.Symbol)
	assert.Equal(t, now, row.UpdatedAt)
	assert.Equal(t, e, row.entry())
}
