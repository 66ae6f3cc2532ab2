package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/catalog"
	"spread-trading/internal/config"
	"spread-trading/internal/core"
	"spread-trading/internal/exchange/wazirx"
	"spread-trading/internal/obs"
	"spread-trading/internal/store"
)

func main() {
	var configPath, envPath, budget string
	var printOnly bool
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file")
	flag.StringVar(&budget, "budget", "", "quote budget to split across assets, overrides screener.base_amount")
	flag.BoolVar(&printOnly, "print", false, "print the catalog instead of saving it")
	flag.Parse()

	if err := config.LoadEnvFile(envPath); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if budget != "" {
		v, err := decimal.NewFromString(budget)
		if err != nil {
			fatal(fmt.Sprintf("invalid -budget %q: %v", budget, err))
		}
		cfg.Screener.BaseAmount = config.Decimal{Decimal: v}
	}
	zl, err := obs.NewLogger(cfg.Observability.Log.Level, cfg.Observability.Log.File)
	if err != nil {
		fatal(err.Error())
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar().With("tool", "screener")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := wazirx.NewClient(cfg.Exchange, cfg.InstanceID, false)
	if err != nil {
		fatal(err.Error())
	}
	cat, err := buildCatalog(ctx, client, cfg.Screener, log)
	if err != nil {
		log.Errorw("screener_failed", "err", err)
		_ = zl.Sync()
		os.Exit(1)
	}
	if printOnly {
		printCatalog(os.Stdout, cat)
		return
	}
	if err := saveCatalog(ctx, cfg.Catalog, cat, log); err != nil {
		log.Errorw("catalog_save_failed", "source", string(cfg.Catalog.Source), "err", err)
		_ = zl.Sync()
		os.Exit(1)
	}
	log.Infow("catalog_saved", "source", string(cfg.Catalog.Source), "path", cfg.Catalog.Path, "assets", cat.Len())
}

func buildCatalog(ctx context.Context, market catalog.MarketData, sc config.ScreenerConfig, log *zap.SugaredLogger) (catalog.Catalog, error) {
	if sc.BaseAmount.Sign() <= 0 {
		return catalog.Catalog{}, fmt.Errorf("%w: screener base_amount must be > 0", core.ErrInvalidConfig)
	}
	sizer := catalog.Sizer{
		BaseAmount:   sc.BaseAmount.Decimal,
		SharePercent: sc.SharePercent.Decimal,
		MinNotional:  sc.MinNotional.Decimal,
		QtyStep:      sc.QtyStep.Decimal,
	}
	screener := catalog.NewScreener(market, catalog.ScreenerOptions{
		QuoteAsset:     sc.QuoteAsset,
		MinQuoteVolume: sc.MinQuoteVolume.Decimal,
		MaxSymbols:     sc.MaxSymbols,
		Symbols:        sc.Symbols,
		MinDepthLevels: sc.MinDepthLevels,
	}, sizer, log)
	return screener.Build(ctx)
}

func saveCatalog(ctx context.Context, cfg config.CatalogConfig, cat catalog.Catalog, log *zap.SugaredLogger) error {
	s, err := store.OpenCatalog(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Save(ctx, cat)
}

func printCatalog(w io.Writer, cat catalog.Catalog) {
	fmt.Fprintf(w, "%-12s %14s %14s %12s %6s\n", "symbol", "buy", "sell", "quantity", "limit")
	for _, e := range cat.Assets {
		fmt.Fprintf(w, "%-12s %14s %14s %12s %6d\n", e.Symbol, core.FormatPrice(e.Buy), core.FormatPrice(e.Sell), e.Quantity.String(), e.TradeLimit)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
