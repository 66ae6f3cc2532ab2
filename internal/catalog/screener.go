package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/core"
	"spread-trading/internal/exchange/wazirx"
)

// MarketData is the public market surface the screener reads.
type MarketData interface {
	Symbols(ctx context.Context) ([]wazirx.SymbolInfo, error)
	Tickers(ctx context.Context) ([]wazirx.Ticker, error)
	Depth(ctx context.Context, symbol string, limit int) (core.Depth, error)
}

type ScreenerOptions struct {
	QuoteAsset     string
	MinQuoteVolume decimal.Decimal
	MaxSymbols     int
	Symbols        []string
	MinDepthLevels int
}

// Screener discovers tradable markets, filters them on volume and depth and
// sizes the survivors into a catalog.
type Screener struct {
	market MarketData
	opts   ScreenerOptions
	sizer  Sizer
	log    *zap.SugaredLogger
}

func NewScreener(market MarketData, opts ScreenerOptions, sizer Sizer, log *zap.SugaredLogger) *Screener {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.MinDepthLevels < 2 {
		opts.MinDepthLevels = 2
	}
	return &Screener{market: market, opts: opts, sizer: sizer, log: log}
}

type candidate struct {
	symbol string
	bid    decimal.Decimal
	ask    decimal.Decimal
	volume decimal.Decimal
}

func (s *Screener) Build(ctx context.Context) (Catalog, error) {
	markets, err := s.market.Symbols(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("list symbols: %w", err)
	}
	allowed := make(map[string]bool, len(s.opts.Symbols))
	for _, symbol := range s.opts.Symbols {
		allowed[symbol] = true
	}
	eligible := make(map[string]bool)
	for _, m := range markets {
		if m.Status != "trading" || m.QuoteAsset != s.opts.QuoteAsset {
			continue
		}
		if len(allowed) > 0 && !allowed[m.Symbol] {
			continue
		}
		eligible[m.Symbol] = true
	}
	s.log.Infow("screener_symbols_discovered", "total", len(markets), "eligible", len(eligible), "quote", s.opts.QuoteAsset)

	tickers, err := s.market.Tickers(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("list tickers: %w", err)
	}
	candidates := make([]candidate, 0, len(eligible))
	for _, t := range tickers {
		if !eligible[t.Symbol] {
			continue
		}
		if t.BidPrice.Sign() <= 0 || t.AskPrice.Sign() <= 0 {
			continue
		}
		volume := t.QuoteVolume()
		if volume.Cmp(s.opts.MinQuoteVolume) < 0 {
			s.log.Debugw("screener_volume_rejected", "symbol", t.Symbol, "quote_volume", volume.String())
			continue
		}
		candidates = append(candidates, candidate{symbol: t.Symbol, bid: t.BidPrice, ask: t.AskPrice, volume: volume})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if c := candidates[i].volume.Cmp(candidates[j].volume); c != 0 {
			return c > 0
		}
		return candidates[i].symbol < candidates[j].symbol
	})

	picked := make([]candidate, 0, s.opts.MaxSymbols)
	for _, c := range candidates {
		if s.opts.MaxSymbols > 0 && len(picked) >= s.opts.MaxSymbols {
			break
		}
		depth, err := s.market.Depth(ctx, c.symbol, s.opts.MinDepthLevels)
		if err != nil {
			s.log.Warnw("screener_depth_failed", "symbol", c.symbol, "err", err)
			continue
		}
		if len(depth.Bids) < s.opts.MinDepthLevels || len(depth.Asks) < s.opts.MinDepthLevels {
			s.log.Debugw("screener_depth_rejected", "symbol", c.symbol, "bids", len(depth.Bids), "asks", len(depth.Asks))
			continue
		}
		picked = append(picked, c)
	}

	entries := make([]AssetEntry, 0, len(picked))
	for _, c := range picked {
		qty, limit, err := s.sizer.Size(len(picked), c.bid)
		if err != nil {
			s.log.Warnw("screener_size_failed", "symbol", c.symbol, "err", err)
			continue
		}
		if limit < 1 {
			s.log.Warnw("screener_budget_too_small", "symbol", c.symbol, "qty", qty.String(), "buy", c.bid.String())
			continue
		}
		entries = append(entries, AssetEntry{
			Symbol:     c.symbol,
			Buy:        c.bid,
			Sell:       c.ask,
			Quantity:   qty,
			TradeLimit: limit,
		})
	}
	if len(entries) == 0 {
		return Catalog{}, fmt.Errorf("screener selected no assets")
	}
	return New(entries)
}
