package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spread-trading/internal/alert"
	"spread-trading/internal/book"
	"spread-trading/internal/catalog"
	"spread-trading/internal/core"
	"spread-trading/internal/exchange"
	"spread-trading/internal/store"
	"spread-trading/internal/strategy"
)

var ErrAssetPanic = errors.New("asset processing panicked")

// Error kinds reported per asset.
const (
	KindConfig   = "config"
	KindExchange = "exchange"
	KindData     = "data"
	KindCircuit  = "circuit"
	KindCanceled = "canceled"
	KindInternal = "internal"
)

// Classify maps an asset failure onto the kind used in logs, metrics and the
// runtime status.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, core.ErrCircuitOpen):
		return KindCircuit
	case errors.Is(err, core.ErrInvalidConfig), errors.Is(err, core.ErrUnknownAsset), errors.Is(err, core.ErrAuth):
		return KindConfig
	case errors.Is(err, core.ErrDepthIncomplete), errors.Is(err, core.ErrBadPrice):
		return KindData
	case errors.Is(err, core.ErrTransient),
		errors.Is(err, core.ErrRateLimited),
		errors.Is(err, core.ErrOrderRejected),
		errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrInsufficientBalance):
		return KindExchange
	default:
		return KindInternal
	}
}

// Recorder receives per-pass measurements. *obs.Metrics implements it.
type Recorder interface {
	ObservePass(d time.Duration)
	AssetError(symbol, kind string)
	SetOpenOrders(symbol string, buy, sell int)
}

// Runner drives trading passes over the catalog.
type Runner struct {
	Depth      exchange.DepthSource
	Trader     strategy.Trader
	Book       *book.TradeHistory
	Catalog    catalog.Catalog
	Store      *store.Store
	Metrics    Recorder
	Alerts     alert.Alerter
	Log        *zap.SugaredLogger
	Mode       string
	InstanceID string
	DepthLimit int
	Workers    int
	Interval   time.Duration
	MaxPasses  int

	mu        sync.Mutex
	startedAt time.Time
	passes    int64
	last      PassReport
}

// PassReport summarizes one pass over every catalog asset.
type PassReport struct {
	Pass     int64
	Started  time.Time
	Duration time.Duration
	Assets   int
	Errors   map[string]string
}

func (r *Runner) logger() *zap.SugaredLogger {
	if r.Log == nil {
		return zap.NewNop().Sugar()
	}
	return r.Log
}

// Run executes passes until ctx is done or MaxPasses is reached.
func (r *Runner) Run(ctx context.Context) (runErr error) {
	r.mu.Lock()
	r.startedAt = time.Now().UTC()
	r.mu.Unlock()
	log := r.logger()

	r.persistRuntimeStatus("starting", nil)
	r.alertImportant("engine_started", map[string]string{
		"assets": fmt.Sprint(r.Catalog.Len()),
	})
	log.Infow("engine_started", "mode", r.Mode, "assets", r.Catalog.Len(), "workers", r.workers(), "interval", r.Interval)
	defer func() {
		err := runErr
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		r.persistRuntimeStatus("stopped", err)
		fields := map[string]string{"passes": fmt.Sprint(r.Passes())}
		if err != nil {
			fields["reason"] = err.Error()
		}
		r.alertImportant("engine_stopped", fields)
		log.Infow("engine_stopped", "passes", r.Passes(), "err", err)
	}()

	var timer *time.Timer
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.RunPass(ctx)
		if r.MaxPasses > 0 && r.Passes() >= int64(r.MaxPasses) {
			return nil
		}
		if r.Interval <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(r.Interval)
			defer timer.Stop()
		} else {
			timer.Reset(r.Interval)
		}
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) workers() int {
	if r.Workers < 1 {
		return 1
	}
	return r.Workers
}

// RunPass processes every catalog asset once. A failing asset is logged and
// recorded; it never stops the others.
func (r *Runner) RunPass(ctx context.Context) PassReport {
	log := r.logger()
	report := PassReport{Started: time.Now().UTC(), Errors: make(map[string]string)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.workers())
	for _, symbol := range r.Catalog.Symbols() {
		if ctx.Err() != nil {
			break
		}
		entry, ok := r.Catalog.Get(symbol)
		if !ok {
			continue
		}
		report.Assets++
		g.Go(func() error {
			err := r.processAsset(ctx, entry)
			if err == nil {
				return nil
			}
			kind := Classify(err)
			switch kind {
			case KindCanceled:
				return nil
			case KindCircuit, KindData:
				log.Warnw("asset_skipped", "symbol", entry.Symbol, "kind", kind, "err", err)
			default:
				log.Errorw("asset_failed", "symbol", entry.Symbol, "kind", kind, "err", err)
			}
			if r.Metrics != nil {
				r.Metrics.AssetError(entry.Symbol, kind)
			}
			mu.Lock()
			report.Errors[entry.Symbol] = kind + ": " + err.Error()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = time.Since(report.Started)

	r.mu.Lock()
	r.passes++
	report.Pass = r.passes
	r.last = report
	r.mu.Unlock()

	if r.Metrics != nil {
		r.Metrics.ObservePass(report.Duration)
		for _, symbol := range r.Book.Symbols() {
			if c, err := r.Book.Counts(symbol); err == nil {
				r.Metrics.SetOpenOrders(symbol, c.Buy, c.Sell)
			}
		}
	}
	if r.Store != nil {
		if err := r.Store.SaveBook(r.Book.Snapshot(time.Now())); err != nil {
			log.Warnw("book_snapshot_write_failed", "err", err)
		}
	}
	r.persistRuntimeStatus("running", nil)
	log.Debugw("pass_completed", "pass", report.Pass, "assets", report.Assets, "errors", len(report.Errors), "duration", report.Duration)
	return report
}

func (r *Runner) processAsset(ctx context.Context, entry catalog.AssetEntry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger().Errorw("asset_panic", "symbol", entry.Symbol, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrAssetPanic, p)
		}
	}()
	depth, err := r.Depth.Depth(ctx, entry.Symbol, r.DepthLimit)
	if err != nil {
		return fmt.Errorf("depth: %w", err)
	}
	bid, ask, err := depth.BestQuotes()
	if err != nil {
		return fmt.Errorf("depth: %w", err)
	}
	buy, err := r.Trader.BuyAsset(ctx, entry, bid)
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	sell, err := r.Trader.SellAsset(ctx, entry, ask)
	if err != nil {
		return fmt.Errorf("sell: %w", err)
	}
	if buy.Changed() || sell.Changed() {
		r.logger().Infow("asset_updated",
			"symbol", entry.Symbol,
			"bid", core.FormatPrice(bid.Top),
			"ask", core.FormatPrice(ask.Top),
			"buy_placed", len(buy.Placed),
			"buy_cancelled", buy.Cancelled,
			"sells_filled", buy.Filled,
			"sell_placed", len(sell.Placed),
			"sell_cancelled", sell.Cancelled,
			"buys_filled", sell.Filled,
			"sell_deferred", sell.Deferred,
		)
	}
	return nil
}

func (r *Runner) Passes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes
}

// LastPass returns the most recent pass report.
func (r *Runner) LastPass() PassReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) alertImportant(event string, fields map[string]string) {
	if r.Alerts == nil {
		return
	}
	r.Alerts.Important(event, fields)
}

// Status builds the runtime status served by the API and written to disk.
func (r *Runner) Status(state string, lastErr error) store.RuntimeStatus {
	r.mu.Lock()
	startedAt := r.startedAt
	last := r.last
	passes := r.passes
	r.mu.Unlock()
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	mode := r.Mode
	if mode == "" {
		mode = "dryrun"
	}
	instanceID := r.InstanceID
	if instanceID == "" {
		instanceID = "default"
	}
	status := store.RuntimeStatus{
		Mode:       mode,
		InstanceID: instanceID,
		PID:        os.Getpid(),
		State:      state,
		StartedAt:  startedAt,
		UpdatedAt:  time.Now().UTC(),
		Passes:     passes,
		Counts:     make(map[string]book.Counts),
	}
	if passes > 0 {
		status.LastPassAt = last.Started
		status.LastPassMs = last.Duration.Milliseconds()
		if len(last.Errors) > 0 {
			status.AssetErrors = last.Errors
		}
	}
	for _, symbol := range r.Book.Symbols() {
		if c, err := r.Book.Counts(symbol); err == nil {
			status.Counts[symbol] = c
		}
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status
}

func (r *Runner) persistRuntimeStatus(state string, lastErr error) {
	if r.Store == nil {
		return
	}
	if err := r.Store.SaveRuntimeStatus(r.Status(state, lastErr)); err != nil {
		r.logger().Warnw("runtime_status_write_failed", "err", err)
	}
}
