package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spread-trading/internal/config"
	"spread-trading/internal/core"
	"spread-trading/internal/exchange"
	"spread-trading/internal/exchange/wazirx"
	"spread-trading/internal/obs"
	"spread-trading/internal/store"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Mode       config.Mode   `json:"mode"`
	Symbol     string        `json:"symbol"`
	Checks     []checkResult `json:"checks"`
}

func main() {
	var (
		configPath   string
		envPath      string
		symbol       string
		timeoutSec   int
		outJSONPath  string
		allowLiveRun bool
		lifecycle    bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file")
	flag.StringVar(&symbol, "symbol", "", "symbol to check, defaults to the first catalog asset")
	flag.IntVar(&timeoutSec, "timeout-sec", 60, "total timeout seconds")
	flag.StringVar(&outJSONPath, "out-json", "", "optional output report path")
	flag.BoolVar(&lifecycle, "lifecycle", false, "place, query and cancel one order far below the market")
	flag.BoolVar(&allowLiveRun, "allow-live", false, "allow the lifecycle check to send a real order")
	flag.Parse()

	if err := config.LoadEnvFile(envPath); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if lifecycle && !allowLiveRun {
		fatal("lifecycle check sends a real order; set -allow-live=true to continue")
	}
	zl, err := obs.NewLogger(cfg.Observability.Log.Level, cfg.Observability.Log.File)
	if err != nil {
		fatal(err.Error())
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar().With("tool", "venuecheck")

	if timeoutSec < 10 {
		timeoutSec = 10
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	qty := decimal.Zero
	if symbol == "" || lifecycle {
		cat, err := store.LoadCatalog(ctx, cfg.Catalog, log)
		if err != nil {
			fatal(err.Error())
		}
		if symbol == "" {
			symbol = cat.Symbols()[0]
		}
		if e, ok := cat.Get(symbol); ok {
			qty = e.Quantity
		}
	}
	client, err := wazirx.NewClient(cfg.Exchange, cfg.InstanceID, lifecycle)
	if err != nil {
		fatal(err.Error())
	}

	c := &checker{
		ex:         client,
		symbol:     strings.ToLower(symbol),
		quote:      cfg.Screener.QuoteAsset,
		qty:        qty,
		depthLimit: cfg.Trading.DepthLimit,
		out:        os.Stdout,
		log:        log,
	}
	if cfg.Exchange.APIKey != "" && cfg.Exchange.APISecret != "" {
		c.funds = client
	}
	r := c.runAll(ctx, cfg.Mode, lifecycle)
	printSummary(os.Stdout, r)
	if outJSONPath != "" {
		if err := writeReport(outJSONPath, r); err != nil {
			fatal(err.Error())
		}
	}
	for _, cr := range r.Checks {
		if cr.Status == statusFail {
			os.Exit(2)
		}
	}
}

type fundsSource interface {
	Funds(ctx context.Context) ([]wazirx.Fund, error)
}

type checker struct {
	ex         exchange.Exchange
	funds      fundsSource
	symbol     string
	quote      string
	qty        decimal.Decimal
	depthLimit int
	out        io.Writer
	log        *zap.SugaredLogger

	rules     core.Rules
	bid       core.Quotes
	ask       core.Quotes
	quoteFree decimal.Decimal
}

func (c *checker) runAll(ctx context.Context, mode config.Mode, lifecycle bool) report {
	r := report{StartedAt: time.Now().UTC(), Mode: mode, Symbol: c.symbol}
	preflightOK := c.run(&r, "exchange_preflight", func() (string, error) { return c.preflight(ctx) })
	if lifecycle {
		c.run(&r, "order_lifecycle_place_query_cancel", func() (string, error) {
			if !preflightOK {
				return "", errors.New("preflight failed")
			}
			return c.orderLifecycle(ctx)
		})
	}
	r.FinishedAt = time.Now().UTC()
	return r
}

func (c *checker) run(r *report, name string, fn func() (string, error)) bool {
	start := time.Now()
	detail, err := fn()
	cr := checkResult{
		Name:       name,
		DurationMs: time.Since(start).Milliseconds(),
		Detail:     detail,
		Status:     statusPass,
	}
	if err != nil {
		cr.Status = statusFail
		cr.Error = err.Error()
	}
	r.Checks = append(r.Checks, cr)
	if cr.Status == statusPass {
		fmt.Fprintf(c.out, "[PASS] %s (%dms)", name, cr.DurationMs)
		if cr.Detail != "" {
			fmt.Fprintf(c.out, " - %s", cr.Detail)
		}
		fmt.Fprintln(c.out)
		return true
	}
	fmt.Fprintf(c.out, "[FAIL] %s (%dms) - %s\n", name, cr.DurationMs, cr.Error)
	c.log.Warnw("check_failed", "check", name, "err", err)
	return false
}

func (c *checker) preflight(ctx context.Context) (string, error) {
	depth, err := c.ex.Depth(ctx, c.symbol, c.depthLimit)
	if err != nil {
		return "", fmt.Errorf("depth: %w", err)
	}
	c.bid, c.ask, err = depth.BestQuotes()
	if err != nil {
		return "", fmt.Errorf("depth: %w", err)
	}
	c.rules, err = c.ex.Rules(ctx, c.symbol)
	if err != nil {
		return "", fmt.Errorf("rules: %w", err)
	}
	detail := fmt.Sprintf("bid=%s/%s ask=%s/%s tick=%s minQty=%s minNotional=%s",
		core.FormatPrice(c.bid.Top), core.FormatPrice(c.bid.Rival),
		core.FormatPrice(c.ask.Top), core.FormatPrice(c.ask.Rival),
		c.rules.PriceTick, c.rules.MinQty, c.rules.MinNotional,
	)
	if c.funds == nil {
		return detail, nil
	}
	funds, err := c.funds.Funds(ctx)
	if err != nil {
		return "", fmt.Errorf("funds: %w", err)
	}
	c.quoteFree = wazirx.FundOf(funds, c.quote).Free
	return fmt.Sprintf("%s quoteBalance=%s %s", detail, c.quoteFree, c.quote), nil
}

// orderLifecycle rests one buy at half the best bid, checks the venue reports
// it untouched, then cancels it.
func (c *checker) orderLifecycle(ctx context.Context) (string, error) {
	price := c.bid.Top.Mul(decimal.RequireFromString("0.5"))
	if c.rules.PriceTick.Sign() > 0 {
		price = core.RoundDown(price, c.rules.PriceTick)
	}
	if price.Sign() <= 0 {
		return "", errors.New("calculated order price <= 0")
	}
	qty, err := checkQty(c.qty, c.rules, price)
	if err != nil {
		return "", err
	}
	order, err := core.NormalizeOrder(core.Order{Symbol: c.symbol, Side: core.Buy, Type: core.Limit, Price: price, Qty: qty}, c.rules)
	if err != nil {
		return "", err
	}
	if notional := order.Price.Mul(order.Qty); c.funds != nil && c.quoteFree.LessThan(notional) {
		return "", fmt.Errorf("%w: need %s %s, free %s", core.ErrInsufficientBalance, notional, c.quote, c.quoteFree)
	}
	placed, err := c.ex.PlaceOrder(ctx, order)
	if err != nil {
		return "", fmt.Errorf("place: %w", err)
	}
	if placed.ID == "" {
		return "", errors.New("place: exchange returned no order id")
	}
	q, err := c.ex.QueryOrder(ctx, c.symbol, placed.ID)
	if err != nil {
		return "", c.cleanup(ctx, placed.ID, fmt.Errorf("query: %w", err))
	}
	if !q.Untouched() {
		return "", c.cleanup(ctx, placed.ID, fmt.Errorf("order %s unexpectedly executed: status=%s executed=%s", placed.ID, q.Status, q.ExecutedQty))
	}
	if err := c.ex.CancelOrder(ctx, c.symbol, placed.ID); err != nil {
		return "", fmt.Errorf("cancel %s: %w", placed.ID, err)
	}
	after, err := c.ex.QueryOrder(ctx, c.symbol, placed.ID)
	if err != nil {
		return "", fmt.Errorf("query after cancel: %w", err)
	}
	if after.Status != core.OrderCancel {
		return "", fmt.Errorf("order %s status after cancel = %s", placed.ID, after.Status)
	}
	return fmt.Sprintf("id=%s price=%s qty=%s", placed.ID, core.FormatPrice(order.Price), order.Qty), nil
}

func (c *checker) cleanup(ctx context.Context, id string, cause error) error {
	if err := c.ex.CancelOrder(ctx, c.symbol, id); err != nil {
		return errors.Join(cause, fmt.Errorf("cleanup cancel %s: %w", id, err))
	}
	return cause
}

// checkQty picks the smallest quantity the venue accepts at price, starting
// from the catalog lot.
func checkQty(qty decimal.Decimal, rules core.Rules, price decimal.Decimal) (decimal.Decimal, error) {
	if price.Sign() <= 0 {
		return decimal.Zero, errors.New("invalid price")
	}
	if rules.MinQty.Sign() > 0 && qty.Cmp(rules.MinQty) < 0 {
		qty = rules.MinQty
	}
	if rules.MinNotional.Sign() > 0 {
		if byNotional := rules.MinNotional.Div(price); byNotional.Cmp(qty) > 0 {
			qty = byNotional
		}
	}
	if rules.QtyStep.Sign() > 0 {
		qty = core.RoundUp(qty, rules.QtyStep)
	}
	if qty.Sign() <= 0 {
		return decimal.Zero, errors.New("calculated qty <= 0")
	}
	return qty, nil
}

func printSummary(w io.Writer, r report) {
	pass, fail := 0, 0
	for _, c := range r.Checks {
		if c.Status == statusPass {
			pass++
		} else {
			fail++
		}
	}
	fmt.Fprintf(w, "\nsummary mode=%s symbol=%s pass=%d fail=%d duration=%s\n",
		r.Mode,
		r.Symbol,
		pass,
		fail,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	)
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(msg))
	os.Exit(1)
}
