package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spread-trading/internal/alert"
	"spread-trading/internal/api"
	"spread-trading/internal/book"
	"spread-trading/internal/config"
	"spread-trading/internal/core"
	"spread-trading/internal/engine"
	"spread-trading/internal/events"
	"spread-trading/internal/exchange"
	"spread-trading/internal/exchange/paper"
	"spread-trading/internal/exchange/wazirx"
	"spread-trading/internal/obs"
	"spread-trading/internal/safety"
	"spread-trading/internal/store"
	"spread-trading/internal/strategy"
)

func main() {
	var configPath, envPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with exchange and telegram secrets")
	flag.Parse()

	if err := config.LoadEnvFile(envPath); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	zl, err := obs.NewLogger(cfg.Observability.Log.Level, cfg.Observability.Log.File)
	if err != nil {
		fatal(err.Error())
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar().With("instance", cfg.InstanceID, "mode", string(cfg.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("engine_failed", "err", err)
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	alerts := buildAlertManager(cfg, log)
	if alerts != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				log.Warnw("alert_manager_close_failed", "err", err)
			}
		}()
	}
	var alerter alert.Alerter
	if alerts != nil {
		alerter = alerts
	}

	dir := stateDir(cfg)
	st, err := store.New(dir, log.Named("store"))
	if err != nil {
		return err
	}
	lock, err := store.AcquireLock(dir, store.LockOptions{
		InstanceID:      cfg.InstanceID,
		Mode:            string(cfg.Mode),
		TakeoverEnabled: cfg.State.LockTakeover,
		StaleAfter:      time.Duration(cfg.State.LockStaleSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warnw("instance_lock_release_failed", "err", err)
		}
	}()

	// a catalog that cannot be loaded is fatal before any order is sent
	cat, err := store.LoadCatalog(ctx, cfg.Catalog, log.Named("catalog"))
	if err != nil {
		alertImportant(alerter, "catalog_load_failed", map[string]string{"err": err.Error()})
		return fmt.Errorf("load catalog: %w", err)
	}
	h := book.New(cat.Symbols())
	if err := restoreBook(st, h, log); err != nil {
		return err
	}

	stopProfiler, err := obs.StartProfiler(
		cfg.Observability.Pyroscope.Enabled,
		cfg.Observability.Pyroscope.AppName,
		cfg.Observability.Pyroscope.ServerAddress,
		cfg.InstanceID,
		log.Named("pyroscope"),
	)
	if err != nil {
		return err
	}
	defer stopProfiler()

	bg, bgCtx := errgroup.WithContext(ctx)
	bgCtx, cancelBg := context.WithCancel(bgCtx)

	client, err := wazirx.NewClient(cfg.Exchange, cfg.InstanceID, cfg.Mode == config.ModeLive)
	if err != nil {
		cancelBg()
		return err
	}
	var depth exchange.DepthSource = client
	if cfg.Exchange.DepthSource == config.DepthStream {
		ds := wazirx.NewDepthStream(
			cfg.Exchange.WSBaseURL,
			cat.Symbols(),
			client,
			time.Duration(cfg.Exchange.DepthMaxAgeSec)*time.Second,
			log.Named("depth_stream"),
		)
		bg.Go(func() error {
			if err := ds.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("depth_stream_stopped", "err", err)
			}
			return nil
		})
		depth = ds
	}
	ex := buildExchange(cfg, client, depth, log)
	breaker := safety.NewBreaker(cfg.CircuitBreaker, alerter, log.Named("breaker"))
	guarded := safety.NewGuardedExchange(exchange.NewPaced(ex, time.Duration(cfg.Trading.PaceMs)*time.Millisecond), breaker)

	metrics := obs.NewMetrics()
	hub := api.NewHub(log.Named("ws"))
	bg.Go(func() error {
		hub.Run(bgCtx)
		return nil
	})
	pub, closePub := buildPublisher(cfg, hub, st, metrics, log)
	defer closePub()

	trader := strategy.NewSpread(guarded, h, pub, strategy.Options{
		SellMarkup: cfg.Trading.SellMarkup.Decimal,
		OrderType:  core.OrderType(cfg.Trading.OrderType),
	}, log.Named("strategy"))
	runner := &engine.Runner{
		Depth:      guarded,
		Trader:     trader,
		Book:       h,
		Catalog:    cat,
		Store:      st,
		Metrics:    metrics,
		Alerts:     alerter,
		Log:        log.Named("engine"),
		Mode:       string(cfg.Mode),
		InstanceID: cfg.InstanceID,
		DepthLimit: cfg.Trading.DepthLimit,
		Workers:    cfg.Trading.Workers,
		Interval:   time.Duration(cfg.Trading.PassIntervalMs) * time.Millisecond,
		MaxPasses:  cfg.Trading.MaxPasses,
	}

	if cfg.API.Enabled {
		srv := api.NewServer(api.Options{
			Status:         func() store.RuntimeStatus { return runner.Status("running", nil) },
			Catalog:        cat,
			Book:           h,
			Metrics:        metrics.Handler(),
			Hub:            hub,
			AllowedOrigins: cfg.API.AllowedOrigins,
			Log:            log.Named("api"),
		})
		bg.Go(func() error {
			return srv.ListenAndServe(bgCtx, cfg.API.Listen)
		})
	}

	log.Infow("engine_configured",
		"exchange", guarded.Name(),
		"assets", cat.Len(),
		"depth_source", string(cfg.Exchange.DepthSource),
		"catalog_source", string(cfg.Catalog.Source),
		"state_dir", dir,
	)
	runErr := runner.Run(bgCtx)
	if p, ok := ex.(*paper.Exchange); ok {
		log.Infow("paper_orders_resting", "open", p.Open())
	}
	cancelBg()
	if err := bg.Wait(); err != nil {
		log.Errorw("background_service_failed", "err", err)
		if runErr == nil || errors.Is(runErr, context.Canceled) {
			runErr = err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func stateDir(cfg config.Config) string {
	return filepath.Join(cfg.State.Dir, string(cfg.Mode), cfg.InstanceID)
}

// buildExchange returns the venue the engine trades against. Dry runs keep
// orders in memory and fill them against the live public book.
func buildExchange(cfg config.Config, client *wazirx.Client, depth exchange.DepthSource, log *zap.SugaredLogger) exchange.Exchange {
	if cfg.Mode == config.ModeDryRun {
		return paper.New(depth, client, log.Named("paper"))
	}
	if depth == exchange.DepthSource(client) {
		return client
	}
	return exchange.WithDepth(client, depth)
}

func buildPublisher(cfg config.Config, hub *api.Hub, st *store.Store, metrics *obs.Metrics, log *zap.SugaredLogger) (events.Publisher, func()) {
	fanout := events.Fanout{metrics, hub}
	if cfg.Events.Journal {
		fanout = append(fanout, st)
	}
	closeFn := func() {}
	if cfg.Events.Kafka.Enabled {
		kp := events.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, log.Named("kafka"))
		fanout = append(fanout, kp)
		closeFn = func() {
			if err := kp.Close(); err != nil {
				log.Warnw("kafka_close_failed", "err", err)
			}
		}
	}
	return fanout, closeFn
}

func restoreBook(st *store.Store, h *book.TradeHistory, log *zap.SugaredLogger) error {
	snap, ok, err := st.LoadBook()
	if err != nil {
		return fmt.Errorf("load book snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	restored, skipped := h.Restore(snap)
	log.Infow("book_restored", "orders", restored, "taken_at", snap.TakenAt, "skipped_symbols", skipped)
	return nil
}

func buildAlertManager(cfg config.Config, log *zap.SugaredLogger) *alert.Manager {
	notifier := alert.NewTelegramNotifier(cfg.Observability.Telegram)
	if notifier == nil {
		return nil
	}
	return alert.NewManager(notifier, alert.Options{
		Mode:               string(cfg.Mode),
		InstanceID:         cfg.InstanceID,
		DropReportInterval: time.Duration(cfg.Observability.AlertDropReportSec) * time.Second,
		Log:                log.Named("alert"),
	})
}

func alertImportant(a alert.Alerter, event string, fields map[string]string) {
	if a == nil {
		return
	}
	a.Important(event, fields)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
