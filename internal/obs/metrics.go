package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spread-trading/internal/events"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry   *prometheus.Registry
	orders     *prometheus.CounterVec
	passes     prometheus.Counter
	passTime   prometheus.Histogram
	assetErrs  *prometheus.CounterVec
	openOrders *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spread",
			Name:      "order_events_total",
			Help:      "Order lifecycle events by type, symbol and side.",
		}, []string{"type", "symbol", "side"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spread",
			Name:      "passes_total",
			Help:      "Completed trading passes.",
		}),
		passTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spread",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a full pass over the catalog.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		assetErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spread",
			Name:      "asset_errors_total",
			Help:      "Per-asset processing failures by error kind.",
		}, []string{"symbol", "kind"}),
		openOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spread",
			Name:      "open_orders",
			Help:      "Tracked orders per asset and side.",
		}, []string{"symbol", "side"}),
	}
	reg.MustRegister(
		m.orders, m.passes, m.passTime, m.assetErrs, m.openOrders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Publish counts order events.
func (m *Metrics) Publish(_ context.Context, ev events.Event) error {
	m.orders.WithLabelValues(string(ev.Type), ev.Symbol, string(ev.Side)).Inc()
	return nil
}

func (m *Metrics) ObservePass(d time.Duration) {
	m.passes.Inc()
	m.passTime.Observe(d.Seconds())
}

func (m *Metrics) AssetError(symbol, kind string) {
	m.assetErrs.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) SetOpenOrders(symbol string, buy, sell int) {
	m.openOrders.WithLabelValues(symbol, "buy").Set(float64(buy))
	m.openOrders.WithLabelValues(symbol, "sell").Set(float64(sell))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
