package obs

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-trading/internal/core"
	"spread-trading/internal/events"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	logger, err := NewLogger("debug", path)
	require.NoError(t, err)

	logger.Sugar().Infow("pass_done", "assets", 3)
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"pass_done"`)
	assert.Contains(t, string(raw), `"ts":`)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud", "")
	assert.Error(t, err)
}

func TestMetricsCountsEvents(t *testing.T) {
	m := NewMetrics()
	ev := events.Event{Type: events.OrderPlaced, Symbol: "btcinr", Side: core.Buy}
	require.NoError(t, m.Publish(context.Background(), ev))
	require.NoError(t, m.Publish(context.Background(), ev))
	m.AssetError("btcinr", "exchange")
	m.SetOpenOrders("btcinr", 2, 1)
	m.ObservePass(120 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orders.WithLabelValues("order_placed", "btcinr", "buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assetErrs.WithLabelValues("btcinr", "exchange")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openOrders.WithLabelValues("btcinr", "sell")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "spread_pass_duration_seconds_count 1"))
}

func TestStartProfilerDisabled(t *testing.T) {
	stop, err := StartProfiler(false, "spreadbot", "", "x", nil)
	require.NoError(t, err)
	stop()
}
