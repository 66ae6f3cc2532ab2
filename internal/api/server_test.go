package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-trading/internal/book"
	"spread-trading/internal/catalog"
	"spread-trading/internal/core"
	"spread-trading/internal/events"
	"spread-trading/internal/obs"
	"spread-trading/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, *book.TradeHistory) {
	t.Helper()
	cat, err := catalog.New([]catalog.AssetEntry{
		{Symbol: "btcinr", Buy: d("100"), Sell: d("101"), Quantity: d("0.5"), TradeLimit: 2},
		{Symbol: "ethinr", Buy: d("50.10"), Sell: d("50.30"), Quantity: d("1"), TradeLimit: 1},
	})
	require.NoError(t, err)
	h := book.New(cat.Symbols())
	require.NoError(t, h.Insert("btcinr", core.Buy, book.Record{ID: "b1", Price: d("100")}))
	require.NoError(t, h.Defer("btcinr", "b0", d("99.5")))

	srv := NewServer(Options{
		Status: func() store.RuntimeStatus {
			return store.RuntimeStatus{Mode: "dryrun", InstanceID: "t1", State: "running", Passes: 3}
		},
		Catalog:        cat,
		Book:           h,
		Metrics:        obs.NewMetrics().Handler(),
		Hub:            hub,
		AllowedOrigins: []string{"http://ops.local"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, h
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthAndStatus(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var health map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health["status"])

	var status store.RuntimeStatus
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	assert.Equal(t, "running", status.State)
	assert.Equal(t, int64(3), status.Passes)
}

func TestAssetsIncludeOpenCounts(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var assets []assetView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/assets", &assets))
	require.Len(t, assets, 2)
	assert.Equal(t, "btcinr", assets[0].Symbol)
	assert.Equal(t, 1, assets[0].Open.Buy)
	assert.Equal(t, 1, assets[0].Open.Deferred)
	assert.Equal(t, "50.10", assets[1].Buy.StringFixed(2))
}

func TestOrdersBySymbol(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var orders ordersView
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/assets/BTCINR/orders", &orders))
	require.Len(t, orders.Buy, 1)
	assert.Equal(t, "b1", orders.Buy[0].ID)
	assert.Empty(t, orders.Sell)
	assert.True(t, orders.Deferred["b0"].Equal(d("99.5")))

	var apiErr errorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/assets/dogeinr/orders", &apiErr))
	assert.Contains(t, apiErr.Error, "dogeinr")
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ops.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://ops.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.local")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestHubStreamsFilteredEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)
	ts, _ := newTestServer(t, hub)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?symbol=ethinr"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, events.Event{Type: events.OrderPlaced, Symbol: "btcinr", Side: core.Buy, OrderID: "x1"}))
	require.NoError(t, hub.Publish(ctx, events.Event{Type: events.OrderFilled, Symbol: "ethinr", Side: core.Sell, OrderID: "x2", Price: d("50.30")}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "x2", ev.OrderID)
	assert.Equal(t, events.OrderFilled, ev.Type)
}

func TestHubDropsClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)
	ts, _ := newTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Clients())
}
