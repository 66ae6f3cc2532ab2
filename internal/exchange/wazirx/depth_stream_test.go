package wazirx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-trading/internal/core"
)

type staticDepth struct {
	depth core.Depth
	calls int
}

func (s *staticDepth) Depth(context.Context, string, int) (core.Depth, error) {
	s.calls++
	return s.depth, nil
}

func TestDepthStreamCachesBooks(t *testing.T) {
	subscribed := make(chan streamRequest, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req
		msg := `{"stream":"btcinr@depth","data":{"s":"btcinr","E":1,"a":[["101","1"],["102","1"],["103","1"]],"b":[["100","1"],["99","1"],["98","1"]]}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	fallback := &staticDepth{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream := NewDepthStream(wsURL, []string{"btcinr"}, fallback, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stream.Run(ctx) }()

	select {
	case req := <-subscribed:
		assert.Equal(t, "subscribe", req.Event)
		assert.Equal(t, []string{"btcinr@depth"}, req.Streams)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe request received")
	}

	require.Eventually(t, func() bool {
		stream.mu.RLock()
		defer stream.mu.RUnlock()
		_, ok := stream.books["btcinr"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	depth, err := stream.Depth(context.Background(), "btcinr", 2)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 2)
	assert.True(t, depth.Bids[1].Price.Equal(decimal.NewFromInt(99)))
	assert.Zero(t, fallback.calls)
}

func TestDepthStreamFallsBackWhenStale(t *testing.T) {
	fallback := &staticDepth{depth: core.Depth{Symbol: "ethinr"}}
	stream := NewDepthStream("ws://unused", []string{"ethinr"}, fallback, time.Second, nil)
	now := time.Now()
	stream.now = func() time.Time { return now }
	stream.books["ethinr"] = core.Depth{Symbol: "ethinr", Time: now.Add(-time.Minute)}

	depth, err := stream.Depth(context.Background(), "ethinr", 5)
	require.NoError(t, err)
	assert.Equal(t, "ethinr", depth.Symbol)
	assert.Equal(t, 1, fallback.calls)

	_, err = stream.Depth(context.Background(), "xrpinr", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, fallback.calls)
}

func TestDepthStreamIgnoresControlMessages(t *testing.T) {
	stream := NewDepthStream("ws://unused", nil, nil, time.Second, nil)
	require.NoError(t, stream.handle([]byte(`{"event":"subscribed","data":{}}`)))
	require.NoError(t, stream.handle([]byte(`{"event":"pong"}`)))
	assert.Empty(t, stream.books)
	assert.Error(t, stream.handle([]byte(`not json`)))

	_, err := stream.Depth(context.Background(), "btcinr", 5)
	assert.ErrorIs(t, err, core.ErrDepthIncomplete)
}
