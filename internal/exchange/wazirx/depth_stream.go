package wazirx

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spread-trading/internal/core"
	"spread-trading/internal/exchange"
)

const (
	streamPingInterval = 30 * time.Second
	streamReadTimeout  = 90 * time.Second
	streamMaxBackoff   = 30 * time.Second
)

type streamRequest struct {
	Event   string   `json:"event"`
	Streams []string `json:"streams,omitempty"`
}

type streamEnvelope struct {
	Event  string          `json:"event"`
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type streamDepth struct {
	Symbol    string          `json:"s"`
	EventTime int64           `json:"E"`
	Asks      [][]json.Number `json:"a"`
	Bids      [][]json.Number `json:"b"`
}

// DepthStream keeps the latest depth per symbol from the public websocket
// and serves it as a DepthSource. Stale or missing books fall through to the
// REST fallback.
type DepthStream struct {
	url      string
	symbols  []string
	fallback exchange.DepthSource
	maxAge   time.Duration
	dialer   *websocket.Dialer
	log      *zap.SugaredLogger
	now      func() time.Time

	mu    sync.RWMutex
	books map[string]core.Depth
}

func NewDepthStream(wsURL string, symbols []string, fallback exchange.DepthSource, maxAge time.Duration, log *zap.SugaredLogger) *DepthStream {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &DepthStream{
		url:      strings.TrimRight(wsURL, "/"),
		symbols:  append([]string(nil), symbols...),
		fallback: fallback,
		maxAge:   maxAge,
		dialer:   websocket.DefaultDialer,
		log:      log,
		now:      time.Now,
		books:    make(map[string]core.Depth),
	}
}

// Run connects and reconnects until ctx is done.
func (s *DepthStream) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		started := s.now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.now().Sub(started) > streamMaxBackoff {
			backoff = time.Second
		}
		s.log.Warnw("depth_stream_disconnected", "err", err, "retry_in", backoff.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > streamMaxBackoff {
			backoff = streamMaxBackoff
		}
	}
}

func (s *DepthStream) session(ctx context.Context) error {
	if s.url == "" {
		return errors.New("ws base url required")
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	streams := make([]string, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		streams = append(streams, symbol+"@depth")
	}
	if err := conn.WriteJSON(streamRequest{Event: "subscribe", Streams: streams}); err != nil {
		return err
	}
	s.log.Infow("depth_stream_connected", "streams", len(streams))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(streamRequest{Event: "ping"}); err != nil {
					_ = conn.Close()
					return
				}
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(data); err != nil {
			s.log.Warnw("depth_stream_bad_message", "err", err)
		}
	}
}

func (s *DepthStream) handle(data []byte) error {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 || !strings.HasSuffix(env.Stream, "@depth") {
		return nil
	}
	var msg streamDepth
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return err
	}
	symbol := msg.Symbol
	if symbol == "" {
		symbol = strings.TrimSuffix(env.Stream, "@depth")
	}
	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return err
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return err
	}
	depth := core.Depth{Symbol: symbol, Bids: bids, Asks: asks, Time: s.now().UTC()}
	s.mu.Lock()
	s.books[symbol] = depth
	s.mu.Unlock()
	return nil
}

func (s *DepthStream) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	s.mu.RLock()
	depth, ok := s.books[symbol]
	s.mu.RUnlock()
	if ok && s.now().Sub(depth.Time) <= s.maxAge {
		return trimDepth(depth, limit), nil
	}
	if s.fallback == nil {
		return core.Depth{}, core.ErrDepthIncomplete
	}
	return s.fallback.Depth(ctx, symbol, limit)
}

func trimDepth(d core.Depth, limit int) core.Depth {
	out := core.Depth{Symbol: d.Symbol, Time: d.Time}
	out.Bids = append([]core.Level(nil), d.Bids...)
	out.Asks = append([]core.Level(nil), d.Asks...)
	if limit > 0 {
		if len(out.Bids) > limit {
			out.Bids = out.Bids[:limit]
		}
		if len(out.Asks) > limit {
			out.Asks = out.Asks[:limit]
		}
	}
	return out
}
