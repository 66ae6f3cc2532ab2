// Package safety stops hammering a failing venue: consecutive failures of one
// kind of call open a circuit and later calls of that kind fail fast.
package safety

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"spread-trading/internal/alert"
	"spread-trading/internal/config"
	"spread-trading/internal/core"
	"spread-trading/internal/exchange"
)

type Circuit string

const (
	CircuitPlace  Circuit = "place"
	CircuitCancel Circuit = "cancel"
	CircuitDepth  Circuit = "depth"
)

type state string

const (
	stateClosed   state = "closed"
	stateOpen     state = "open"
	stateHalfOpen state = "half_open"
)

type circuit struct {
	max      int
	failures int
	state    state
	openedAt time.Time
	lastErr  error
	probing  bool
}

type Breaker struct {
	enabled  bool
	cooldown time.Duration
	alerter  alert.Alerter
	log      *zap.SugaredLogger
	now      func() time.Time

	mu       sync.Mutex
	circuits map[Circuit]*circuit
}

func NewBreaker(cfg config.CircuitBreakerConfig, alerter alert.Alerter, log *zap.SugaredLogger) *Breaker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Breaker{
		enabled:  cfg.On(),
		cooldown: time.Duration(cfg.CooldownSec) * time.Second,
		alerter:  alerter,
		log:      log,
		now:      time.Now,
		circuits: map[Circuit]*circuit{
			CircuitPlace:  {max: cfg.MaxPlaceFailures, state: stateClosed},
			CircuitCancel: {max: cfg.MaxCancelFailures, state: stateClosed},
			CircuitDepth:  {max: cfg.MaxDepthFailures, state: stateClosed},
		},
	}
}

// Allow fails fast while the circuit is open. Once the cooldown has passed a
// single probe call is let through.
func (b *Breaker) Allow(name Circuit) error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	c := b.circuits[name]
	if c == nil || c.state == stateClosed {
		b.mu.Unlock()
		return nil
	}
	if c.state == stateOpen && b.now().Sub(c.openedAt) >= b.cooldown {
		c.state = stateHalfOpen
		c.probing = false
	}
	if c.state == stateHalfOpen && !c.probing {
		c.probing = true
		b.mu.Unlock()
		b.log.Infow("circuit_half_open", "circuit", name)
		return nil
	}
	lastErr := c.lastErr
	b.mu.Unlock()
	return fmt.Errorf("%w: %s (last error: %v)", core.ErrCircuitOpen, name, lastErr)
}

// Record feeds a call outcome back. A rejection the venue answered cleanly
// counts as a healthy call.
func (b *Breaker) Record(name Circuit, err error) {
	if b == nil || !b.enabled {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrCircuitOpen) {
		b.mu.Lock()
		if c := b.circuits[name]; c != nil && c.state == stateHalfOpen {
			c.probing = false
		}
		b.mu.Unlock()
		return
	}
	if venueAnswered(err) {
		err = nil
	}
	b.mu.Lock()
	c := b.circuits[name]
	if c == nil || c.max < 1 {
		b.mu.Unlock()
		return
	}
	if err == nil {
		prev := c.state
		failures := c.failures
		c.state = stateClosed
		c.failures = 0
		c.lastErr = nil
		c.probing = false
		b.mu.Unlock()
		if prev != stateClosed {
			b.log.Infow("circuit_recovered", "circuit", name, "from_state", prev)
			b.notify("circuit_recovered", name, map[string]string{"previous_failures": strconv.Itoa(failures)})
		}
		return
	}

	c.lastErr = err
	if c.state == stateHalfOpen {
		c.state = stateOpen
		c.openedAt = b.now()
		c.probing = false
		b.mu.Unlock()
		b.log.Errorw("circuit_reopened", "circuit", name, "err", err)
		b.notify("circuit_reopened", name, map[string]string{"last_error": err.Error()})
		return
	}
	c.failures++
	if c.state == stateOpen || c.failures < c.max {
		b.mu.Unlock()
		return
	}
	c.state = stateOpen
	c.openedAt = b.now()
	failures := c.failures
	b.mu.Unlock()
	b.log.Errorw("circuit_tripped", "circuit", name, "consecutive_failures", failures, "err", err)
	b.notify("circuit_tripped", name, map[string]string{
		"consecutive_failures": strconv.Itoa(failures),
		"cooldown":             b.cooldown.String(),
		"last_error":           err.Error(),
	})
}

func (b *Breaker) State(name Circuit) string {
	if b == nil {
		return string(stateClosed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.circuits[name]; c != nil {
		return string(c.state)
	}
	return string(stateClosed)
}

func (b *Breaker) notify(event string, name Circuit, fields map[string]string) {
	if b.alerter == nil {
		return
	}
	fields["circuit"] = string(name)
	b.alerter.Important(event, fields)
}

func venueAnswered(err error) bool {
	return errors.Is(err, core.ErrOrderNotFound) ||
		errors.Is(err, core.ErrDepthIncomplete) ||
		errors.Is(err, core.ErrBadPrice) ||
		errors.Is(err, core.ErrInvalidOrder)
}

// GuardedExchange routes depth, place and cancel calls through the breaker.
type GuardedExchange struct {
	exchange.Exchange
	breaker *Breaker
}

func NewGuardedExchange(inner exchange.Exchange, breaker *Breaker) *GuardedExchange {
	return &GuardedExchange{Exchange: inner, breaker: breaker}
}

func (g *GuardedExchange) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	if err := g.breaker.Allow(CircuitDepth); err != nil {
		return core.Depth{}, err
	}
	d, err := g.Exchange.Depth(ctx, symbol, limit)
	g.breaker.Record(CircuitDepth, err)
	return d, err
}

func (g *GuardedExchange) PlaceOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if err := g.breaker.Allow(CircuitPlace); err != nil {
		return core.Order{}, err
	}
	placed, err := g.Exchange.PlaceOrder(ctx, order)
	g.breaker.Record(CircuitPlace, err)
	return placed, err
}

func (g *GuardedExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := g.breaker.Allow(CircuitCancel); err != nil {
		return err
	}
	err := g.Exchange.CancelOrder(ctx, symbol, orderID)
	g.breaker.Record(CircuitCancel, err)
	return err
}
