// Package alert delivers operator notifications without blocking the
// trading loop.
package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter is what the engine and the breaker depend on.
type Alerter interface {
	Important(event string, fields map[string]string)
}

const (
	defaultQueueSize          = 128
	defaultDropReportInterval = time.Minute
	notifyTimeout             = 20 * time.Second
)

type Options struct {
	Mode               string
	InstanceID         string
	QueueSize          int
	DropReportInterval time.Duration
	Log                *zap.SugaredLogger
}

// Manager queues alerts and sends them from one goroutine. When the queue is
// full alerts are dropped and counted.
type Manager struct {
	opts     Options
	log      *zap.SugaredLogger
	notifier Notifier
	queue    chan pending

	dropped       atomic.Uint64
	droppedWindow atomic.Uint64

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
	done   chan struct{}
}

type pending struct {
	event  string
	fields map[string]string
	at     time.Time
}

// NewManager returns nil for a nil notifier; a nil *Manager is a valid no-op
// Alerter.
func NewManager(notifier Notifier, opts Options) *Manager {
	if notifier == nil {
		return nil
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.DropReportInterval < 0 {
		opts.DropReportInterval = 0
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Manager{
		opts:     opts,
		log:      log,
		notifier: notifier,
		queue:    make(chan pending, opts.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sendLoop()
	if opts.DropReportInterval > 0 {
		m.wg.Add(1)
		go m.reportLoop()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil {
		return
	}
	p := pending{event: event, fields: copyFields(fields), at: time.Now().UTC()}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- p:
	default:
		total := m.dropped.Add(1)
		if m.droppedWindow.Add(1) == 1 {
			m.log.Warnw("alert_queue_dropped",
				"target_event", event,
				"dropped_total", total,
				"queue_cap", cap(m.queue),
			)
		}
	}
}

// Close stops intake and waits for queued alerts to be sent.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stop)
	}
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) sendLoop() {
	defer m.wg.Done()
	for {
		select {
		case p := <-m.queue:
			m.send(p)
		case <-m.stop:
			for {
				select {
				case p := <-m.queue:
					m.send(p)
				default:
					m.reportDropped()
					return
				}
			}
		}
	}
}

func (m *Manager) reportLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.DropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reportDropped()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) reportDropped() {
	n := m.droppedWindow.Swap(0)
	if n == 0 {
		return
	}
	m.log.Warnw("alert_queue_dropped_report",
		"dropped_since_last", n,
		"dropped_total", m.dropped.Load(),
	)
}

func (m *Manager) send(p pending) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.format(p)); err != nil {
		m.log.Errorw("alert_notify_failed", "target_event", p.event, "err", err)
	}
}

func (m *Manager) format(p pending) string {
	var b strings.Builder
	b.WriteString("[spread-trading] " + p.event + "\n")
	b.WriteString("time: " + p.at.Format(time.RFC3339) + "\n")
	b.WriteString("mode: " + m.opts.Mode + "\n")
	b.WriteString("instance: " + m.opts.InstanceID)
	keys := make([]string, 0, len(p.fields))
	for k := range p.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n" + k + ": " + p.fields[k])
	}
	return b.String()
}

func copyFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
