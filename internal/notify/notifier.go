// Package notify delivers alert messages to outward channels: desktop
// notifications and Slack. Delivery is asynchronous so a slow webhook never
// blocks the monitor loop.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/thermawatch/agent/internal/monitor"
	"github.com/thermawatch/agent/pkg/types"
)

// Notifier delivers one alert message to a channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev types.AlertEvent) error
}

const (
	queueDepth  = 64
	sendTimeout = 15 * time.Second
)

// Dispatcher queues alert events from the monitor loop and delivers them to
// the registered notifiers from its own goroutine. Duplicate messages are
// delivered once until ResetSeen; a limiter caps the outbound rate so a
// flapping sensor cannot flood a channel.
type Dispatcher struct {
	monitor.NoopSink

	log     *logrus.Logger
	limiter *rate.Limiter
	queue   chan types.AlertEvent

	mu        sync.Mutex
	notifiers []Notifier
	seen      map[string]struct{}
}

// Option adjusts a Dispatcher.
type Option func(*Dispatcher)

// WithRateLimit overrides the outbound delivery rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			if burst <= 0 {
				burst = int(perSecond)
			}
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewDispatcher builds a dispatcher over the given notifiers. Nil notifiers
// are dropped.
func NewDispatcher(log *logrus.Logger, notifiers []Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		queue:   make(chan types.AlertEvent, queueDepth),
		seen:    make(map[string]struct{}),
	}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnAlert queues an event for delivery. When the queue is full the event is
// dropped with a warning rather than blocking the polling goroutine. Only a
// queued event is marked seen, so a dropped alert may fire again later.
func (d *Dispatcher) OnAlert(ev types.AlertEvent) {
	if d.duplicate(ev) {
		return
	}
	select {
	case d.queue <- ev:
		d.markSeen(ev)
	default:
		d.log.WithField("device", ev.Device).Warn("notification queue full; dropping alert")
	}
}

func (d *Dispatcher) duplicate(ev types.AlertEvent) bool {
	// Recoveries always go out; only repeated breach text is collapsed.
	if ev.Kind == types.AlertRecovery {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[ev.Message]
	return ok
}

func (d *Dispatcher) markSeen(ev types.AlertEvent) {
	if ev.Kind == types.AlertRecovery {
		return
	}
	d.mu.Lock()
	d.seen[ev.Message] = struct{}{}
	d.mu.Unlock()
}

// ResetSeen clears the duplicate-suppression set, e.g. after a threshold or
// config change.
func (d *Dispatcher) ResetSeen() {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev types.AlertEvent) {
	d.mu.Lock()
	targets := make([]Notifier, len(d.notifiers))
	copy(targets, d.notifiers)
	d.mu.Unlock()

	for _, n := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := n.Send(sendCtx, ev)
		cancel()
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"notifier": n.Name(),
				"device":   ev.Device,
			}).Warn("notification delivery failed")
		}
	}
}
