// Package monitor runs the periodic sampling loop: read the sensors,
// validate the snapshot, feed it through the alert engine and fan the
// results out to the registered sinks.
package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/internal/sensors"
	"github.com/thermawatch/agent/pkg/types"
)

const (
	// minSleep is the floor applied to the per-cycle sleep so a slow
	// sensor read can never spin the loop hot.
	minSleep = 500 * time.Millisecond

	// maxJump is the largest per-device change, in degrees Celsius,
	// accepted between two consecutive valid readings. Anything bigger
	// is treated as a sensor glitch and the whole cycle is dropped.
	maxJump = 20.0

	// errorBackoff is how long the loop waits after a cycle panics.
	errorBackoff = 5 * time.Second

	// stopTimeout bounds how long Stop waits for the loop goroutine.
	stopTimeout = 5 * time.Second

	// minInterval is the smallest update interval callers may set.
	minInterval = time.Second
)

// Config is the slice of the settings manager the loop reads each cycle.
type Config interface {
	GetUpdateInterval() time.Duration
	GetLogTemperatures() bool
}

// Engine evaluates a snapshot against the configured thresholds.
type Engine interface {
	CheckThresholds(snap types.Snapshot) []types.AlertEvent
}

// Loop drives the monitor cycle. Zero value is not usable; use New.
type Loop struct {
	cfg       Config
	source    sensors.Source
	engine    Engine
	sink      Sink
	observers MultiObserver
	log       *logrus.Logger

	now func() time.Time

	// lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// sampling state
	stateMu      sync.RWMutex
	interval     time.Duration
	lastAccepted types.Snapshot
	current      types.Snapshot
}

// Option adjusts a Loop before it starts.
type Option func(*Loop)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithObserver registers an additional cycle observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// New builds a Loop. A nil sink is replaced with NoopSink.
func New(cfg Config, source sensors.Source, engine Engine, sink Sink, log *logrus.Logger, opts ...Option) *Loop {
	if sink == nil {
		sink = NoopSink{}
	}
	l := &Loop{
		cfg:    cfg,
		source: source,
		engine: engine,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.interval = clampInterval(cfg.GetUpdateInterval(), log)
	return l
}

// Start launches the monitor goroutine. Calling Start while the loop is
// already running is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.log.Debug("monitor loop already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
	l.log.WithField("interval", l.GetUpdateInterval()).Info("monitor loop started")
}

// Stop signals the loop to exit and waits for the current cycle to finish,
// up to a bounded timeout. Calling Stop while stopped is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	cancel()
	select {
	case <-done:
		l.log.Info("monitor loop stopped")
	case <-time.After(stopTimeout):
		l.log.Warn("monitor loop did not stop in time; abandoning goroutine")
	}
}

// IsRunning reports whether the loop goroutine is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// CurrentTemperatures returns a copy of the most recently accepted snapshot.
// Before the first accepted cycle it returns nil.
func (l *Loop) CurrentTemperatures() types.Snapshot {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	if l.current == nil {
		return nil
	}
	return l.current.Clone()
}

// GetUpdateInterval returns the interval the loop is currently sleeping by.
func (l *Loop) GetUpdateInterval() time.Duration {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.interval
}

// SetUpdateInterval changes the cycle interval, clamping to the minimum.
// It takes effect from the next sleep.
func (l *Loop) SetUpdateInterval(d time.Duration) {
	d = clampInterval(d, l.log)
	l.stateMu.Lock()
	l.interval = d
	l.stateMu.Unlock()
}

func clampInterval(d time.Duration, log *logrus.Logger) time.Duration {
	if d < minInterval {
		if log != nil {
			log.WithField("requested", d).Warnf("update interval below %s; clamping", minInterval)
		}
		return minInterval
	}
	return d
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Prime the anomaly filter so the very first monitored cycle has a
	// baseline to compare against instead of rejecting itself.
	initial := l.source.Snapshot(ctx)
	if !initial.AllAbsent() {
		l.stateMu.Lock()
		l.lastAccepted = initial.Clone()
		l.stateMu.Unlock()
	}

	for {
		sleep := l.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle performs one sample/validate/dispatch pass and returns how long
// the loop should sleep before the next one.
func (l *Loop) runCycle(ctx context.Context) (sleep time.Duration) {
	started := l.now()
	sleep = errorBackoff
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("monitor cycle panicked; backing off")
			l.observers.ObserveSkip(l.now(), SkipPanic)
		}
	}()

	snap := l.source.Snapshot(ctx)
	ts := l.now()

	if snap.AllAbsent() {
		l.log.Warn("no sensor data this cycle; skipping")
		l.observers.ObserveSkip(ts, SkipNoData)
		return l.sleepFor(started)
	}

	if dev, delta, ok := l.anomalousJump(snap); ok {
		l.log.WithFields(logrus.Fields{
			"device": dev,
			"delta":  delta,
		}).Warn("implausible temperature jump; skipping cycle")
		l.observers.ObserveSkip(ts, SkipAnomaly)
		return l.sleepFor(started)
	}

	l.sink.OnSnapshot(ts, snap.Clone())

	for _, ev := range l.engine.CheckThresholds(snap) {
		l.sink.OnAlert(ev)
	}

	if l.cfg.GetLogTemperatures() {
		l.sink.OnLog(ts, snap.Clone())
	}

	l.stateMu.Lock()
	l.lastAccepted = snap.Clone()
	l.current = snap.Clone()
	l.stateMu.Unlock()

	l.observers.ObserveCycle(ts)
	return l.sleepFor(started)
}

// anomalousJump reports the first device whose valid reading moved more
// than maxJump degrees from the last accepted snapshot.
func (l *Loop) anomalousJump(snap types.Snapshot) (types.Device, float64, bool) {
	l.stateMu.RLock()
	prev := l.lastAccepted
	l.stateMu.RUnlock()
	if prev == nil {
		return "", 0, false
	}
	for _, dev := range snap.Devices() {
		cur := snap[dev]
		old, seen := prev[dev]
		if !cur.Valid || !seen || !old.Valid {
			continue
		}
		if delta := math.Abs(cur.Value - old.Value); delta > maxJump {
			return dev, delta, true
		}
	}
	return "", 0, false
}

// sleepFor turns the configured interval into the actual sleep, crediting
// time already spent in the cycle but never going below the floor.
func (l *Loop) sleepFor(started time.Time) time.Duration {
	elapsed := l.now().Sub(started)
	sleep := l.GetUpdateInterval() - elapsed
	if sleep < minSleep {
		return minSleep
	}
	return sleep
}
