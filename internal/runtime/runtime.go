// Package runtime assembles the agent: sensors, alert engine, monitor loop,
// sinks and notification delivery, wired together from the settings manager.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/internal/alert"
	"github.com/thermawatch/agent/internal/config"
	"github.com/thermawatch/agent/internal/health"
	"github.com/thermawatch/agent/internal/history"
	"github.com/thermawatch/agent/internal/metrics"
	"github.com/thermawatch/agent/internal/monitor"
	"github.com/thermawatch/agent/internal/notify"
	"github.com/thermawatch/agent/internal/sensors"
	"github.com/thermawatch/agent/internal/templog"
	"github.com/thermawatch/agent/pkg/types"
)

const historyAppendTimeout = 5 * time.Second

type Option func(*cfg)

type cfg struct {
	source    sensors.Source
	notifiers []notify.Notifier
	history   *history.Store
	now       func() time.Time
	watch     bool
}

// WithSource overrides the sensor source, for tests and simulations.
func WithSource(src sensors.Source) Option {
	return func(c *cfg) { c.source = src }
}

// WithNotifiers overrides the outward notification channels.
func WithNotifiers(ns ...notify.Notifier) Option {
	return func(c *cfg) { c.notifiers = ns }
}

// WithHistory attaches a persistent alert history store.
func WithHistory(store *history.Store) Option {
	return func(c *cfg) { c.history = store }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *cfg) { c.now = now }
}

// WithConfigWatch toggles live reloading of the settings file.
func WithConfigWatch(enabled bool) Option {
	return func(c *cfg) { c.watch = enabled }
}

// Runtime owns the assembled agent components.
type Runtime struct {
	log        *logrus.Logger
	manager    *config.Manager
	engine     *alert.Engine
	loop       *monitor.Loop
	dispatcher *notify.Dispatcher
	checker    *health.Checker
	tempLog    *templog.Writer
	history    *history.Store
	watch      bool
}

// New wires the agent together from the settings manager.
func New(mgr *config.Manager, log *logrus.Logger, opts ...Option) *Runtime {
	c := cfg{watch: true}
	for _, opt := range opts {
		opt(&c)
	}

	engineOpts := []alert.Option{}
	loopOpts := []monitor.Option{}
	if c.now != nil {
		engineOpts = append(engineOpts, alert.WithNow(c.now))
		loopOpts = append(loopOpts, monitor.WithNow(c.now))
	}
	engine := alert.New(mgr, log, engineOpts...)

	source := c.source
	if source == nil {
		source = sensors.NewCached(sensors.NewSystem(mgr, log), sensors.DefaultCacheTTL)
	}

	notifiers := c.notifiers
	if notifiers == nil {
		notifiers = buildNotifiers(mgr, log)
	}
	dispatcher := notify.NewDispatcher(log, notifiers)

	tempLog := templog.NewWriter(mgr.GetLogFile(), log)
	checker := health.NewChecker(3 * mgr.GetUpdateInterval())
	collector := metrics.Collector{}

	sinks := []monitor.Sink{collector, dispatcher, tempLog}
	if c.history != nil {
		sinks = append(sinks, historySink(c.history, log))
	}

	loopOpts = append(loopOpts,
		monitor.WithObserver(checker),
		monitor.WithObserver(collector),
	)
	loop := monitor.New(mgr, source, engine, monitor.NewMultiSink(log, sinks...), log, loopOpts...)

	return &Runtime{
		log:        log,
		manager:    mgr,
		engine:     engine,
		loop:       loop,
		dispatcher: dispatcher,
		checker:    checker,
		tempLog:    tempLog,
		history:    c.history,
		watch:      c.watch,
	}
}

// historySink persists alert events as they fire.
func historySink(store *history.Store, log *logrus.Logger) monitor.Sink {
	return monitor.SinkFuncs{
		Alert: func(ev types.AlertEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), historyAppendTimeout)
			defer cancel()
			if err := store.Append(ctx, ev); err != nil {
				log.WithError(err).Warn("alert history write failed")
			}
		},
	}
}

func buildNotifiers(mgr *config.Manager, log *logrus.Logger) []notify.Notifier {
	var notifiers []notify.Notifier
	if mgr.DesktopNotify() {
		notifiers = append(notifiers, notify.NewDesktop())
	}
	if url := mgr.SlackWebhookURL(); url != "" {
		slack, err := notify.NewSlack(url, mgr.SlackChannel())
		if err != nil {
			log.WithError(err).Warn("slack notifier disabled")
		} else {
			notifiers = append(notifiers, slack)
		}
	}
	return notifiers
}

// Start launches the monitor loop, notification delivery and the settings
// watcher. The returned function blocks until all of them have exited after
// ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) func() {
	r.loop.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.dispatcher.Run(ctx)
	}()

	if r.watch {
		watcher, err := config.NewWatcher(r.manager, r.log)
		if err != nil {
			r.log.WithError(err).Warn("settings watcher disabled")
		} else {
			watcher.OnChange(r.applySettings)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = watcher.Run(ctx)
			}()
		}
	}

	return func() {
		<-ctx.Done()
		r.loop.Stop()
		wg.Wait()
	}
}

// applySettings pushes reloaded settings into the running components.
func (r *Runtime) applySettings() {
	r.loop.SetUpdateInterval(r.manager.GetUpdateInterval())
	r.engine.UpdateConfig()
	r.tempLog.SetPath(r.manager.GetLogFile())
	r.dispatcher.ResetSeen()
	r.log.Info("settings applied to running components")
}

// Loop exposes the monitor loop for control surfaces.
func (r *Runtime) Loop() *monitor.Loop { return r.loop }

// Engine exposes the alert engine.
func (r *Runtime) Engine() *alert.Engine { return r.engine }

// Checker exposes the readiness checker.
func (r *Runtime) Checker() *health.Checker { return r.checker }

// History exposes the alert history store, nil when not configured.
func (r *Runtime) History() *history.Store { return r.history }
