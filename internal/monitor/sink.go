package monitor

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/pkg/types"
)

// Sink receives the results of an accepted poll cycle. OnSnapshot carries the
// fresh readings (display surfaces), OnAlert each qualifying threshold
// transition, and OnLog the readings destined for the temperature CSV when
// logging is enabled. All three are invoked synchronously from the polling
// goroutine with the cycle timestamp.
type Sink interface {
	OnSnapshot(ts time.Time, snap types.Snapshot)
	OnAlert(ev types.AlertEvent)
	OnLog(ts time.Time, snap types.Snapshot)
}

// NoopSink ignores everything. Embed it to implement a partial sink.
type NoopSink struct{}

func (NoopSink) OnSnapshot(time.Time, types.Snapshot) {}
func (NoopSink) OnAlert(types.AlertEvent)             {}
func (NoopSink) OnLog(time.Time, types.Snapshot)      {}

// SinkFuncs adapts plain callbacks to the Sink interface; nil slots are
// skipped.
type SinkFuncs struct {
	Snapshot func(time.Time, types.Snapshot)
	Alert    func(types.AlertEvent)
	Log      func(time.Time, types.Snapshot)
}

func (s SinkFuncs) OnSnapshot(ts time.Time, snap types.Snapshot) {
	if s.Snapshot != nil {
		s.Snapshot(ts, snap)
	}
}

func (s SinkFuncs) OnAlert(ev types.AlertEvent) {
	if s.Alert != nil {
		s.Alert(ev)
	}
}

func (s SinkFuncs) OnLog(ts time.Time, snap types.Snapshot) {
	if s.Log != nil {
		s.Log(ts, snap)
	}
}

// MultiSink fans out to several sinks. A panicking member is logged and the
// remaining members still run; one misbehaving consumer must not starve the
// others.
type MultiSink struct {
	log   logrus.FieldLogger
	sinks []Sink
}

// NewMultiSink builds a fan-out sink. Nil members are dropped.
func NewMultiSink(log logrus.FieldLogger, sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{log: log, sinks: kept}
}

func (m *MultiSink) OnSnapshot(ts time.Time, snap types.Snapshot) {
	for _, s := range m.sinks {
		m.safe("snapshot", func() { s.OnSnapshot(ts, snap) })
	}
}

func (m *MultiSink) OnAlert(ev types.AlertEvent) {
	for _, s := range m.sinks {
		m.safe("alert", func() { s.OnAlert(ev) })
	}
}

func (m *MultiSink) OnLog(ts time.Time, snap types.Snapshot) {
	for _, s := range m.sinks {
		m.safe("log", func() { s.OnLog(ts, snap) })
	}
}

func (m *MultiSink) safe(kind string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			m.log.WithFields(logrus.Fields{"sink": kind, "panic": p}).Error("sink failed")
		}
	}()
	fn()
}
