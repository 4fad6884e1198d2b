package monitor

import "time"

// Cycle skip reasons reported to observers.
const (
	SkipNoData  = "no_data"
	SkipAnomaly = "anomaly"
	SkipPanic   = "panic"
)

// Observer is told about every cycle outcome, accepted or skipped. Health
// checking and metrics hang off this; sinks only ever see accepted cycles.
type Observer interface {
	ObserveCycle(ts time.Time)
	ObserveSkip(ts time.Time, reason string)
}

// NoopObserver ignores all cycle outcomes.
type NoopObserver struct{}

func (NoopObserver) ObserveCycle(time.Time)        {}
func (NoopObserver) ObserveSkip(time.Time, string) {}

// MultiObserver fans cycle outcomes out to several observers.
type MultiObserver []Observer

func (m MultiObserver) ObserveCycle(ts time.Time) {
	for _, o := range m {
		if o != nil {
			o.ObserveCycle(ts)
		}
	}
}

func (m MultiObserver) ObserveSkip(ts time.Time, reason string) {
	for _, o := range m {
		if o != nil {
			o.ObserveSkip(ts, reason)
		}
	}
}
