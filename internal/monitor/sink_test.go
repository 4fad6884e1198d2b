package monitor

import (
	"testing"
	"time"

	"github.com/thermawatch/agent/pkg/types"
)

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordSink{}
	b := &recordSink{}
	m := NewMultiSink(testLogger(), a, nil, b)

	ts := time.Unix(1000, 0)
	m.OnSnapshot(ts, snap(70, 60))
	m.OnAlert(types.AlertEvent{Device: types.DeviceCPU})
	m.OnLog(ts, snap(70, 60))

	for name, s := range map[string]*recordSink{"a": a, "b": b} {
		if len(s.snapshots) != 1 || len(s.alerts) != 1 || len(s.logs) != 1 {
			t.Errorf("sink %s saw snapshots=%d alerts=%d logs=%d, want 1 each",
				name, len(s.snapshots), len(s.alerts), len(s.logs))
		}
	}
}

type panicSink struct{ NoopSink }

func (panicSink) OnSnapshot(time.Time, types.Snapshot) { panic("display crashed") }

func TestMultiSinkIsolatesPanics(t *testing.T) {
	healthy := &recordSink{}
	m := NewMultiSink(testLogger(), panicSink{}, healthy)

	m.OnSnapshot(time.Unix(1000, 0), snap(70, 60))

	if len(healthy.snapshots) != 1 {
		t.Fatal("healthy sink starved by a panicking sibling")
	}
}

func TestSinkFuncsSkipsNilSlots(t *testing.T) {
	var alerts int
	s := SinkFuncs{Alert: func(types.AlertEvent) { alerts++ }}

	ts := time.Unix(1000, 0)
	s.OnSnapshot(ts, snap(70, 60)) // nil slot, must not panic
	s.OnLog(ts, snap(70, 60))
	s.OnAlert(types.AlertEvent{})

	if alerts != 1 {
		t.Errorf("alerts = %d, want 1", alerts)
	}
}
