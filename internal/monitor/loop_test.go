package monitor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/pkg/types"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeConfig struct {
	interval time.Duration
	logTemps bool
}

func (c *fakeConfig) GetUpdateInterval() time.Duration { return c.interval }
func (c *fakeConfig) GetLogTemperatures() bool         { return c.logTemps }

type fakeSource struct {
	mu    sync.Mutex
	snaps []types.Snapshot
}

func (s *fakeSource) Snapshot(context.Context) types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return types.Snapshot{}
	}
	next := s.snaps[0]
	if len(s.snaps) > 1 {
		s.snaps = s.snaps[1:]
	}
	return next
}

type fakeEngine struct {
	events []types.AlertEvent
	calls  int
	panics bool
}

func (e *fakeEngine) CheckThresholds(types.Snapshot) []types.AlertEvent {
	e.calls++
	if e.panics {
		panic("engine blew up")
	}
	return e.events
}

type recordSink struct {
	snapshots []types.Snapshot
	alerts    []types.AlertEvent
	logs      []types.Snapshot
}

func (r *recordSink) OnSnapshot(_ time.Time, snap types.Snapshot) {
	r.snapshots = append(r.snapshots, snap)
}
func (r *recordSink) OnAlert(ev types.AlertEvent)            { r.alerts = append(r.alerts, ev) }
func (r *recordSink) OnLog(_ time.Time, snap types.Snapshot) { r.logs = append(r.logs, snap) }

type recordObserver struct {
	cycles int
	skips  []string
}

func (r *recordObserver) ObserveCycle(time.Time)                 { r.cycles++ }
func (r *recordObserver) ObserveSkip(_ time.Time, reason string) { r.skips = append(r.skips, reason) }

func snap(cpu, gpu float64) types.Snapshot {
	return types.Snapshot{
		types.DeviceCPU: types.ReadingOf(cpu),
		types.DeviceGPU: types.ReadingOf(gpu),
	}
}

func newTestLoop(t *testing.T, cfg *fakeConfig, src *fakeSource, eng *fakeEngine, sink Sink, obs Observer) *Loop {
	t.Helper()
	opts := []Option{WithNow(func() time.Time { return time.Unix(1000, 0) })}
	if obs != nil {
		opts = append(opts, WithObserver(obs))
	}
	return New(cfg, src, eng, sink, testLogger(), opts...)
}

func TestCurrentTemperaturesNilBeforeFirstCycle(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second}
	src := &fakeSource{snaps: []types.Snapshot{snap(70, 60)}}
	l := newTestLoop(t, cfg, src, &fakeEngine{}, &recordSink{}, nil)

	if got := l.CurrentTemperatures(); got != nil {
		t.Fatalf("CurrentTemperatures before any cycle = %v, want nil", got)
	}

	l.runCycle(context.Background())
	if got := l.CurrentTemperatures(); got == nil {
		t.Fatal("CurrentTemperatures after an accepted cycle = nil")
	}
}

func TestRunCycleDispatchesToSinks(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second, logTemps: true}
	src := &fakeSource{snaps: []types.Snapshot{snap(70, 60)}}
	eng := &fakeEngine{events: []types.AlertEvent{{Device: types.DeviceCPU, Kind: types.AlertBreach}}}
	sink := &recordSink{}
	obs := &recordObserver{}
	l := newTestLoop(t, cfg, src, eng, sink, obs)

	l.runCycle(context.Background())

	if len(sink.snapshots) != 1 {
		t.Fatalf("OnSnapshot calls = %d, want 1", len(sink.snapshots))
	}
	if len(sink.alerts) != 1 || sink.alerts[0].Device != types.DeviceCPU {
		t.Errorf("alerts = %+v, want one CPU breach", sink.alerts)
	}
	if len(sink.logs) != 1 {
		t.Errorf("OnLog calls = %d, want 1", len(sink.logs))
	}
	if obs.cycles != 1 || len(obs.skips) != 0 {
		t.Errorf("observer saw cycles=%d skips=%v", obs.cycles, obs.skips)
	}
	cur := l.CurrentTemperatures()
	if got := cur[types.DeviceCPU].Value; got != 70 {
		t.Errorf("CurrentTemperatures CPU = %v, want 70", got)
	}
}

func TestRunCycleLogSinkRespectsToggle(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second, logTemps: false}
	src := &fakeSource{snaps: []types.Snapshot{snap(70, 60)}}
	sink := &recordSink{}
	l := newTestLoop(t, cfg, src, &fakeEngine{}, sink, nil)

	l.runCycle(context.Background())

	if len(sink.snapshots) != 1 {
		t.Fatalf("OnSnapshot calls = %d, want 1", len(sink.snapshots))
	}
	if len(sink.logs) != 0 {
		t.Errorf("OnLog calls = %d, want 0 when logging disabled", len(sink.logs))
	}
}

func TestRunCycleSkipsWhenAllAbsent(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second, logTemps: true}
	src := &fakeSource{snaps: []types.Snapshot{{}}}
	eng := &fakeEngine{}
	sink := &recordSink{}
	obs := &recordObserver{}
	l := newTestLoop(t, cfg, src, eng, sink, obs)

	l.runCycle(context.Background())

	if eng.calls != 0 {
		t.Errorf("engine called %d times on an empty cycle", eng.calls)
	}
	if len(sink.snapshots)+len(sink.alerts)+len(sink.logs) != 0 {
		t.Errorf("sinks invoked on an empty cycle: %+v", sink)
	}
	if len(obs.skips) != 1 || obs.skips[0] != SkipNoData {
		t.Errorf("skips = %v, want [%s]", obs.skips, SkipNoData)
	}
}

func TestRunCycleRejectsImplausibleJump(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second, logTemps: true}
	src := &fakeSource{snaps: []types.Snapshot{snap(60, 55), snap(85, 55), snap(62, 55)}}
	sink := &recordSink{}
	obs := &recordObserver{}
	l := newTestLoop(t, cfg, src, &fakeEngine{}, sink, obs)

	l.runCycle(context.Background()) // 60 accepted, baseline
	l.runCycle(context.Background()) // 85 is a 25 degree jump, dropped
	l.runCycle(context.Background()) // 62 compares against 60, accepted

	if len(sink.snapshots) != 2 {
		t.Fatalf("accepted cycles = %d, want 2", len(sink.snapshots))
	}
	if got := sink.snapshots[1][types.DeviceCPU].Value; got != 62 {
		t.Errorf("second accepted CPU = %v, want 62", got)
	}
	if len(obs.skips) != 1 || obs.skips[0] != SkipAnomaly {
		t.Errorf("skips = %v, want [%s]", obs.skips, SkipAnomaly)
	}
	// The rejected cycle must not become the comparison baseline.
	cur := l.CurrentTemperatures()
	if got := cur[types.DeviceCPU].Value; got != 62 {
		t.Errorf("CurrentTemperatures CPU = %v, want 62", got)
	}
}

func TestRunCycleAbsentDeviceDoesNotTripJumpFilter(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second}
	first := snap(60, 55)
	second := types.Snapshot{
		types.DeviceCPU: types.ReadingOf(61),
		types.DeviceGPU: {}, // sensor dropped out this cycle
	}
	src := &fakeSource{snaps: []types.Snapshot{first, second}}
	sink := &recordSink{}
	l := newTestLoop(t, cfg, src, &fakeEngine{}, sink, nil)

	l.runCycle(context.Background())
	l.runCycle(context.Background())

	if len(sink.snapshots) != 2 {
		t.Fatalf("accepted cycles = %d, want 2", len(sink.snapshots))
	}
}

func TestRunCyclePanicBacksOff(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second}
	src := &fakeSource{snaps: []types.Snapshot{snap(60, 55)}}
	eng := &fakeEngine{panics: true}
	obs := &recordObserver{}
	l := newTestLoop(t, cfg, src, eng, &recordSink{}, obs)

	sleep := l.runCycle(context.Background())

	if sleep != errorBackoff {
		t.Errorf("sleep after panic = %v, want %v", sleep, errorBackoff)
	}
	if len(obs.skips) != 1 || obs.skips[0] != SkipPanic {
		t.Errorf("skips = %v, want [%s]", obs.skips, SkipPanic)
	}
}

func TestSleepForCreditsElapsedTime(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second}
	now := time.Unix(1000, 0)
	l := New(cfg, &fakeSource{}, &fakeEngine{}, nil, testLogger(),
		WithNow(func() time.Time { return now }))

	started := now.Add(-2 * time.Second)
	if got := l.sleepFor(started); got != 3*time.Second {
		t.Errorf("sleepFor = %v, want 3s", got)
	}

	started = now.Add(-10 * time.Second)
	if got := l.sleepFor(started); got != minSleep {
		t.Errorf("sleepFor past interval = %v, want floor %v", got, minSleep)
	}
}

func TestSetUpdateIntervalClamps(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second}
	l := New(cfg, &fakeSource{}, &fakeEngine{}, nil, testLogger())

	l.SetUpdateInterval(10 * time.Millisecond)
	if got := l.GetUpdateInterval(); got != minInterval {
		t.Errorf("interval after clamp = %v, want %v", got, minInterval)
	}

	l.SetUpdateInterval(30 * time.Second)
	if got := l.GetUpdateInterval(); got != 30*time.Second {
		t.Errorf("interval = %v, want 30s", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := &fakeConfig{interval: 5 * time.Second}
	src := &fakeSource{snaps: []types.Snapshot{snap(60, 55)}}
	l := New(cfg, src, &fakeEngine{}, &recordSink{}, testLogger())

	if l.IsRunning() {
		t.Fatal("loop reports running before Start")
	}
	l.Start()
	if !l.IsRunning() {
		t.Fatal("loop not running after Start")
	}
	l.Start() // second Start is a no-op

	l.Stop()
	if l.IsRunning() {
		t.Fatal("loop still running after Stop")
	}
	l.Stop() // second Stop is a no-op

	// Restart after a full stop works.
	l.Start()
	if !l.IsRunning() {
		t.Fatal("loop not running after restart")
	}
	l.Stop()
}
