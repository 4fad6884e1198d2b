package runtime

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/internal/config"
	"github.com/thermawatch/agent/internal/history"
	"github.com/thermawatch/agent/internal/sensors"
	"github.com/thermawatch/agent/pkg/types"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testManager(t *testing.T) *config.Manager {
	t.Helper()
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "settings.yaml"), testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestRuntimeRunsCyclesAndStops(t *testing.T) {
	mgr := testManager(t)
	src := sensors.Static{Snap: types.Snapshot{
		types.DeviceCPU: types.ReadingOf(60),
	}}

	rt := New(mgr, testLogger(),
		WithSource(src),
		WithNotifiers(),
		WithConfigWatch(false),
	)

	ctx, cancel := context.WithCancel(context.Background())
	wait := rt.Start(ctx)

	deadline := time.After(3 * time.Second)
	for rt.Loop().CurrentTemperatures() == nil {
		select {
		case <-deadline:
			t.Fatal("no cycle completed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	done := make(chan struct{})
	go func() { wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("runtime did not shut down")
	}
	if rt.Loop().IsRunning() {
		t.Fatal("loop still running after shutdown")
	}
}

func TestRuntimePersistsAlertsToHistory(t *testing.T) {
	mgr := testManager(t)
	if err := mgr.SetThreshold(types.DeviceCPU, 50); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	src := sensors.Static{Snap: types.Snapshot{
		types.DeviceCPU: types.ReadingOf(60), // above the 50 threshold
	}}

	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), 10)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()

	rt := New(mgr, testLogger(),
		WithSource(src),
		WithNotifiers(),
		WithHistory(store),
		WithConfigWatch(false),
	)

	ctx, cancel := context.WithCancel(context.Background())
	wait := rt.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		n, err := store.Len(context.Background())
		if err != nil {
			t.Fatalf("Len: %v", err)
		}
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no alert reached the history store")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	wait()

	events, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if events[0].Device != types.DeviceCPU || events[0].Kind != types.AlertBreach {
		t.Errorf("recorded event = %+v", events[0])
	}
}
