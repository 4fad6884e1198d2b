package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/pkg/types"
)

const sampleSettings = `
thresholds:
  cpu: 75
  gpu: 88
general:
  update_interval: 2
  alert_cooldown: 120
  log_temperatures: false
  log_file: temps.csv
hardware:
  monitor_gpu: false
`

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be created: %v", err)
	}
	if got := m.GetThreshold(types.DeviceCPU); got != 85 {
		t.Fatalf("unexpected CPU threshold: %v", got)
	}
	if got := m.GetAlertCooldown(); got != 300*time.Second {
		t.Fatalf("unexpected cooldown: %v", got)
	}
	if got := m.GetUpdateInterval(); got != 5*time.Second {
		t.Fatalf("unexpected update interval: %v", got)
	}
	if !m.GetLogTemperatures() {
		t.Fatalf("expected temperature logging enabled by default")
	}
}

func TestLoadExistingSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(sampleSettings), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	if got := m.GetThreshold(types.DeviceCPU); got != 75 {
		t.Fatalf("unexpected CPU threshold: %v", got)
	}
	if got := m.GetUpdateInterval(); got != 2*time.Second {
		t.Fatalf("unexpected update interval: %v", got)
	}
	if m.GetLogTemperatures() {
		t.Fatalf("expected temperature logging disabled")
	}
	if m.MonitorEnabled(types.DeviceGPU) {
		t.Fatalf("expected GPU sampling disabled")
	}
	if !m.MonitorEnabled(types.DeviceCPU) {
		t.Fatalf("expected CPU sampling to default to enabled")
	}
}

func TestGetThresholdSeedsMissingValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(sampleSettings), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	// SSD threshold is absent from the file: fetching seeds the default
	// and persists it.
	if got := m.GetThreshold(types.DeviceSSD); got != 70 {
		t.Fatalf("unexpected seeded SSD threshold: %v", got)
	}

	reopened, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("reopen settings: %v", err)
	}
	if got := reopened.GetThreshold(types.DeviceSSD); got != 70 {
		t.Fatalf("seeded SSD threshold not persisted: %v", got)
	}
}

func TestSetThresholdPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if err := m.SetThreshold(types.DeviceGPU, 95); err != nil {
		t.Fatalf("SetThreshold returned error: %v", err)
	}
	if err := m.SetThreshold(types.Device("NVME1"), 65); err != nil {
		t.Fatalf("SetThreshold extra device returned error: %v", err)
	}

	reopened, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("reopen settings: %v", err)
	}
	if got := reopened.GetThreshold(types.DeviceGPU); got != 95 {
		t.Fatalf("unexpected GPU threshold after reopen: %v", got)
	}
	if got := reopened.GetThreshold(types.Device("NVME1")); got != 65 {
		t.Fatalf("unexpected extra threshold after reopen: %v", got)
	}
}

func TestReloadPicksUpDiskChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if got := m.GetAlertCooldown(); got != 300*time.Second {
		t.Fatalf("unexpected initial cooldown: %v", got)
	}

	if err := os.WriteFile(path, []byte("general:\n  alert_cooldown: 60\n"), 0o600); err != nil {
		t.Fatalf("rewrite settings: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if got := m.GetAlertCooldown(); got != 60*time.Second {
		t.Fatalf("unexpected cooldown after reload: %v", got)
	}
}

func TestWatcherFiresOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	m, err := NewManager(path, testLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	w, err := NewWatcher(m, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher returned error: %v", err)
	}

	changed := make(chan struct{}, 1)
	w.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Give the watcher a moment to be scheduled before mutating the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("general:\n  alert_cooldown: 42\n"), 0o600); err != nil {
		t.Fatalf("rewrite settings: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatalf("watcher did not observe settings change")
	}
	if got := m.GetAlertCooldown(); got != 42*time.Second {
		t.Fatalf("unexpected cooldown after watch reload: %v", got)
	}
}
