package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jinzhu/configor"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/thermawatch/agent/pkg/types"
)

// Manager owns the settings file. All accessors are safe for concurrent use:
// the polling loop reads thresholds on every check while a settings UI or the
// file watcher may be mutating them.
type Manager struct {
	path string
	log  logrus.FieldLogger

	mu       sync.Mutex
	settings Settings
}

// NewManager loads the settings file at path, creating it with defaults when
// it does not exist yet.
func NewManager(path string, log logrus.FieldLogger) (*Manager, error) {
	m := &Manager{path: filepath.Clean(path), log: log}

	if _, err := os.Stat(m.path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat settings %q: %w", m.path, err)
		}
		if err := m.loadDefaults(); err != nil {
			return nil, err
		}
		m.seedMissingLocked()
		if err := m.saveLocked(); err != nil {
			return nil, err
		}
		m.log.WithField("path", m.path).Info("created default settings file")
		return m, nil
	}

	if err := m.loadFile(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the settings file location.
func (m *Manager) Path() string { return m.path }

func (m *Manager) loadDefaults() error {
	var s Settings
	if err := configor.New(&configor.Config{Silent: true}).Load(&s); err != nil {
		return fmt.Errorf("apply default settings: %w", err)
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return nil
}

func (m *Manager) loadFile() error {
	var s Settings
	if err := configor.New(&configor.Config{Silent: true}).Load(&s, m.path); err != nil {
		return fmt.Errorf("load settings %q: %w", m.path, err)
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return nil
}

// Reload re-reads the settings file, replacing the in-memory view. Used by
// the file watcher for hot reload.
func (m *Manager) Reload() error {
	return m.loadFile()
}

// Save persists the current settings atomically.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	data, err := yaml.Marshal(&m.settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return writeSettingsFile(m.path, data)
}

// persistLocked saves after a seed or mutation; a failed write is logged but
// does not block the caller from using the value.
func (m *Manager) persistLocked() {
	if err := m.saveLocked(); err != nil {
		m.log.WithError(err).Warn("failed to persist settings")
	}
}

// seedMissingLocked fills every optional toggle that has no value yet.
func (m *Manager) seedMissingLocked() {
	g := &m.settings.General
	if g.LogTemperatures == nil {
		g.LogTemperatures = boolPtr(true)
	}
	h := &m.settings.Hardware
	if h.MonitorCPU == nil {
		h.MonitorCPU = boolPtr(true)
	}
	if h.MonitorGPU == nil {
		h.MonitorGPU = boolPtr(true)
	}
	if h.MonitorSSD == nil {
		h.MonitorSSD = boolPtr(true)
	}
	n := &m.settings.Notify
	if n.Desktop == nil {
		n.Desktop = boolPtr(true)
	}
	l := &m.settings.Log
	if l.Console == nil {
		l.Console = boolPtr(true)
	}
}

// GetThreshold returns the alert threshold for a device, seeding and
// persisting the default when the stored value is missing or implausible.
func (m *Manager) GetThreshold(device types.Device) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v float64
	switch device {
	case types.DeviceCPU:
		v = m.settings.Thresholds.CPU
	case types.DeviceGPU:
		v = m.settings.Thresholds.GPU
	case types.DeviceSSD:
		v = m.settings.Thresholds.SSD
	default:
		v = m.settings.Thresholds.Extra[string(device)]
	}
	if v > 0 {
		return v
	}

	def := DefaultThreshold(device)
	m.setThresholdLocked(device, def)
	m.persistLocked()
	return def
}

// SetThreshold stores and persists a device threshold.
func (m *Manager) SetThreshold(device types.Device, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setThresholdLocked(device, value)
	return m.saveLocked()
}

func (m *Manager) setThresholdLocked(device types.Device, value float64) {
	switch device {
	case types.DeviceCPU:
		m.settings.Thresholds.CPU = value
	case types.DeviceGPU:
		m.settings.Thresholds.GPU = value
	case types.DeviceSSD:
		m.settings.Thresholds.SSD = value
	default:
		if m.settings.Thresholds.Extra == nil {
			m.settings.Thresholds.Extra = make(map[string]float64)
		}
		m.settings.Thresholds.Extra[string(device)] = value
	}
}

// GetUpdateInterval returns the polling cadence.
func (m *Manager) GetUpdateInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec := m.settings.General.UpdateIntervalSec
	if sec <= 0 {
		sec = 5
		m.settings.General.UpdateIntervalSec = sec
		m.persistLocked()
	}
	return time.Duration(sec * float64(time.Second))
}

// SetUpdateInterval stores and persists the polling cadence.
func (m *Manager) SetUpdateInterval(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.General.UpdateIntervalSec = d.Seconds()
	return m.saveLocked()
}

// GetAlertCooldown returns the minimum time between breach alerts per device.
func (m *Manager) GetAlertCooldown() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec := m.settings.General.AlertCooldownSec
	if sec <= 0 {
		sec = 300
		m.settings.General.AlertCooldownSec = sec
		m.persistLocked()
	}
	return time.Duration(sec) * time.Second
}

// SetAlertCooldown stores and persists the alert cooldown.
func (m *Manager) SetAlertCooldown(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.General.AlertCooldownSec = int(d.Seconds())
	return m.saveLocked()
}

// GetLogTemperatures reports whether accepted cycles are appended to the
// temperature CSV.
func (m *Manager) GetLogTemperatures() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settings.General.LogTemperatures == nil {
		m.settings.General.LogTemperatures = boolPtr(true)
		m.persistLocked()
	}
	return *m.settings.General.LogTemperatures
}

// SetLogTemperatures stores and persists the CSV logging toggle.
func (m *Manager) SetLogTemperatures(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.General.LogTemperatures = boolPtr(v)
	return m.saveLocked()
}

// GetLogFile returns the temperature CSV path.
func (m *Manager) GetLogFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settings.General.LogFile == "" {
		m.settings.General.LogFile = "temperature_log.csv"
		m.persistLocked()
	}
	return m.settings.General.LogFile
}

// MonitorEnabled reports whether the given device should be sampled.
// Unknown devices default to enabled.
func (m *Manager) MonitorEnabled(device types.Device) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v **bool
	switch device {
	case types.DeviceCPU:
		v = &m.settings.Hardware.MonitorCPU
	case types.DeviceGPU:
		v = &m.settings.Hardware.MonitorGPU
	case types.DeviceSSD:
		v = &m.settings.Hardware.MonitorSSD
	default:
		return true
	}
	if *v == nil {
		*v = boolPtr(true)
		m.persistLocked()
	}
	return **v
}

// SetMonitorEnabled stores and persists a device sampling toggle.
func (m *Manager) SetMonitorEnabled(device types.Device, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch device {
	case types.DeviceCPU:
		m.settings.Hardware.MonitorCPU = boolPtr(enabled)
	case types.DeviceGPU:
		m.settings.Hardware.MonitorGPU = boolPtr(enabled)
	case types.DeviceSSD:
		m.settings.Hardware.MonitorSSD = boolPtr(enabled)
	default:
		return fmt.Errorf("unknown device %q", device)
	}
	return m.saveLocked()
}

// DesktopNotify reports whether desktop notifications are enabled.
func (m *Manager) DesktopNotify() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settings.Notify.Desktop == nil {
		m.settings.Notify.Desktop = boolPtr(true)
		m.persistLocked()
	}
	return *m.settings.Notify.Desktop
}

// SlackWebhookURL returns the Slack webhook, empty when Slack notifications
// are disabled.
func (m *Manager) SlackWebhookURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Notify.SlackWebhookURL
}

// SlackChannel returns the Slack channel for alert notifications.
func (m *Manager) SlackChannel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.Notify.SlackChannel == "" {
		m.settings.Notify.SlackChannel = "#alerts"
		m.persistLocked()
	}
	return m.settings.Notify.SlackChannel
}

// AppLog returns the application log settings.
func (m *Manager) AppLog() LogSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.Log.Console == nil {
		m.settings.Log.Console = boolPtr(true)
	}
	return m.settings.Log
}
