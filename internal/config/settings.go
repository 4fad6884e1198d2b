package config

import (
	"os"

	"github.com/thermawatch/agent/pkg/types"
)

const (
	envConfigPath     = "THERMAWATCH_CONFIG"
	DefaultConfigPath = "settings.yaml"
)

// PathFromEnv returns the configured settings path, honoring the
// THERMAWATCH_CONFIG override.
func PathFromEnv() string {
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return DefaultConfigPath
}

// Settings is the on-disk shape of the settings file. Zero or missing values
// are seeded with their defaults the first time they are fetched, and the
// seeded file is written back, so a hand-trimmed settings file heals itself.
type Settings struct {
	Thresholds ThresholdSettings `yaml:"thresholds"`
	General    GeneralSettings   `yaml:"general"`
	Hardware   HardwareSettings  `yaml:"hardware"`
	Notify     NotifySettings    `yaml:"notify"`
	Log        LogSettings       `yaml:"log"`
}

// ThresholdSettings holds the per-device alert thresholds in °C.
type ThresholdSettings struct {
	CPU float64 `yaml:"cpu" default:"85"`
	GPU float64 `yaml:"gpu" default:"90"`
	SSD float64 `yaml:"ssd" default:"70"`
	// Extra carries thresholds for devices beyond the built-in three.
	Extra map[string]float64 `yaml:"extra,omitempty"`
}

// GeneralSettings mirrors the [General] section of the legacy settings file.
// Intervals are stored in seconds.
type GeneralSettings struct {
	UpdateIntervalSec float64 `yaml:"update_interval" default:"5"`
	AlertCooldownSec  int     `yaml:"alert_cooldown" default:"300"`
	LogTemperatures   *bool   `yaml:"log_temperatures,omitempty"`
	LogFile           string  `yaml:"log_file" default:"temperature_log.csv"`
}

// HardwareSettings toggles which devices are sampled at all.
type HardwareSettings struct {
	MonitorCPU *bool `yaml:"monitor_cpu,omitempty"`
	MonitorGPU *bool `yaml:"monitor_gpu,omitempty"`
	MonitorSSD *bool `yaml:"monitor_ssd,omitempty"`
}

// NotifySettings configures the notification channels.
type NotifySettings struct {
	Desktop         *bool  `yaml:"desktop,omitempty"`
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty"`
	SlackChannel    string `yaml:"slack_channel" default:"#alerts"`
}

// LogSettings configures the application log (not the temperature CSV).
type LogSettings struct {
	File    string `yaml:"file" default:"logs/thermawatch.log"`
	Level   string `yaml:"level" default:"info"`
	Console *bool  `yaml:"console,omitempty"`
}

const defaultExtraThreshold = 80.0

// DefaultThreshold returns the seed threshold for a device.
func DefaultThreshold(device types.Device) float64 {
	switch device {
	case types.DeviceCPU:
		return 85
	case types.DeviceGPU:
		return 90
	case types.DeviceSSD:
		return 70
	default:
		return defaultExtraThreshold
	}
}

func boolPtr(v bool) *bool { return &v }
