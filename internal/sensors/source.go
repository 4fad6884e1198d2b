// Package sensors reads hardware temperatures. A failed read for one device
// surfaces as an absent reading for that device, never as an error for the
// whole snapshot.
package sensors

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/pkg/types"
)

// Source produces a fresh temperature snapshot. A blocked underlying probe
// blocks the caller; snapshot acquisition is not cancellable mid-read.
type Source interface {
	Snapshot(ctx context.Context) types.Snapshot
}

// Static always returns the same readings. Used by tests and the check
// subcommand's fixtures.
type Static struct {
	Snap types.Snapshot
}

func (s Static) Snapshot(context.Context) types.Snapshot {
	return s.Snap.Clone()
}

// Toggles selects which devices the system source samples at all. A disabled
// device is left out of the snapshot entirely.
type Toggles interface {
	MonitorEnabled(types.Device) bool
}

// System reads CPU, GPU and SSD temperatures from the host.
type System struct {
	cfg Toggles
	log logrus.FieldLogger

	readCPU func() (float64, bool)
	readGPU func() (float64, bool)
	readSSD func() (float64, bool)
}

// NewSystem builds the host sensor source with the platform readers.
func NewSystem(cfg Toggles, log logrus.FieldLogger) *System {
	return &System{
		cfg:     cfg,
		log:     log,
		readCPU: readCPUTemp,
		readGPU: readGPUTemp,
		readSSD: readSSDTemp,
	}
}

func (s *System) Snapshot(context.Context) types.Snapshot {
	snap := types.Snapshot{}
	s.sample(snap, types.DeviceCPU, s.readCPU)
	s.sample(snap, types.DeviceGPU, s.readGPU)
	s.sample(snap, types.DeviceSSD, s.readSSD)
	return snap
}

func (s *System) sample(snap types.Snapshot, device types.Device, read func() (float64, bool)) {
	if !s.cfg.MonitorEnabled(device) {
		return
	}
	v, ok := read()
	if !ok {
		s.log.WithField("device", device).Debug("sensor read failed")
		snap[device] = types.Reading{}
		return
	}
	snap[device] = types.ReadingOf(v)
}
