package types

import (
	"sort"
	"strconv"
)

// Device identifies a monitored hardware component.
type Device string

const (
	DeviceCPU Device = "CPU"
	DeviceGPU Device = "GPU"
	DeviceSSD Device = "SSD"
)

// canonicalRank orders the well-known devices ahead of any extras.
var canonicalRank = map[Device]int{
	DeviceCPU: 0,
	DeviceGPU: 1,
	DeviceSSD: 2,
}

// Reading is a single device measurement in degrees Celsius. A failed sensor
// read carries Valid=false; a reading of zero is distinct from no reading.
type Reading struct {
	Value float64
	Valid bool
}

// ReadingOf wraps a valid measurement.
func ReadingOf(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Snapshot is one poll cycle's set of device readings, some possibly absent.
// A device missing from the map was not sampled at all this cycle.
type Snapshot map[Device]Reading

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for dev, r := range s {
		out[dev] = r
	}
	return out
}

// Devices returns the snapshot's devices in canonical order: CPU, GPU, SSD,
// then any remaining devices sorted by name.
func (s Snapshot) Devices() []Device {
	devices := make([]Device, 0, len(s))
	for dev := range s {
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		ri, iKnown := canonicalRank[devices[i]]
		rj, jKnown := canonicalRank[devices[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return devices[i] < devices[j]
		}
	})
	return devices
}

// AllAbsent reports whether no device in the snapshot produced a reading.
func (s Snapshot) AllAbsent() bool {
	for _, r := range s {
		if r.Valid {
			return false
		}
	}
	return true
}

// FormatCelsius renders a temperature without trailing zeros (90 not 90.0),
// matching the text used in alert messages and the CSV log.
func FormatCelsius(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
