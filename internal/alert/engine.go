// Package alert implements the per-device edge-triggered alert state machine
// with cooldown suppression.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/pkg/types"
)

// Config supplies the values the engine reads. Thresholds are fetched fresh
// on every check so settings edits take effect immediately; the cooldown is
// cached and refreshed only via UpdateConfig.
type Config interface {
	GetThreshold(types.Device) float64
	GetAlertCooldown() time.Duration
}

type deviceState struct {
	active        bool
	lastTriggered time.Time
	// rearmed is set by ResetAlert: the next breach fires even inside the
	// cooldown window, without the cooldown clock having been touched.
	rearmed bool
}

// Engine tracks per-device alert state. States are created inactive at
// construction and live for the process lifetime.
type Engine struct {
	cfg Config
	log logrus.FieldLogger
	now func() time.Time

	mu       sync.RWMutex
	states   map[types.Device]*deviceState
	cooldown time.Duration
	actions  map[types.Device]func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an engine with inactive state for the built-in devices.
// State for any further device is created on first sight.
func New(cfg Config, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		log: log,
		now: time.Now,
		states: map[types.Device]*deviceState{
			types.DeviceCPU: {},
			types.DeviceGPU: {},
			types.DeviceSSD: {},
		},
		cooldown: cfg.GetAlertCooldown(),
		actions:  make(map[types.Device]func()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckThresholds evaluates a snapshot and returns the qualifying
// transitions, in the snapshot's canonical device order. Devices with an
// absent reading are skipped entirely: no event, no state change. Breaches
// inside the cooldown window are suppressed; recoveries never are.
func (e *Engine) CheckThresholds(snap types.Snapshot) []types.AlertEvent {
	now := e.now()

	var events []types.AlertEvent
	var pendingActions []func()

	e.mu.Lock()
	for _, device := range snap.Devices() {
		reading := snap[device]
		if !reading.Valid {
			continue
		}

		threshold := e.cfg.GetThreshold(device)
		st := e.states[device]
		if st == nil {
			st = &deviceState{}
			e.states[device] = st
		}

		if reading.Value > threshold {
			if now.Sub(st.lastTriggered) < e.cooldown && !st.rearmed {
				e.log.WithField("device", device).Debug("breach within cooldown, suppressed")
				continue
			}

			st.active = true
			st.lastTriggered = now
			st.rearmed = false

			events = append(events, types.AlertEvent{
				ID:        uuid.NewString(),
				Device:    device,
				Kind:      types.AlertBreach,
				Reading:   reading.Value,
				Threshold: threshold,
				Message: fmt.Sprintf("%s over threshold: %s°C (threshold: %s°C)",
					device, types.FormatCelsius(reading.Value), types.FormatCelsius(threshold)),
				Timestamp: now,
			})

			if action := e.actions[device]; action != nil {
				pendingActions = append(pendingActions, action)
			}
		} else if st.active {
			st.active = false
			events = append(events, types.AlertEvent{
				ID:      uuid.NewString(),
				Device:  device,
				Kind:    types.AlertRecovery,
				Reading: reading.Value,
				Message: fmt.Sprintf("%s temperature recovered: %s°C",
					device, types.FormatCelsius(reading.Value)),
				Timestamp: now,
			})
		}
	}
	e.mu.Unlock()

	// Custom actions run outside the lock so they may call back into the
	// engine. A panicking action must not disturb the returned events.
	for _, action := range pendingActions {
		e.runAction(action)
	}

	return events
}

func (e *Engine) runAction(action func()) {
	defer func() {
		if p := recover(); p != nil {
			e.log.WithField("panic", p).Error("custom alert action failed")
		}
	}()
	action()
}

// IsAlertActive reports whether the device is currently in breach. Unknown
// devices are never active.
func (e *Engine) IsAlertActive(device types.Device) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := e.states[device]
	return st != nil && st.active
}

// LastAlertTime returns when the device last fired a breach alert, or the
// zero time for devices that never alerted or are unknown.
func (e *Engine) LastAlertTime(device types.Device) time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := e.states[device]
	if st == nil {
		return time.Time{}
	}
	return st.lastTriggered
}

// ResetAlert clears the active flag without touching the cooldown clock. The
// next over-threshold reading fires a fresh breach alert even inside the
// original cooldown window. Used after threshold changes.
func (e *Engine) ResetAlert(device types.Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[device]
	if st == nil {
		return
	}
	st.active = false
	st.rearmed = true
	e.log.WithField("device", device).Info("alert state reset")
}

// SetCustomAlertAction registers a callback invoked on each new breach for
// the device. The last registration wins; nil removes it.
func (e *Engine) SetCustomAlertAction(device types.Device, action func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if action == nil {
		delete(e.actions, device)
		return
	}
	e.actions[device] = action
}

// UpdateConfig refreshes the cached cooldown. Call after settings change.
func (e *Engine) UpdateConfig() {
	cooldown := e.cfg.GetAlertCooldown()
	e.mu.Lock()
	e.cooldown = cooldown
	e.mu.Unlock()
	e.log.WithField("cooldown", cooldown).Info("alert engine configuration updated")
}
