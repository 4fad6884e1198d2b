// Package health evaluates readiness of the monitoring loop for the
// /readyz endpoint.
package health

import (
	"fmt"
	"sync"
	"time"
)

const (
	defaultStaleAfter = time.Minute
	maxSkipStreak     = 5
)

// Checker tracks cycle outcomes reported by the monitor loop and decides
// whether the agent is producing usable data.
type Checker struct {
	staleAfter time.Duration

	mu         sync.RWMutex
	lastCycle  time.Time
	skipStreak int
	lastSkip   string
}

// NewChecker constructs a readiness checker. staleAfter bounds how old the
// last accepted cycle may be before the agent reports not ready.
func NewChecker(staleAfter time.Duration) *Checker {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Checker{staleAfter: staleAfter}
}

// ObserveCycle records an accepted monitor cycle.
func (c *Checker) ObserveCycle(ts time.Time) {
	c.mu.Lock()
	c.lastCycle = ts
	c.skipStreak = 0
	c.lastSkip = ""
	c.mu.Unlock()
}

// ObserveSkip records a rejected or failed cycle.
func (c *Checker) ObserveSkip(_ time.Time, reason string) {
	c.mu.Lock()
	c.skipStreak++
	c.lastSkip = reason
	c.mu.Unlock()
}

// Ready evaluates all readiness conditions and returns the overall status
// and the reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	c.mu.RLock()
	lastCycle := c.lastCycle
	skipStreak := c.skipStreak
	lastSkip := c.lastSkip
	c.mu.RUnlock()

	reasons := make([]string, 0, 2)

	if lastCycle.IsZero() {
		reasons = append(reasons, "no monitor cycle completed yet")
	} else if now.Sub(lastCycle) > c.staleAfter {
		reasons = append(reasons, fmt.Sprintf("monitor data stale (%s)", now.Sub(lastCycle).Round(time.Second)))
	}

	if skipStreak >= maxSkipStreak {
		reasons = append(reasons, fmt.Sprintf("%d consecutive cycles skipped (%s)", skipStreak, lastSkip))
	}

	if len(reasons) > 0 {
		return false, reasons
	}
	return true, nil
}
