package types

import "time"

// AlertKind distinguishes breach alerts from recovery notices.
type AlertKind string

const (
	AlertBreach   AlertKind = "breach"
	AlertRecovery AlertKind = "recovery"
)

// AlertEvent is a single qualifying threshold transition. Message is the
// human-readable form delivered to sinks and notifiers; the remaining fields
// carry the structured view for history and metrics.
type AlertEvent struct {
	ID        string    `json:"id"`
	Device    Device    `json:"device"`
	Kind      AlertKind `json:"kind"`
	Reading   float64   `json:"reading"`
	Threshold float64   `json:"threshold,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}
