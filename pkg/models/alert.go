package models

import "time"

// Severity of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// AlertStatus is the lifecycle state of an alert. Transitions only move
// forward: active -> acknowledged -> resolved, or active -> resolved.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertResolved:
		return true
	}
	return false
}

// SeverityFor maps a degraded check status to an alert severity.
func SeverityFor(s Status) Severity {
	switch s {
	case StatusDown:
		return SeverityDanger
	case StatusWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Alert records one incident for a (device, monitor) pair. AcknowledgedAt and
// ResolvedAt are set at most once.
type Alert struct {
	ID             string      `json:"id"`
	DeviceID       string      `json:"device_id"`
	MonitorID      string      `json:"monitor_id"`
	Message        string      `json:"message"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at"`
	ResolvedAt     *time.Time  `json:"resolved_at"`
}

// Unresolved reports whether the alert is still open.
func (a *Alert) Unresolved() bool {
	return a.Status == AlertActive || a.Status == AlertAcknowledged
}
