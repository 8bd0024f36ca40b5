package models

import "time"

// Status is the normalized outcome of a single check, and the aggregated
// health of a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusWarning Status = "warning"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

// Priority orders statuses for worst-status-wins aggregation:
// down=3, warning=2, online=1, unknown=0.
func (s Status) Priority() int {
	switch s {
	case StatusDown:
		return 3
	case StatusWarning:
		return 2
	case StatusOnline:
		return 1
	default:
		return 0
	}
}

// Degraded reports whether the status should raise an alert.
func (s Status) Degraded() bool {
	return s == StatusWarning || s == StatusDown
}

// DeviceStatus is the derived health of a device. It is computed on demand
// from the latest result of every monitor and never persisted.
type DeviceStatus struct {
	DeviceID       string     `json:"device_id"`
	Status         Status     `json:"status"`
	ResponseTimeMs *int64     `json:"response_time_ms"`
	LastChecked    *time.Time `json:"last_checked"`
	MonitorCount   int        `json:"monitor_count"`
}
