package models

import "time"

// MonitorResult is one immutable check outcome. Results are append-only.
type MonitorResult struct {
	ID             int64          `json:"id"`
	MonitorID      string         `json:"monitor_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         Status         `json:"status"`
	ResponseTimeMs *int64         `json:"response_time_ms"`
	Detail         map[string]any `json:"detail,omitempty"`
}
