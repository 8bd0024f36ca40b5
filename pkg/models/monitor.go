package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every monitor configuration validation
// failure.
var ErrInvalidConfig = errors.New("invalid monitor configuration")

// MonitorKind identifies the protocol a monitor checks with.
type MonitorKind string

const (
	KindICMP MonitorKind = "icmp"
	KindHTTP MonitorKind = "http"
	KindTCP  MonitorKind = "tcp"
	KindSNMP MonitorKind = "snmp"
)

// Valid reports whether k is one of the supported protocols.
func (k MonitorKind) Valid() bool {
	switch k {
	case KindICMP, KindHTTP, KindTCP, KindSNMP:
		return true
	}
	return false
}

// Interval bounds in seconds.
const (
	MinIntervalSeconds     = 10
	MaxIntervalSeconds     = 3600
	DefaultIntervalSeconds = 60
)

// Monitor is one recurring health check for one device.
type Monitor struct {
	ID              string        `json:"id"`
	DeviceID        string        `json:"device_id"`
	Kind            MonitorKind   `json:"type"`
	Config          MonitorConfig `json:"config"`
	Enabled         bool          `json:"enabled"`
	IntervalSeconds int           `json:"interval"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Interval returns the check interval as a duration.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Validate checks the monitor's kind, interval and protocol configuration.
// minSec and maxSec bound the interval; zero values use the package defaults.
func (m *Monitor) Validate(minSec, maxSec int) error {
	if minSec <= 0 {
		minSec = MinIntervalSeconds
	}
	if maxSec <= 0 {
		maxSec = MaxIntervalSeconds
	}
	if m.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidConfig)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: type must be icmp, http, tcp, or snmp", ErrInvalidConfig)
	}
	if m.IntervalSeconds < minSec || m.IntervalSeconds > maxSec {
		return fmt.Errorf("%w: interval must be between %d and %d seconds", ErrInvalidConfig, minSec, maxSec)
	}
	if m.Config == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if m.Config.Kind() != m.Kind {
		return fmt.Errorf("%w: config is for %s, monitor type is %s", ErrInvalidConfig, m.Config.Kind(), m.Kind)
	}
	return m.Config.Validate()
}

// UnmarshalJSON decodes the protocol-specific config according to the
// monitor's type tag.
func (m *Monitor) UnmarshalJSON(data []byte) error {
	type alias Monitor
	var raw struct {
		alias
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Monitor(raw.alias)
	m.Config = nil
	if raw.alias.Kind == "" {
		return nil
	}
	cfg, err := DecodeMonitorConfig(raw.alias.Kind, raw.Config)
	if err != nil {
		return err
	}
	m.Config = cfg
	return nil
}
