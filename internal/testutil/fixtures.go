package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/netwatch/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test fixtures.
// Override individual fields after creation as needed.
func NewDevice(opts ...func(*models.Device)) models.Device {
	now := time.Now().UTC()
	d := models.Device{
		ID:        uuid.New().String(),
		Name:      "test-device",
		Address:   "192.168.1.100",
		Category:  models.DeviceCategoryServer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName sets the device name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithAddress sets the device address.
func WithAddress(addr string) func(*models.Device) {
	return func(d *models.Device) { d.Address = addr }
}

// WithCategory sets the device category.
func WithCategory(c models.DeviceCategory) func(*models.Device) {
	return func(d *models.Device) { d.Category = c }
}

// WithCreatedAt sets the device's created_at timestamp.
func WithCreatedAt(t time.Time) func(*models.Device) {
	return func(d *models.Device) { d.CreatedAt = t }
}

// NewMonitor returns an enabled TCP monitor for deviceID with a 60 second
// interval. Override individual fields after creation as needed.
func NewMonitor(deviceID string, opts ...func(*models.Monitor)) models.Monitor {
	now := time.Now().UTC()
	m := models.Monitor{
		ID:              uuid.New().String(),
		DeviceID:        deviceID,
		Kind:            models.KindTCP,
		Config:          models.TCPConfig{Port: 22, TimeoutSeconds: 5},
		Enabled:         true,
		IntervalSeconds: models.DefaultIntervalSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithConfig sets the monitor's protocol config and the matching kind.
func WithConfig(cfg models.MonitorConfig) func(*models.Monitor) {
	return func(m *models.Monitor) {
		m.Kind = cfg.Kind()
		m.Config = models.WithDefaults(cfg)
	}
}

// WithInterval sets the monitor interval in seconds.
func WithInterval(sec int) func(*models.Monitor) {
	return func(m *models.Monitor) { m.IntervalSeconds = sec }
}

// Disabled marks the monitor as disabled.
func Disabled() func(*models.Monitor) {
	return func(m *models.Monitor) { m.Enabled = false }
}
