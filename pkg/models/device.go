package models

import "time"

// DeviceCategory categorizes a monitored device.
type DeviceCategory string

const (
	DeviceCategoryRouter      DeviceCategory = "router"
	DeviceCategorySwitch      DeviceCategory = "switch"
	DeviceCategoryServer      DeviceCategory = "server"
	DeviceCategoryAccessPoint DeviceCategory = "access_point"
	DeviceCategoryFirewall    DeviceCategory = "firewall"
	DeviceCategoryPrinter     DeviceCategory = "printer"
	DeviceCategoryCamera      DeviceCategory = "camera"
	DeviceCategoryIoT         DeviceCategory = "iot"
	DeviceCategoryOther       DeviceCategory = "other"
)

// Valid reports whether the category is one of the known values.
func (c DeviceCategory) Valid() bool {
	_, ok := DeviceIcon[c]
	return ok
}

// Device represents a network-attached device watched by one or more monitors.
// Monitors and alerts reference it by ID only.
type Device struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Address   string         `json:"address"`
	Category  DeviceCategory `json:"category"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
