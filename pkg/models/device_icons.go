package models

// DeviceIcon maps a DeviceCategory to its icon identifier.
// Identifiers use Lucide icon names (https://lucide.dev) for
// compatibility with the dashboard.
var DeviceIcon = map[DeviceCategory]string{
	DeviceCategoryRouter:      "router",
	DeviceCategorySwitch:      "network",
	DeviceCategoryServer:      "server",
	DeviceCategoryAccessPoint: "wifi",
	DeviceCategoryFirewall:    "shield",
	DeviceCategoryPrinter:     "printer",
	DeviceCategoryCamera:      "camera",
	DeviceCategoryIoT:         "cpu",
	DeviceCategoryOther:       "help-circle",
}

// Icon returns the icon identifier for a DeviceCategory.
// Returns "help-circle" for unrecognised categories.
func (c DeviceCategory) Icon() string {
	if icon, ok := DeviceIcon[c]; ok {
		return icon
	}
	return DeviceIcon[DeviceCategoryOther]
}
