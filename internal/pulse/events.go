package pulse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// Event topics published by the monitoring engine.
const (
	TopicResult  = "pulse.result"  // Payload: ResultEvent
	TopicAlert   = "pulse.alert"   // Payload: models.Alert
	TopicDevices = "pulse.devices" // Payload: []DeviceView
)

// ResultEvent is published after every persisted check result.
type ResultEvent struct {
	models.MonitorResult
	DeviceID     string              `json:"device_id"`
	DeviceStatus models.DeviceStatus `json:"device_status"`
}

// DeviceView is a device together with its aggregated status.
type DeviceView struct {
	models.Device
	Icon   string              `json:"icon"`
	Status models.DeviceStatus `json:"status"`
}

func newDeviceView(d models.Device, st models.DeviceStatus) DeviceView {
	return DeviceView{Device: d, Icon: d.Category.Icon(), Status: st}
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, plugin.Event{
		Topic:     topic,
		Source:    "pulse",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		m.logger.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

// publishDevices sends the current device list to subscribers.
func (m *Module) publishDevices(ctx context.Context) {
	if m.bus == nil {
		return
	}
	views, err := m.DeviceViews(ctx)
	if err != nil {
		m.logger.Warn("failed to load devices for event", zap.Error(err))
		return
	}
	m.publish(ctx, TopicDevices, views)
}
