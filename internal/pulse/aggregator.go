package pulse

import (
	"context"

	"github.com/HerbHall/netwatch/pkg/models"
)

// Aggregate computes a device's status from the latest result of each of its
// monitors. The worst status wins; a device without monitors or without any
// results is unknown. The response time is taken from the first ICMP monitor
// with a non-nil response time, and LastChecked is the newest result time.
func Aggregate(deviceID string, snaps []MonitorSnapshot) models.DeviceStatus {
	ds := models.DeviceStatus{
		DeviceID:     deviceID,
		Status:       models.StatusUnknown,
		MonitorCount: len(snaps),
	}
	for _, snap := range snaps {
		r := snap.Latest
		if r == nil {
			continue
		}
		if r.Status.Priority() > ds.Status.Priority() {
			ds.Status = r.Status
		}
		if ds.LastChecked == nil || r.Timestamp.After(*ds.LastChecked) {
			ts := r.Timestamp
			ds.LastChecked = &ts
		}
		if ds.ResponseTimeMs == nil && snap.Kind == models.KindICMP && r.ResponseTimeMs != nil {
			v := *r.ResponseTimeMs
			ds.ResponseTimeMs = &v
		}
	}
	return ds
}

// DeviceStatus recomputes the aggregated status of one device from storage.
func (m *Module) DeviceStatus(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	snaps, err := m.store.LatestResults(ctx, deviceID)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	return Aggregate(deviceID, snaps), nil
}

// DeviceStatuses aggregates every device that has at least one monitor,
// keyed by device ID. Devices without monitors are absent and are unknown.
func (m *Module) DeviceStatuses(ctx context.Context) (map[string]models.DeviceStatus, error) {
	snaps, err := m.store.LatestResults(ctx, "")
	if err != nil {
		return nil, err
	}
	byDevice := make(map[string][]MonitorSnapshot)
	for _, s := range snaps {
		byDevice[s.DeviceID] = append(byDevice[s.DeviceID], s)
	}
	out := make(map[string]models.DeviceStatus, len(byDevice))
	for id, ss := range byDevice {
		out[id] = Aggregate(id, ss)
	}
	return out, nil
}
