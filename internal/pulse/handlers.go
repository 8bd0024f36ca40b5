package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/internal/services"
	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// deviceRequest is the JSON body for POST /devices and PUT /devices/{id}.
type deviceRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Category string `json:"category"`
}

// createMonitorRequest is the JSON body for POST /monitors.
type createMonitorRequest struct {
	DeviceID string             `json:"device_id"`
	Type     models.MonitorKind `json:"type"`
	Config   json.RawMessage    `json:"config"`
	Enabled  *bool              `json:"enabled,omitempty"`
	Interval int                `json:"interval,omitempty"`
}

// updateMonitorRequest is the JSON body for PUT /monitors/{id}. Omitted
// fields keep their current value. A new type requires a new config.
type updateMonitorRequest struct {
	Type     models.MonitorKind `json:"type,omitempty"`
	Config   json.RawMessage    `json:"config,omitempty"`
	Enabled  *bool              `json:"enabled,omitempty"`
	Interval *int               `json:"interval,omitempty"`
}

// alertStatusRequest is the JSON body for PUT /alerts/{id}/status.
type alertStatusRequest struct {
	Status models.AlertStatus `json:"status"`
}

// DashboardSummary is the response of GET /dashboard/summary.
type DashboardSummary struct {
	Devices             SummaryCount `json:"devices"`
	WebServices         SummaryCount `json:"web_services"`
	ActiveAlerts        int          `json:"active_alerts"`
	AverageResponseTime int64        `json:"average_response_time"`
}

// SummaryCount is a total with the number and percentage online.
type SummaryCount struct {
	Total      int `json:"total"`
	Online     int `json:"online"`
	Percentage int `json:"percentage"`
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/devices", Handler: m.handleListDevices},
		{Method: "POST", Path: "/devices", Handler: m.handleCreateDevice},
		{Method: "GET", Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: "PUT", Path: "/devices/{id}", Handler: m.handleUpdateDevice},
		{Method: "DELETE", Path: "/devices/{id}", Handler: m.handleDeleteDevice},
		{Method: "GET", Path: "/devices/{id}/status", Handler: m.handleDeviceStatus},
		{Method: "GET", Path: "/monitors", Handler: m.handleListMonitors},
		{Method: "POST", Path: "/monitors", Handler: m.handleCreateMonitor},
		{Method: "GET", Path: "/monitors/{id}", Handler: m.handleGetMonitor},
		{Method: "PUT", Path: "/monitors/{id}", Handler: m.handleUpdateMonitor},
		{Method: "DELETE", Path: "/monitors/{id}", Handler: m.handleDeleteMonitor},
		{Method: "GET", Path: "/monitor-results/{monitor_id}", Handler: m.handleListResults},
		{Method: "GET", Path: "/monitor-results/{monitor_id}/latest", Handler: m.handleLatestResult},
		{Method: "GET", Path: "/alerts", Handler: m.handleListAlerts},
		{Method: "GET", Path: "/alerts/{id}", Handler: m.handleGetAlert},
		{Method: "PUT", Path: "/alerts/{id}/status", Handler: m.handleSetAlertStatus},
		{Method: "POST", Path: "/alerts/{id}/acknowledge", Handler: m.handleAcknowledgeAlert},
		{Method: "POST", Path: "/alerts/{id}/resolve", Handler: m.handleResolveAlert},
		{Method: "GET", Path: "/dashboard/summary", Handler: m.handleDashboardSummary},
	}
}

// -- Devices --

// handleListDevices returns devices with their aggregated status.
//
//	@Summary		List devices
//	@Description	Returns a paginated device list, optionally filtered by category or a name/address search.
//	@Tags			pulse
//	@Produce		json
//	@Param			category query string false "Filter by category"
//	@Param			search query string false "Substring of name or address"
//	@Param			limit query int false "Page size" default(50)
//	@Param			offset query int false "Offset"
//	@Success		200 {object} services.ListResult[DeviceView]
//	@Failure		500 {object} map[string]any
//	@Router			/pulse/devices [get]
func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	page, err := m.devices.List(r.Context(), services.DeviceFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}, services.ListOptions{
		Limit:     pulseParseLimit(r, 50),
		Offset:    offset,
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	})
	if err != nil {
		m.logger.Warn("failed to list devices", zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	statuses, err := m.DeviceStatuses(r.Context())
	if err != nil {
		m.logger.Warn("failed to aggregate device status", zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	out := services.ListResult[DeviceView]{
		Items:  make([]DeviceView, 0, len(page.Items)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, d := range page.Items {
		st, ok := statuses[d.ID]
		if !ok {
			st = Aggregate(d.ID, nil)
		}
		out.Items = append(out.Items, newDeviceView(d, st))
	}
	pulseWriteJSON(w, http.StatusOK, out)
}

// handleGetDevice returns a single device.
//
//	@Summary		Get device
//	@Tags			pulse
//	@Produce		json
//	@Param			id path string true "Device ID"
//	@Success		200 {object} DeviceView
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/devices/{id} [get]
func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	id := r.PathValue("id")
	d, err := m.devices.Get(r.Context(), id)
	if err != nil {
		m.writeServiceError(w, err, "failed to get device")
		return
	}
	st, err := m.DeviceStatus(r.Context(), id)
	if err != nil {
		m.writeServiceError(w, err, "failed to get device")
		return
	}
	pulseWriteJSON(w, http.StatusOK, newDeviceView(*d, st))
}

// handleCreateDevice creates a device.
//
//	@Summary		Create device
//	@Tags			pulse
//	@Accept			json
//	@Produce		json
//	@Param			body body deviceRequest true "Device"
//	@Success		201 {object} models.Device
//	@Failure		400 {object} map[string]any
//	@Router			/pulse/devices [post]
func (m *Module) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pulseWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d := &models.Device{Name: req.Name, Address: req.Address, Category: models.DeviceCategory(req.Category)}
	if err := m.CreateDevice(r.Context(), d); err != nil {
		m.writeServiceError(w, err, "failed to create device")
		return
	}
	pulseWriteJSON(w, http.StatusCreated, d)
}

// handleUpdateDevice replaces a device's name, address and category.
//
//	@Summary		Update device
//	@Tags			pulse
//	@Accept			json
//	@Produce		json
//	@Param			id path string true "Device ID"
//	@Param			body body deviceRequest true "Device"
//	@Success		200 {object} models.Device
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/devices/{id} [put]
func (m *Module) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	id := r.PathValue("id")
	existing, err := m.devices.Get(r.Context(), id)
	if err != nil {
		m.writeServiceError(w, err, "failed to get device")
		return
	}
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pulseWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Address != "" {
		existing.Address = req.Address
	}
	if req.Category != "" {
		existing.Category = models.DeviceCategory(req.Category)
	}
	if err := m.UpdateDevice(r.Context(), existing); err != nil {
		m.writeServiceError(w, err, "failed to update device")
		return
	}
	pulseWriteJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice deletes a device, its monitors, results and alerts.
//
//	@Summary		Delete device
//	@Tags			pulse
//	@Param			id path string true "Device ID"
//	@Success		204
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/devices/{id} [delete]
func (m *Module) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	if err := m.DeleteDevice(r.Context(), r.PathValue("id")); err != nil {
		m.writeServiceError(w, err, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStatus returns the aggregated status of a device.
//
//	@Summary		Device status
//	@Description	Worst status across the latest result of each of the device's monitors.
//	@Tags			pulse
//	@Produce		json
//	@Param			id path string true "Device ID"
//	@Success		200 {object} models.DeviceStatus
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/devices/{id}/status [get]
func (m *Module) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	id := r.PathValue("id")
	if _, err := m.devices.Get(r.Context(), id); err != nil {
		m.writeServiceError(w, err, "failed to get device")
		return
	}
	status, err := m.DeviceStatus(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to get device status", zap.String("device_id", id), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to get status")
		return
	}
	pulseWriteJSON(w, http.StatusOK, status)
}

// -- Monitors --

// handleListMonitors returns all monitors, or those of one device.
//
//	@Summary		List monitors
//	@Tags			pulse
//	@Produce		json
//	@Param			device_id query string false "Filter by device ID"
//	@Success		200 {array} models.Monitor
//	@Router			/pulse/monitors [get]
func (m *Module) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	var (
		monitors []models.Monitor
		err      error
	)
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		monitors, err = m.store.ListMonitorsForDevice(r.Context(), deviceID)
	} else {
		monitors, err = m.store.ListMonitors(r.Context())
	}
	if err != nil {
		m.logger.Warn("failed to list monitors", zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}
	pulseWriteJSON(w, http.StatusOK, monitors)
}

// handleGetMonitor returns a single monitor.
//
//	@Summary		Get monitor
//	@Tags			pulse
//	@Produce		json
//	@Param			id path string true "Monitor ID"
//	@Success		200 {object} models.Monitor
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/monitors/{id} [get]
func (m *Module) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	id := r.PathValue("id")
	mon, err := m.store.GetMonitor(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to get monitor", zap.String("monitor_id", id), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}
	if mon == nil {
		pulseWriteError(w, http.StatusNotFound, "monitor not found")
		return
	}
	pulseWriteJSON(w, http.StatusOK, mon)
}

// handleCreateMonitor validates and creates a monitor, then schedules it.
//
//	@Summary		Create monitor
//	@Description	Config is validated against the monitor type; invalid config is rejected with 400.
//	@Tags			pulse
//	@Accept			json
//	@Produce		json
//	@Param			body body createMonitorRequest true "Monitor"
//	@Success		201 {object} models.Monitor
//	@Failure		400 {object} map[string]any
//	@Router			/pulse/monitors [post]
func (m *Module) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pulseWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg, err := models.DecodeMonitorConfig(req.Type, req.Config)
	if err != nil {
		pulseWriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	mon := &models.Monitor{
		DeviceID:        req.DeviceID,
		Kind:            req.Type,
		Config:          cfg,
		Enabled:         req.Enabled == nil || *req.Enabled,
		IntervalSeconds: req.Interval,
	}
	if err := m.CreateMonitor(r.Context(), mon); err != nil {
		m.writeServiceError(w, err, "failed to create monitor")
		return
	}
	pulseWriteJSON(w, http.StatusCreated, mon)
}

// handleUpdateMonitor changes a monitor and restarts its timer.
//
//	@Summary		Update monitor
//	@Tags			pulse
//	@Accept			json
//	@Produce		json
//	@Param			id path string true "Monitor ID"
//	@Param			body body updateMonitorRequest true "Fields to update"
//	@Success		200 {object} models.Monitor
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/monitors/{id} [put]
func (m *Module) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	id := r.PathValue("id")
	existing, err := m.store.GetMonitor(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to get monitor for update", zap.String("monitor_id", id), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}
	if existing == nil {
		pulseWriteError(w, http.StatusNotFound, "monitor not found")
		return
	}

	var req updateMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pulseWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kindChanged := req.Type != "" && req.Type != existing.Kind
	if kindChanged {
		existing.Kind = req.Type
	}
	if len(req.Config) > 0 || kindChanged {
		cfg, err := models.DecodeMonitorConfig(existing.Kind, req.Config)
		if err != nil {
			pulseWriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		existing.Config = cfg
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	if req.Interval != nil {
		existing.IntervalSeconds = *req.Interval
	}

	if err := m.UpdateMonitor(r.Context(), existing); err != nil {
		m.writeServiceError(w, err, "failed to update monitor")
		return
	}
	pulseWriteJSON(w, http.StatusOK, existing)
}

// handleDeleteMonitor deletes a monitor and cancels its timer.
//
//	@Summary		Delete monitor
//	@Tags			pulse
//	@Param			id path string true "Monitor ID"
//	@Success		204
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/monitors/{id} [delete]
func (m *Module) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	if err := m.DeleteMonitor(r.Context(), r.PathValue("id")); err != nil {
		m.writeServiceError(w, err, "failed to delete monitor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- Results --

// handleListResults returns the most recent results of a monitor.
//
//	@Summary		Monitor results
//	@Tags			pulse
//	@Produce		json
//	@Param			monitor_id path string true "Monitor ID"
//	@Param			limit query int false "Maximum results" default(10)
//	@Success		200 {array} models.MonitorResult
//	@Router			/pulse/monitor-results/{monitor_id} [get]
func (m *Module) handleListResults(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	monitorID := r.PathValue("monitor_id")
	results, err := m.store.ListResults(r.Context(), monitorID, pulseParseLimit(r, 10))
	if err != nil {
		m.logger.Warn("failed to list results", zap.String("monitor_id", monitorID), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	pulseWriteJSON(w, http.StatusOK, results)
}

// handleLatestResult returns the newest result of a monitor.
//
//	@Summary		Latest monitor result
//	@Tags			pulse
//	@Produce		json
//	@Param			monitor_id path string true "Monitor ID"
//	@Success		200 {object} models.MonitorResult
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/monitor-results/{monitor_id}/latest [get]
func (m *Module) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	monitorID := r.PathValue("monitor_id")
	result, err := m.store.GetLatestResult(r.Context(), monitorID)
	if err != nil {
		m.logger.Warn("failed to get latest result", zap.String("monitor_id", monitorID), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to get latest result")
		return
	}
	if result == nil {
		pulseWriteError(w, http.StatusNotFound, "no results found for this monitor")
		return
	}
	pulseWriteJSON(w, http.StatusOK, result)
}

// -- Alerts --

// handleListAlerts returns alerts with optional filtering.
//
//	@Summary		List alerts
//	@Tags			pulse
//	@Produce		json
//	@Param			status query string false "active, acknowledged or resolved"
//	@Param			device_id query string false "Filter by device ID"
//	@Param			limit query int false "Maximum alerts" default(100)
//	@Success		200 {array} models.Alert
//	@Failure		400 {object} map[string]any
//	@Router			/pulse/alerts [get]
func (m *Module) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	q := r.URL.Query()
	filters := AlertFilters{
		DeviceID: q.Get("device_id"),
		Status:   models.AlertStatus(q.Get("status")),
		Limit:    pulseParseLimit(r, 100),
	}
	if filters.Status != "" && !filters.Status.Valid() {
		pulseWriteError(w, http.StatusBadRequest, "status must be active, acknowledged, or resolved")
		return
	}
	alerts, err := m.store.ListAlerts(r.Context(), filters)
	if err != nil {
		m.logger.Warn("failed to list alerts", zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	pulseWriteJSON(w, http.StatusOK, alerts)
}

// handleGetAlert returns a single alert by ID.
//
//	@Summary		Get alert
//	@Tags			pulse
//	@Produce		json
//	@Param			id path string true "Alert ID"
//	@Success		200 {object} models.Alert
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/alerts/{id} [get]
func (m *Module) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	id := r.PathValue("id")
	alert, err := m.store.GetAlert(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to get alert", zap.String("alert_id", id), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	if alert == nil {
		pulseWriteError(w, http.StatusNotFound, "alert not found")
		return
	}
	pulseWriteJSON(w, http.StatusOK, alert)
}

// handleSetAlertStatus applies a forward status transition.
//
//	@Summary		Set alert status
//	@Description	Accepts only forward transitions; going back to active from acknowledged or resolved returns 409.
//	@Tags			pulse
//	@Accept			json
//	@Produce		json
//	@Param			id path string true "Alert ID"
//	@Param			body body alertStatusRequest true "New status"
//	@Success		200 {object} models.Alert
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Router			/pulse/alerts/{id}/status [put]
func (m *Module) handleSetAlertStatus(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	var req alertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pulseWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Status.Valid() {
		pulseWriteError(w, http.StatusBadRequest, "status must be active, acknowledged, or resolved")
		return
	}
	alert, err := m.alerter.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		m.writeServiceError(w, err, "failed to update alert status")
		return
	}
	pulseWriteJSON(w, http.StatusOK, alert)
}

// handleAcknowledgeAlert acknowledges an alert.
//
//	@Summary		Acknowledge alert
//	@Tags			pulse
//	@Produce		json
//	@Param			id path string true "Alert ID"
//	@Success		200 {object} models.Alert
//	@Failure		404 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Router			/pulse/alerts/{id}/acknowledge [post]
func (m *Module) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	alert, err := m.alerter.Acknowledge(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeServiceError(w, err, "failed to acknowledge alert")
		return
	}
	pulseWriteJSON(w, http.StatusOK, alert)
}

// handleResolveAlert resolves an alert.
//
//	@Summary		Resolve alert
//	@Tags			pulse
//	@Produce		json
//	@Param			id path string true "Alert ID"
//	@Success		200 {object} models.Alert
//	@Failure		404 {object} map[string]any
//	@Router			/pulse/alerts/{id}/resolve [post]
func (m *Module) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	alert, err := m.alerter.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		m.writeServiceError(w, err, "failed to resolve alert")
		return
	}
	pulseWriteJSON(w, http.StatusOK, alert)
}

// -- Dashboard --

// handleDashboardSummary returns fleet-wide counts.
//
//	@Summary		Dashboard summary
//	@Description	Device and web service availability, active alert count and mean response time of online results.
//	@Tags			pulse
//	@Produce		json
//	@Success		200 {object} DashboardSummary
//	@Router			/pulse/dashboard/summary [get]
func (m *Module) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		pulseWriteError(w, http.StatusServiceUnavailable, "pulse store not available")
		return
	}
	summary, err := m.Summary(r.Context())
	if err != nil {
		m.logger.Warn("failed to build dashboard summary", zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to fetch dashboard summary")
		return
	}
	pulseWriteJSON(w, http.StatusOK, summary)
}

// Summary computes the dashboard counts. A device counts as online when any
// of its monitors' latest results is online.
func (m *Module) Summary(ctx context.Context) (*DashboardSummary, error) {
	devices, err := m.devices.All(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := m.store.LatestResults(ctx, "")
	if err != nil {
		return nil, err
	}
	active, err := m.store.ListAlerts(ctx, AlertFilters{Status: models.AlertActive})
	if err != nil {
		return nil, err
	}

	online := map[string]bool{}
	var web SummaryCount
	var rtSum, rtCount int64
	for _, s := range snaps {
		if s.Latest == nil {
			continue
		}
		up := s.Latest.Status == models.StatusOnline
		if up {
			online[s.DeviceID] = true
			if s.Latest.ResponseTimeMs != nil {
				rtSum += *s.Latest.ResponseTimeMs
				rtCount++
			}
		}
		if s.Kind == models.KindHTTP {
			web.Total++
			if up {
				web.Online++
			}
		}
	}

	out := &DashboardSummary{
		Devices:      SummaryCount{Total: len(devices), Online: len(online)},
		WebServices:  web,
		ActiveAlerts: len(active),
	}
	out.Devices.Percentage = percent(out.Devices.Online, out.Devices.Total)
	out.WebServices.Percentage = percent(web.Online, web.Total)
	if rtCount > 0 {
		out.AverageResponseTime = int64(math.Round(float64(rtSum) / float64(rtCount)))
	}
	return out, nil
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

// -- helpers --

// writeServiceError maps engine errors onto problem responses.
func (m *Module) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInvalidConfig):
		pulseWriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDeviceNotFound):
		pulseWriteError(w, http.StatusBadRequest, "device not found")
	case errors.Is(err, services.ErrNotFound):
		pulseWriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrAlertNotFound):
		pulseWriteError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, ErrInvalidTransition):
		pulseWriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrAlreadyExists):
		pulseWriteError(w, http.StatusConflict, "already exists")
	default:
		m.logger.Warn(msg, zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, msg)
	}
}

func pulseWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func pulseWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://netwatch.dev/problems/" + strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "-"),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func pulseParseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
