// Package pulse is the device monitoring engine: protocol checkers, the
// per-monitor scheduler, status aggregation and the alert state machine.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/HerbHall/netwatch/internal/services"
	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// ErrDeviceNotFound is returned when a monitor references a missing device.
var ErrDeviceNotFound = errors.New("device not found")

// Config holds the pulse module settings.
type Config struct {
	MinInterval         time.Duration `mapstructure:"min_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	DefaultInterval     time.Duration `mapstructure:"default_interval"`
	MaxConcurrentChecks int           `mapstructure:"max_concurrent_checks"`
	SeedFile            string        `mapstructure:"seed_file"`
}

// DefaultConfig returns the default pulse configuration.
func DefaultConfig() Config {
	return Config{
		MinInterval:         models.MinIntervalSeconds * time.Second,
		MaxInterval:         models.MaxIntervalSeconds * time.Second,
		DefaultInterval:     models.DefaultIntervalSeconds * time.Second,
		MaxConcurrentChecks: 64,
	}
}

// Option configures a Module.
type Option func(*Module)

// WithCheckers replaces the protocol checkers. Kinds missing from cs keep
// their default checker.
func WithCheckers(cs CheckerSet) Option {
	return func(m *Module) {
		for k, c := range cs {
			m.checkers[k] = c
		}
	}
}

// Module implements the pulse monitoring plugin.
type Module struct {
	logger    *zap.Logger
	cfg       Config
	store     *PulseStore
	devices   services.DeviceRepository
	bus       plugin.EventBus
	checkers  CheckerSet
	scheduler *Scheduler
	alerter   *Alerter
	metrics   *metrics
	probes    *semaphore.Weighted
}

// New creates a new pulse module.
func New(opts ...Option) *Module {
	m := &Module{
		checkers: DefaultCheckers(),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "pulse",
		Version:     "0.1.0",
		Description: "Device monitoring: scheduled checks, status aggregation and alerts",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.cfg = loadConfig(deps.Config)

	if deps.Store == nil {
		return fmt.Errorf("pulse: store is required")
	}
	if err := deps.Store.Migrate(ctx, "pulse", migrations()); err != nil {
		return fmt.Errorf("pulse migrations: %w", err)
	}

	m.wire(NewPulseStore(deps.Store.DB()), services.NewSQLiteDeviceRepository(deps.Store.DB()), deps.Bus, newMetrics(deps.Metrics))

	m.logger.Info("pulse module initialized",
		zap.Duration("min_interval", m.cfg.MinInterval),
		zap.Duration("max_interval", m.cfg.MaxInterval),
		zap.Int("max_concurrent_checks", m.cfg.MaxConcurrentChecks),
	)
	return nil
}

// wire builds the engine components around the given collaborators.
func (m *Module) wire(ps *PulseStore, devices services.DeviceRepository, bus plugin.EventBus, met *metrics) {
	m.store = ps
	m.devices = devices
	m.bus = bus
	m.metrics = met
	m.probes = semaphore.NewWeighted(int64(max(m.cfg.MaxConcurrentChecks, 1)))
	m.alerter = NewAlerter(ps, bus, m.logger, met)
	m.scheduler = NewScheduler(m.runCheck, m.logger, met)
}

func loadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.IsSet("min_interval") {
		cfg.MinInterval = c.GetDuration("min_interval")
	}
	if c.IsSet("max_interval") {
		cfg.MaxInterval = c.GetDuration("max_interval")
	}
	if c.IsSet("default_interval") {
		cfg.DefaultInterval = c.GetDuration("default_interval")
	}
	if c.IsSet("max_concurrent_checks") {
		cfg.MaxConcurrentChecks = c.GetInt("max_concurrent_checks")
	}
	if c.IsSet("seed_file") {
		cfg.SeedFile = c.GetString("seed_file")
	}
	return cfg
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	c := m.cfg
	if c.MinInterval < time.Second {
		return fmt.Errorf("pulse: min_interval must be at least 1s, got %s", c.MinInterval)
	}
	if c.MaxInterval < c.MinInterval {
		return fmt.Errorf("pulse: max_interval %s is below min_interval %s", c.MaxInterval, c.MinInterval)
	}
	if c.DefaultInterval < c.MinInterval || c.DefaultInterval > c.MaxInterval {
		return fmt.Errorf("pulse: default_interval %s outside [%s, %s]", c.DefaultInterval, c.MinInterval, c.MaxInterval)
	}
	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("pulse: max_concurrent_checks must be positive")
	}
	return nil
}

// Start seeds the database if configured and arms a timer for every enabled
// monitor.
func (m *Module) Start(ctx context.Context) error {
	if m.cfg.SeedFile != "" {
		if err := m.SeedFromFile(ctx, m.cfg.SeedFile); err != nil {
			return fmt.Errorf("pulse seed: %w", err)
		}
	}

	monitors, err := m.store.ListMonitors(ctx)
	if err != nil {
		return fmt.Errorf("pulse load monitors: %w", err)
	}
	armed := 0
	for i := range monitors {
		if monitors[i].Enabled {
			m.scheduler.Arm(monitors[i].ID, monitors[i].Interval())
			armed++
		}
	}
	m.logger.Info("pulse module started",
		zap.Int("monitors", len(monitors)),
		zap.Int("scheduled", armed),
	)
	return nil
}

// Stop cancels every timer and waits for in-flight checks.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	err := m.scheduler.Stop(ctx)
	m.logger.Info("pulse module stopped")
	return err
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.scheduler == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"scheduled_monitors": fmt.Sprint(m.scheduler.Len()),
		},
	}
}

// OnMonitorCreated arms the timer of a new monitor if it is enabled.
func (m *Module) OnMonitorCreated(mon *models.Monitor) {
	if mon.Enabled {
		m.scheduler.Arm(mon.ID, mon.Interval())
	}
}

// OnMonitorUpdated cancels and restarts the monitor's timer so a changed
// interval applies from the next cycle. Disabled monitors stay armed; their
// ticks are skipped until they are enabled again.
func (m *Module) OnMonitorUpdated(mon *models.Monitor) {
	m.scheduler.Arm(mon.ID, mon.Interval())
}

// OnMonitorDeleted cancels the monitor's timer.
func (m *Module) OnMonitorDeleted(id string) {
	m.scheduler.Cancel(id)
}

// runCheck is the tick pipeline for one monitor.
func (m *Module) runCheck(ctx context.Context, monitorID string) {
	log := m.logger.With(zap.String("monitor_id", monitorID))

	mon, err := m.store.GetMonitor(ctx, monitorID)
	if err != nil {
		log.Warn("failed to load monitor", zap.Error(err))
		return
	}
	if mon == nil {
		m.scheduler.Cancel(monitorID)
		return
	}
	if !mon.Enabled {
		return
	}

	device, err := m.devices.Get(ctx, mon.DeviceID)
	if err != nil {
		log.Warn("failed to load device", zap.String("device_id", mon.DeviceID), zap.Error(err))
		return
	}

	res := m.probe(ctx, mon, device.Address)
	result := &models.MonitorResult{
		MonitorID:      mon.ID,
		Timestamp:      time.Now().UTC(),
		Status:         res.Status,
		ResponseTimeMs: res.ResponseTimeMs,
		Detail:         res.Detail,
	}
	log.Debug("check completed",
		zap.String("kind", string(mon.Kind)),
		zap.String("status", string(result.Status)),
	)

	// The monitor may have changed while the probe ran.
	current, err := m.store.GetMonitor(ctx, monitorID)
	if err != nil {
		log.Warn("failed to reload monitor", zap.Error(err))
		return
	}
	if current == nil {
		// monitor_results.monitor_id references monitors(id); the row is gone.
		log.Debug("monitor deleted during check, result dropped")
		return
	}

	if err := m.store.AppendResult(ctx, result); err != nil {
		log.Warn("failed to persist result", zap.Error(err))
		return
	}

	status, err := m.DeviceStatus(ctx, mon.DeviceID)
	if err != nil {
		log.Warn("failed to aggregate device status", zap.String("device_id", mon.DeviceID), zap.Error(err))
		status = models.DeviceStatus{DeviceID: mon.DeviceID, Status: models.StatusUnknown}
	}

	if current.Enabled {
		if _, err := m.alerter.Evaluate(ctx, device, current, result); err != nil {
			log.Warn("failed to evaluate alerts", zap.Error(err))
		}
	}

	m.publish(ctx, TopicResult, ResultEvent{
		MonitorResult: *result,
		DeviceID:      mon.DeviceID,
		DeviceStatus:  status,
	})
}

// probe runs the monitor's checker under the global concurrency bound. Any
// checker error or panic becomes a down result.
func (m *Module) probe(ctx context.Context, mon *models.Monitor, address string) (res *CheckResult) {
	if err := m.probes.Acquire(ctx, 1); err != nil {
		return downResult(fmt.Sprintf("check not started: %v", err), nil)
	}
	defer m.probes.Release(1)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("checker panicked",
				zap.String("monitor_id", mon.ID),
				zap.String("kind", string(mon.Kind)),
				zap.Any("panic", r),
			)
			res = downResult(fmt.Sprintf("checker panic: %v", r), nil)
		}
		m.metrics.observeCheck(mon.Kind, res.Status, time.Since(start).Seconds())
	}()

	out, err := m.checkers.Check(ctx, Target{Address: address, Config: mon.Config})
	if err != nil {
		return downResult(err.Error(), nil)
	}
	if out == nil {
		return downResult("checker returned no result", nil)
	}
	return out
}

// -- Device and monitor operations used by the HTTP layer --

// CreateDevice stores a new device.
func (m *Module) CreateDevice(ctx context.Context, d *models.Device) error {
	if err := validateDevice(d); err != nil {
		return err
	}
	if err := m.devices.Create(ctx, d); err != nil {
		return err
	}
	m.publishDevices(ctx)
	return nil
}

// UpdateDevice changes a device's name, address or category.
func (m *Module) UpdateDevice(ctx context.Context, d *models.Device) error {
	if err := validateDevice(d); err != nil {
		return err
	}
	if err := m.devices.Update(ctx, d); err != nil {
		return err
	}
	m.publishDevices(ctx)
	return nil
}

// DeleteDevice removes a device with all its monitors, results and alerts,
// and cancels the schedules of its monitors.
func (m *Module) DeleteDevice(ctx context.Context, id string) error {
	monitors, err := m.store.ListMonitorsForDevice(ctx, id)
	if err != nil {
		return err
	}
	if err := m.devices.Delete(ctx, id); err != nil {
		return err
	}
	for i := range monitors {
		m.OnMonitorDeleted(monitors[i].ID)
	}
	m.logger.Info("device deleted",
		zap.String("device_id", id),
		zap.Int("monitors", len(monitors)),
	)
	m.publishDevices(ctx)
	return nil
}

// CreateMonitor validates and stores a new monitor, then schedules it.
func (m *Module) CreateMonitor(ctx context.Context, mon *models.Monitor) error {
	if mon.IntervalSeconds == 0 {
		mon.IntervalSeconds = int(m.cfg.DefaultInterval / time.Second)
	}
	if mon.Config == nil && mon.Kind.Valid() {
		cfg, err := models.DecodeMonitorConfig(mon.Kind, nil)
		if err != nil {
			return err
		}
		mon.Config = cfg
	}
	mon.Config = models.WithDefaults(mon.Config)
	if err := mon.Validate(m.minSec(), m.maxSec()); err != nil {
		return err
	}
	if _, err := m.devices.Get(ctx, mon.DeviceID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}

	now := time.Now().UTC()
	if mon.ID == "" {
		mon.ID = uuid.New().String()
	}
	mon.CreatedAt = now
	mon.UpdatedAt = now
	if err := m.store.InsertMonitor(ctx, mon); err != nil {
		return err
	}
	m.OnMonitorCreated(mon)
	return nil
}

// UpdateMonitor validates and stores a changed monitor, then reschedules it.
// The owning device cannot change.
func (m *Module) UpdateMonitor(ctx context.Context, mon *models.Monitor) error {
	existing, err := m.store.GetMonitor(ctx, mon.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return services.ErrNotFound
	}
	mon.DeviceID = existing.DeviceID
	mon.CreatedAt = existing.CreatedAt
	mon.Config = models.WithDefaults(mon.Config)
	if err := mon.Validate(m.minSec(), m.maxSec()); err != nil {
		return err
	}
	mon.UpdatedAt = time.Now().UTC()

	ok, err := m.store.UpdateMonitor(ctx, mon)
	if err != nil {
		return err
	}
	if !ok {
		return services.ErrNotFound
	}
	m.OnMonitorUpdated(mon)
	return nil
}

// DeleteMonitor removes a monitor, its results and alerts, and cancels its
// timer.
func (m *Module) DeleteMonitor(ctx context.Context, id string) error {
	ok, err := m.store.DeleteMonitor(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return services.ErrNotFound
	}
	m.OnMonitorDeleted(id)
	return nil
}

// DeviceViews returns every device with its aggregated status.
func (m *Module) DeviceViews(ctx context.Context) ([]DeviceView, error) {
	devices, err := m.devices.All(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := m.DeviceStatuses(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		st, ok := statuses[d.ID]
		if !ok {
			st = Aggregate(d.ID, nil)
		}
		views = append(views, newDeviceView(d, st))
	}
	return views, nil
}

// ActiveAlerts returns alerts nobody has acknowledged or resolved yet,
// newest first.
func (m *Module) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	return m.store.ListAlerts(ctx, AlertFilters{Status: models.AlertActive})
}

// Alerter returns the module's alert engine.
func (m *Module) Alerter() *Alerter { return m.alerter }

func (m *Module) minSec() int { return int(m.cfg.MinInterval / time.Second) }
func (m *Module) maxSec() int { return int(m.cfg.MaxInterval / time.Second) }

func validateDevice(d *models.Device) error {
	if d.Name == "" {
		return fmt.Errorf("%w: device name is required", models.ErrInvalidConfig)
	}
	if d.Address == "" {
		return fmt.Errorf("%w: device address is required", models.ErrInvalidConfig)
	}
	if d.Category == "" {
		d.Category = models.DeviceCategoryOther
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: unknown device category %q", models.ErrInvalidConfig, d.Category)
	}
	return nil
}
