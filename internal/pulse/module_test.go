package pulse

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/internal/services"
	"github.com/HerbHall/netwatch/internal/testutil"
	"github.com/HerbHall/netwatch/pkg/models"
)

// fakeChecker returns a configurable result and counts calls.
type fakeChecker struct {
	mu     sync.Mutex
	status models.Status
	err    error
	panic  string
	during func()
	calls  int
}

func (f *fakeChecker) Check(_ context.Context, _ Target) (*CheckResult, error) {
	f.mu.Lock()
	f.calls++
	status, err, p, during := f.status, f.err, f.panic, f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if p != "" {
		panic(p)
	}
	if err != nil {
		return nil, err
	}
	rt := int64(12)
	res := &CheckResult{Status: status, ResponseTimeMs: &rt, Detail: map[string]any{}}
	if status.Degraded() {
		res.Detail["error"] = "connection refused"
	}
	return res, nil
}

func (f *fakeChecker) set(status models.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeChecker) onCheck(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.during = fn
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestModule builds a wired Module over an in-memory store. Every
// protocol is served by the returned fake checker.
func newTestModule(t *testing.T) (*Module, *testutil.MockBus, *fakeChecker) {
	t.Helper()
	db := testutil.NewMigratedStore(t, "pulse", migrations())
	fake := &fakeChecker{status: models.StatusOnline}
	m := New(WithCheckers(CheckerSet{
		models.KindICMP: fake,
		models.KindHTTP: fake,
		models.KindTCP:  fake,
		models.KindSNMP: fake,
	}))
	m.logger = zap.NewNop()
	bus := testutil.NewMockBus()
	m.wire(NewPulseStore(db.DB()), services.NewSQLiteDeviceRepository(db.DB()), bus, newMetrics(nil))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, bus, fake
}

func addDevice(t *testing.T, m *Module, opts ...func(*models.Device)) *models.Device {
	t.Helper()
	d := testutil.NewDevice(opts...)
	if err := m.CreateDevice(context.Background(), &d); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	return &d
}

func addMonitor(t *testing.T, m *Module, deviceID string, opts ...func(*models.Monitor)) *models.Monitor {
	t.Helper()
	mon := testutil.NewMonitor(deviceID, opts...)
	if err := m.CreateMonitor(context.Background(), &mon); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	return &mon
}

func eventsOn(bus *testutil.MockBus, topic string) int {
	return len(bus.EventsOn(topic))
}

func TestRunCheck_PersistsAndPublishes(t *testing.T) {
	m, bus, _ := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID)
	bus.Reset()

	m.runCheck(ctx, mon.ID)

	latest, err := m.store.GetLatestResult(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetLatestResult: %v", err)
	}
	if latest == nil {
		t.Fatal("no result persisted")
	}
	if latest.Status != models.StatusOnline {
		t.Errorf("Status = %q, want online", latest.Status)
	}

	var ev *ResultEvent
	for _, e := range bus.Events() {
		if e.Topic == TopicResult {
			re := e.Payload.(ResultEvent)
			ev = &re
		}
	}
	if ev == nil {
		t.Fatal("no result event published")
	}
	if ev.DeviceID != d.ID {
		t.Errorf("DeviceID = %q, want %q", ev.DeviceID, d.ID)
	}
	if ev.DeviceStatus.Status != models.StatusOnline {
		t.Errorf("DeviceStatus = %q, want online", ev.DeviceStatus.Status)
	}
	if n := eventsOn(bus, TopicAlert); n != 0 {
		t.Errorf("alert events = %d, want 0", n)
	}
}

func TestRunCheck_DegradedRaisesSingleAlert(t *testing.T) {
	m, bus, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m, testutil.WithName("core-switch"))
	mon := addMonitor(t, m, d.ID)
	fake.set(models.StatusDown)

	m.runCheck(ctx, mon.ID)
	m.runCheck(ctx, mon.ID)
	m.runCheck(ctx, mon.ID)

	alerts, err := m.store.ListAlerts(ctx, AlertFilters{MonitorID: mon.ID})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != models.SeverityDanger {
		t.Errorf("Severity = %q, want danger", alerts[0].Severity)
	}
	if !strings.Contains(alerts[0].Message, "core-switch") {
		t.Errorf("Message = %q, want device name", alerts[0].Message)
	}
	if n := eventsOn(bus, TopicAlert); n != 1 {
		t.Errorf("alert events = %d, want 1", n)
	}

	fake.set(models.StatusOnline)
	m.runCheck(ctx, mon.ID)

	got, err := m.store.GetAlert(ctx, alerts[0].ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Status != models.AlertResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt is nil")
	}
}

func TestRunCheck_DisabledMonitorSkipped(t *testing.T) {
	m, _, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID, testutil.Disabled())

	m.runCheck(ctx, mon.ID)

	if n := fake.callCount(); n != 0 {
		t.Errorf("checker calls = %d, want 0", n)
	}
	results, _ := m.store.ListResults(ctx, mon.ID, 10)
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}

	mon.Enabled = true
	if err := m.UpdateMonitor(ctx, mon); err != nil {
		t.Fatalf("UpdateMonitor: %v", err)
	}
	m.runCheck(ctx, mon.ID)

	results, _ = m.store.ListResults(ctx, mon.ID, 10)
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want 1 after re-enable", len(results))
	}
}

func TestRunCheck_CheckerPanicIsDown(t *testing.T) {
	m, _, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID)
	fake.mu.Lock()
	fake.panic = "boom"
	fake.mu.Unlock()

	m.runCheck(ctx, mon.ID)

	latest, err := m.store.GetLatestResult(ctx, mon.ID)
	if err != nil || latest == nil {
		t.Fatalf("GetLatestResult = %v, %v", latest, err)
	}
	if latest.Status != models.StatusDown {
		t.Errorf("Status = %q, want down", latest.Status)
	}
	if msg, _ := latest.Detail["error"].(string); !strings.Contains(msg, "boom") {
		t.Errorf("detail error = %q, want panic message", msg)
	}
}

func TestRunCheck_CheckerErrorIsDown(t *testing.T) {
	m, _, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID)
	fake.mu.Lock()
	fake.err = errors.New("socket unavailable")
	fake.mu.Unlock()

	m.runCheck(ctx, mon.ID)

	latest, _ := m.store.GetLatestResult(ctx, mon.ID)
	if latest == nil || latest.Status != models.StatusDown {
		t.Fatalf("latest = %+v, want down", latest)
	}
	if latest.ResponseTimeMs != nil {
		t.Errorf("ResponseTimeMs = %d, want nil", *latest.ResponseTimeMs)
	}
}

func TestRunCheck_DeletedDuringCheckDropsResult(t *testing.T) {
	m, bus, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID)
	fake.onCheck(func() {
		if err := m.DeleteMonitor(ctx, mon.ID); err != nil {
			t.Errorf("DeleteMonitor: %v", err)
		}
	})
	bus.Reset()

	m.runCheck(ctx, mon.ID)

	if n := eventsOn(bus, TopicResult); n != 0 {
		t.Errorf("result events = %d, want 0", n)
	}
	if m.scheduler.Scheduled(mon.ID) {
		t.Error("deleted monitor still scheduled")
	}
}

func TestRunCheck_DisabledDuringCheckPersistsWithoutAlert(t *testing.T) {
	m, bus, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID)
	fake.set(models.StatusDown)
	fake.onCheck(func() {
		disabled := *mon
		disabled.Enabled = false
		if err := m.UpdateMonitor(ctx, &disabled); err != nil {
			t.Errorf("UpdateMonitor: %v", err)
		}
	})

	m.runCheck(ctx, mon.ID)

	results, _ := m.store.ListResults(ctx, mon.ID, 10)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	alerts, _ := m.store.ListAlerts(ctx, AlertFilters{MonitorID: mon.ID})
	if len(alerts) != 0 {
		t.Errorf("len(alerts) = %d, want 0", len(alerts))
	}
	if n := eventsOn(bus, TopicResult); n != 1 {
		t.Errorf("result events = %d, want 1", n)
	}
}

func TestRunCheck_UnknownMonitorCancelsTimer(t *testing.T) {
	m, _, fake := newTestModule(t)
	m.scheduler.Arm("ghost", time.Hour)

	m.runCheck(context.Background(), "ghost")

	if m.scheduler.Scheduled("ghost") {
		t.Error("timer for unknown monitor still armed")
	}
	if n := fake.callCount(); n != 0 {
		t.Errorf("checker calls = %d, want 0", n)
	}
}

func TestDeleteDevice_CascadesAndCancelsSchedules(t *testing.T) {
	m, bus, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	keep := addDevice(t, m, testutil.WithName("other"))
	a := addMonitor(t, m, d.ID)
	b := addMonitor(t, m, d.ID, testutil.WithConfig(models.ICMPConfig{}))
	c := addMonitor(t, m, keep.ID)
	fake.set(models.StatusDown)
	m.runCheck(ctx, a.ID)
	m.runCheck(ctx, b.ID)
	bus.Reset()

	if err := m.DeleteDevice(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}

	if m.scheduler.Scheduled(a.ID) || m.scheduler.Scheduled(b.ID) {
		t.Error("monitors of deleted device still scheduled")
	}
	if !m.scheduler.Scheduled(c.ID) {
		t.Error("monitor of other device was cancelled")
	}
	mons, _ := m.store.ListMonitorsForDevice(ctx, d.ID)
	if len(mons) != 0 {
		t.Errorf("len(monitors) = %d, want 0", len(mons))
	}
	alerts, _ := m.store.ListAlerts(ctx, AlertFilters{DeviceID: d.ID})
	if len(alerts) != 0 {
		t.Errorf("len(alerts) = %d, want 0", len(alerts))
	}
	results, _ := m.store.ListResults(ctx, a.ID, 10)
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
	if n := eventsOn(bus, TopicDevices); n != 1 {
		t.Errorf("devices events = %d, want 1", n)
	}

	if err := m.DeleteDevice(ctx, d.ID); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("second DeleteDevice err = %v, want ErrNotFound", err)
	}
}

func TestCreateMonitor_Validation(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)

	tests := []struct {
		name string
		mon  models.Monitor
		want error
	}{
		{"interval too short", testutil.NewMonitor(d.ID, testutil.WithInterval(5)), models.ErrInvalidConfig},
		{"interval too long", testutil.NewMonitor(d.ID, testutil.WithInterval(7200)), models.ErrInvalidConfig},
		{"bad port", testutil.NewMonitor(d.ID, testutil.WithConfig(models.TCPConfig{Port: 70000})), models.ErrInvalidConfig},
		{"missing device", testutil.NewMonitor("nope"), ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := tt.mon
			if err := m.CreateMonitor(ctx, &mon); !errors.Is(err, tt.want) {
				t.Errorf("CreateMonitor err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := m.scheduler.Len(); n != 0 {
		t.Errorf("scheduler.Len() = %d, want 0", n)
	}
}

func TestCreateMonitor_DefaultsAndSchedules(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)

	mon := models.Monitor{DeviceID: d.ID, Kind: models.KindICMP, Enabled: true}
	if err := m.CreateMonitor(ctx, &mon); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	if mon.ID == "" {
		t.Error("ID not assigned")
	}
	if mon.IntervalSeconds != models.DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want %d", mon.IntervalSeconds, models.DefaultIntervalSeconds)
	}
	if cfg, ok := mon.Config.(models.ICMPConfig); !ok || cfg.Count != 3 {
		t.Errorf("Config = %#v, want ICMP defaults", mon.Config)
	}
	if got := m.scheduler.Interval(mon.ID); got != time.Minute {
		t.Errorf("scheduled interval = %v, want 1m", got)
	}
}

func TestUpdateMonitor_RestartsTimer(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	mon := addMonitor(t, m, d.ID)

	mon.IntervalSeconds = 120
	mon.DeviceID = "ignored"
	if err := m.UpdateMonitor(ctx, mon); err != nil {
		t.Fatalf("UpdateMonitor: %v", err)
	}
	if got := m.scheduler.Interval(mon.ID); got != 2*time.Minute {
		t.Errorf("scheduled interval = %v, want 2m", got)
	}
	stored, _ := m.store.GetMonitor(ctx, mon.ID)
	if stored.DeviceID != d.ID {
		t.Errorf("DeviceID = %q, want %q", stored.DeviceID, d.ID)
	}

	missing := testutil.NewMonitor(d.ID)
	if err := m.UpdateMonitor(ctx, &missing); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("UpdateMonitor(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStart_ArmsEnabledMonitors(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	on := addMonitor(t, m, d.ID)
	off := addMonitor(t, m, d.ID, testutil.Disabled())
	m.scheduler.Cancel(on.ID)

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.scheduler.Scheduled(on.ID) {
		t.Error("enabled monitor not scheduled")
	}
	if m.scheduler.Scheduled(off.ID) {
		t.Error("disabled monitor scheduled")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"min below 1s", func(c *Config) { c.MinInterval = 0 }, true},
		{"max below min", func(c *Config) { c.MaxInterval = 5 * time.Second }, true},
		{"default outside bounds", func(c *Config) { c.DefaultInterval = 2 * time.Hour }, true},
		{"no concurrency", func(c *Config) { c.MaxConcurrentChecks = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			tt.mutate(&m.cfg)
			if err := m.ValidateConfig(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	if got := New().Health(context.Background()).Status; got != "unhealthy" {
		t.Errorf("uninitialized Health = %q, want unhealthy", got)
	}
	m, _, _ := newTestModule(t)
	d := addDevice(t, m)
	addMonitor(t, m, d.ID)

	h := m.Health(context.Background())
	if h.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", h.Status)
	}
	if h.Details["scheduled_monitors"] != "1" {
		t.Errorf("scheduled_monitors = %q, want 1", h.Details["scheduled_monitors"])
	}
}

func TestActiveAlerts_ExcludesAcknowledgedAndResolved(t *testing.T) {
	m, _, fake := newTestModule(t)
	ctx := context.Background()
	d := addDevice(t, m)
	acked := addMonitor(t, m, d.ID)
	open := addMonitor(t, m, d.ID)
	fake.set(models.StatusDown)
	m.runCheck(ctx, acked.ID)
	m.runCheck(ctx, open.ID)

	ackAlerts, err := m.store.ListAlerts(ctx, AlertFilters{MonitorID: acked.ID})
	if err != nil || len(ackAlerts) != 1 {
		t.Fatalf("ListAlerts = %v, %v; want one alert", ackAlerts, err)
	}
	if _, err := m.Alerter().Acknowledge(ctx, ackAlerts[0].ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	got, err := m.ActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ActiveAlerts: %v", err)
	}
	if len(got) != 1 || got[0].MonitorID != open.ID {
		t.Fatalf("ActiveAlerts = %+v, want only the alert of monitor %s", got, open.ID)
	}

	fake.set(models.StatusOnline)
	m.runCheck(ctx, open.ID)
	if got, _ := m.ActiveAlerts(ctx); len(got) != 0 {
		t.Errorf("ActiveAlerts after resolve = %d, want 0", len(got))
	}
}
