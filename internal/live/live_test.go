package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/internal/config"
	"github.com/HerbHall/netwatch/internal/event"
	"github.com/HerbHall/netwatch/internal/pulse"
	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

type fakeSource struct {
	devices []pulse.DeviceView
	alerts  []models.Alert
	err     error
}

func (f *fakeSource) DeviceViews(context.Context) ([]pulse.DeviceView, error) {
	return f.devices, f.err
}

func (f *fakeSource) ActiveAlerts(context.Context) ([]models.Alert, error) {
	return f.alerts, f.err
}

type resolver map[string]plugin.Plugin

func (r resolver) Get(name string) (plugin.Plugin, bool) {
	p, ok := r[name]
	return p, ok
}

// rawMessage mirrors Message with the payload left undecoded.
type rawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestModule(t *testing.T, src SnapshotSource) (*Module, *event.Bus) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	m := New().WithSource(src)
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Bus:    bus,
	}))
	for _, s := range m.Subscriptions() {
		unsubscribe := bus.Subscribe(s.Topic, s.Handler)
		t.Cleanup(unsubscribe)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, bus
}

func dial(t *testing.T, m *Module) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg rawMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func waitSubscribers(t *testing.T, m *Module, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Hub().Len() == n },
		2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_SnapshotThenEvents(t *testing.T) {
	src := &fakeSource{
		devices: []pulse.DeviceView{{
			Device: models.Device{ID: "d1", Name: "router", Address: "10.0.0.1"},
			Status: models.DeviceStatus{DeviceID: "d1", Status: models.StatusOnline},
		}},
		alerts: []models.Alert{{ID: "a1", DeviceID: "d1", MonitorID: "m1", Status: models.AlertActive}},
	}
	m, bus := newTestModule(t, src)
	conn := dial(t, m)

	first := read(t, conn)
	assert.Equal(t, TypeDevices, first.Type)
	var devices []pulse.DeviceView
	require.NoError(t, json.Unmarshal(first.Data, &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "router", devices[0].Name)

	second := read(t, conn)
	assert.Equal(t, TypeAlerts, second.Type)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(second.Data, &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)

	waitSubscribers(t, m, 1)
	require.NoError(t, bus.Publish(context.Background(), plugin.Event{
		Topic:   pulse.TopicResult,
		Payload: pulse.ResultEvent{
			MonitorResult: models.MonitorResult{MonitorID: "m1", Status: models.StatusDown},
			DeviceID:      "d1",
			DeviceStatus:  models.DeviceStatus{DeviceID: "d1", Status: models.StatusDown},
		},
	}))

	got := read(t, conn)
	assert.Equal(t, TypeResult, got.Type)
	var ev pulse.ResultEvent
	require.NoError(t, json.Unmarshal(got.Data, &ev))
	assert.Equal(t, "d1", ev.DeviceID)
	assert.Equal(t, models.StatusDown, ev.DeviceStatus.Status)
}

func TestWebSocket_RelaysEachTopic(t *testing.T) {
	m, bus := newTestModule(t, &fakeSource{})
	conn := dial(t, m)
	read(t, conn)
	read(t, conn)
	waitSubscribers(t, m, 1)

	ctx := context.Background()
	_ = bus.Publish(ctx, plugin.Event{Topic: pulse.TopicAlert, Payload: models.Alert{ID: "a9"}})
	_ = bus.Publish(ctx, plugin.Event{Topic: pulse.TopicDevices, Payload: []pulse.DeviceView{}})
	_ = bus.Publish(ctx, plugin.Event{Topic: "pulse.unrelated", Payload: 1})

	assert.Equal(t, TypeAlert, read(t, conn).Type)
	assert.Equal(t, TypeDevices, read(t, conn).Type)
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	m, _ := newTestModule(t, &fakeSource{})
	conn := dial(t, m)
	read(t, conn)
	read(t, conn)
	waitSubscribers(t, m, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	waitSubscribers(t, m, 0)
}

func TestWebSocket_StopClosesConnections(t *testing.T) {
	m, _ := newTestModule(t, &fakeSource{})
	conn := dial(t, m)
	read(t, conn)
	read(t, conn)
	waitSubscribers(t, m, 1)

	require.NoError(t, m.Stop(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestWebSocket_SnapshotFailureClosesConnection(t *testing.T) {
	m, _ := newTestModule(t, &fakeSource{err: errors.New("db locked")})
	conn := dial(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
	waitSubscribers(t, m, 0)
}

func TestHandleWebSocket_NotInitialized(t *testing.T) {
	rec := httptest.NewRecorder()
	New().HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws/monitoring", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInit_ResolvesPulse(t *testing.T) {
	p := pulse.New()
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger:  zap.NewNop(),
		Plugins: resolver{"pulse": p},
	}))
	assert.Same(t, p, m.source)
}

func TestInit_FailsWithoutPulse(t *testing.T) {
	tests := []struct {
		name string
		deps plugin.Dependencies
	}{
		{"no resolver", plugin.Dependencies{}},
		{"pulse missing", plugin.Dependencies{Plugins: resolver{}}},
		{"wrong plugin", plugin.Dependencies{Plugins: resolver{"pulse": New()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, New().Init(context.Background(), tt.deps))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("plugins.live.send_buffer", 8)
	v.Set("plugins.live.allowed_origins", "localhost:5173, example.com ,")
	cfg := loadConfig(config.New(v).Sub("plugins.live"))

	assert.Equal(t, 8, cfg.SendBuffer)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, []string{"localhost:5173", "example.com"}, cfg.AllowedOrigins)

	assert.Equal(t, DefaultConfig(), loadConfig(nil))
}

func TestValidateConfig(t *testing.T) {
	m := New()
	assert.NoError(t, m.ValidateConfig())

	m.cfg.SendBuffer = 0
	assert.Error(t, m.ValidateConfig())

	m.cfg = DefaultConfig()
	m.cfg.WriteTimeout = 0
	assert.Error(t, m.ValidateConfig())
}

func TestHealthAndStats(t *testing.T) {
	assert.Equal(t, "unhealthy", New().Health(context.Background()).Status)

	m, _ := newTestModule(t, &fakeSource{})
	h := m.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "0", h.Details["subscribers"])

	routes := m.Routes()
	require.Len(t, routes, 1)
	rec := httptest.NewRecorder()
	routes[0].Handler(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.JSONEq(t, `{"subscribers":0}`, rec.Body.String())
}
