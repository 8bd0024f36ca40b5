// Package live streams monitoring events to connected WebSocket clients.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/internal/pulse"
	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
)

// SnapshotSource provides the state a new subscriber receives first.
type SnapshotSource interface {
	DeviceViews(ctx context.Context) ([]pulse.DeviceView, error)
	ActiveAlerts(ctx context.Context) ([]models.Alert, error)
}

// Config holds the live module settings.
type Config struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DefaultConfig returns the default live configuration.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   32,
		WriteTimeout: 5 * time.Second,
	}
}

// Module implements the live event broadcaster plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	hub    *Hub
	source SnapshotSource
}

// New creates a new live module.
func New() *Module {
	return &Module{cfg: DefaultConfig()}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "live",
		Version:      "0.1.0",
		Description:  "Real-time monitoring events over WebSocket",
		Dependencies: []string{"pulse"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.cfg = loadConfig(deps.Config)

	if m.source == nil {
		if deps.Plugins == nil {
			return fmt.Errorf("live: plugin resolver is required")
		}
		p, ok := deps.Plugins.Get("pulse")
		if !ok {
			return fmt.Errorf("live: pulse plugin not registered")
		}
		src, ok := p.(SnapshotSource)
		if !ok {
			return fmt.Errorf("live: pulse plugin does not provide snapshots")
		}
		m.source = src
	}
	m.hub = NewHub(m.logger, deps.Metrics)

	m.logger.Info("live module initialized",
		zap.Int("send_buffer", m.cfg.SendBuffer),
		zap.Duration("write_timeout", m.cfg.WriteTimeout),
	)
	return nil
}

func loadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.IsSet("send_buffer") {
		cfg.SendBuffer = c.GetInt("send_buffer")
	}
	if c.IsSet("write_timeout") {
		cfg.WriteTimeout = c.GetDuration("write_timeout")
	}
	if c.IsSet("allowed_origins") {
		for _, o := range strings.Split(c.GetString("allowed_origins"), ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.SendBuffer < 1 {
		return fmt.Errorf("live: send_buffer must be positive")
	}
	if m.cfg.WriteTimeout <= 0 {
		return fmt.Errorf("live: write_timeout must be positive")
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

// Stop disconnects every subscriber.
func (m *Module) Stop(_ context.Context) error {
	if m.hub != nil {
		m.hub.Close()
	}
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.hub == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"subscribers": fmt.Sprint(m.hub.Len())},
	}
}

// Hub returns the module's subscriber hub.
func (m *Module) Hub() *Hub { return m.hub }

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: pulse.TopicResult, Handler: m.relay(TypeResult)},
		{Topic: pulse.TopicAlert, Handler: m.relay(TypeAlert)},
		{Topic: pulse.TopicDevices, Handler: m.relay(TypeDevices)},
	}
}

func (m *Module) relay(typ string) plugin.EventHandler {
	return func(_ context.Context, event plugin.Event) {
		if m.hub == nil {
			return
		}
		m.hub.Broadcast(Message{Type: typ, Data: event.Payload})
	}
}

// Routes implements plugin.HTTPProvider. The WebSocket endpoint itself is
// mounted at the server root by the caller.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/stats", Handler: m.handleStats},
	}
}

// handleStats reports the current subscriber count.
//
//	@Summary	Live subscriber stats
//	@Tags		live
//	@Produce	json
//	@Success	200	{object}	map[string]int
//	@Router		/live/stats [get]
func (m *Module) handleStats(w http.ResponseWriter, _ *http.Request) {
	n := 0
	if m.hub != nil {
		n = m.hub.Len()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"subscribers": n})
}

// HandleWebSocket upgrades the request, sends the current devices and
// unresolved alerts, then streams events until either side closes.
//
//	@Summary		Live monitoring stream
//	@Description	WebSocket. Messages are {type, data} with type devices, alerts, result or alert.
//	@Tags			live
//	@Success		101
//	@Router			/ws/monitoring [get]
func (m *Module) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.hub == nil || m.source == nil {
		http.Error(w, "live module not initialized", http.StatusServiceUnavailable)
		return
	}

	// The connection outlives the server's per-request deadlines.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.cfg.AllowedOrigins,
	})
	if err != nil {
		m.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := NewSubscriber(m.cfg.SendBuffer)
	unsubscribe := m.hub.Subscribe(sub)
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	log := m.logger.With(zap.String("remote", r.RemoteAddr))
	log.Debug("subscriber connected")

	if err := m.sendSnapshot(ctx, conn); err != nil {
		log.Debug("snapshot failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("subscriber disconnected")
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := m.write(ctx, conn, msg); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("write failed", zap.String("type", msg.Type), zap.Error(err))
				}
				return
			}
		}
	}
}

func (m *Module) sendSnapshot(ctx context.Context, conn *websocket.Conn) error {
	devices, err := m.source.DeviceViews(ctx)
	if err != nil {
		m.logger.Warn("failed to load devices for snapshot", zap.Error(err))
		return err
	}
	if err := m.write(ctx, conn, Message{Type: TypeDevices, Data: devices}); err != nil {
		return err
	}

	alerts, err := m.source.ActiveAlerts(ctx)
	if err != nil {
		m.logger.Warn("failed to load alerts for snapshot", zap.Error(err))
		return err
	}
	return m.write(ctx, conn, Message{Type: TypeAlerts, Data: alerts})
}

func (m *Module) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// WithSource sets the snapshot source instead of resolving the pulse plugin.
func (m *Module) WithSource(src SnapshotSource) *Module {
	m.source = src
	return m
}
