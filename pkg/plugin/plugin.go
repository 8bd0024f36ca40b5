// Package plugin defines the contracts shared by netwatch modules: the plugin
// lifecycle, HTTP routes, the in-process event bus and the persistence store.
package plugin

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Plugin API versions accepted by the registry.
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// PluginInfo describes a plugin to the registry.
type PluginInfo struct {
	Name         string
	Version      string
	Description  string
	Dependencies []string // Names of plugins that must initialize first.
	Required     bool     // A required plugin failing aborts startup.
	APIVersion   int
}

// Plugin is the lifecycle every module implements.
type Plugin interface {
	Info() PluginInfo
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Dependencies are injected into each plugin at Init.
type Dependencies struct {
	Config  Config
	Logger  *zap.Logger
	Store   Store
	Bus     EventBus
	Plugins PluginResolver

	// Metrics registers the plugin's Prometheus collectors. Nil means the
	// plugin keeps its collectors unexported.
	Metrics prometheus.Registerer
}

// PluginResolver looks up other registered plugins by name.
type PluginResolver interface {
	Get(name string) (Plugin, bool)
}

// Route represents an HTTP route exposed by a plugin.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Config is the read-only configuration view handed to plugins.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
	Unmarshal(target any) error
}

// Event is a message published on the event bus.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus is the in-process publish/subscribe channel between plugins.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	PublishAsync(ctx context.Context, event Event)
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Migration is one schema step owned by a plugin.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is the shared database handle.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, pluginName string, migrations []Migration) error
	Close() error
}
