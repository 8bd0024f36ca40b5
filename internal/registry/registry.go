// Package registry manages plugin registration, dependency ordering and the
// Init/Start/Stop lifecycle.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/HerbHall/netwatch/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.PluginResolver = (*Registry)(nil)

// Registry holds every registered plugin and the order they start in.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	order    []string // registration order, then dependency order after Validate
	disabled map[string]string
	unsubs   []func()
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		disabled: make(map[string]string),
		logger:   logger,
	}
}

// Register adds a plugin. Names must be unique and non-empty.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Info().Name
	if name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	r.logger.Info("plugin registered", zap.String("name", name), zap.String("version", p.Info().Version))
	return nil
}

// Validate checks API versions and dependencies, disables optional plugins
// that cannot run (cascading to their dependents) and sorts the remainder so
// every plugin follows its dependencies.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		info := r.plugins[name].Info()
		if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
			reason := fmt.Sprintf("api version %d outside [%d, %d]", info.APIVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
			if err := r.disableLocked(info, reason); err != nil {
				return err
			}
		}
	}

	// Repeat until no more plugins are disabled so that disabling cascades.
	for changed := true; changed; {
		changed = false
		for _, name := range r.order {
			if _, off := r.disabled[name]; off {
				continue
			}
			info := r.plugins[name].Info()
			for _, dep := range info.Dependencies {
				_, registered := r.plugins[dep]
				_, depOff := r.disabled[dep]
				if registered && !depOff {
					continue
				}
				if err := r.disableLocked(info, fmt.Sprintf("dependency %q unavailable", dep)); err != nil {
					return err
				}
				changed = true
				break
			}
		}
	}

	sorted, err := r.sortLocked()
	if err != nil {
		return err
	}
	r.order = sorted
	return nil
}

func (r *Registry) disableLocked(info plugin.PluginInfo, reason string) error {
	if info.Required {
		return fmt.Errorf("required plugin %q: %s", info.Name, reason)
	}
	r.disabled[info.Name] = reason
	r.logger.Warn("plugin disabled", zap.String("name", info.Name), zap.String("reason", reason))
	return nil
}

// sortLocked orders plugins topologically, preserving registration order
// among independent plugins. Disabled plugins are appended at the end.
func (r *Registry) sortLocked() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.order))
	sorted := make([]string, 0, len(r.order))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("dependency cycle involving plugin %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range r.plugins[name].Info().Dependencies {
			if _, off := r.disabled[dep]; off {
				continue
			}
			if _, ok := r.plugins[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			sorted = append(sorted, name)
		}
	}
	return sorted, nil
}

// IsDisabled reports whether the named plugin was disabled by Validate or a
// failed Init.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.disabled[name]
	return off
}

// InitAll initializes every enabled plugin in dependency order. depsFor
// builds each plugin's Dependencies. An optional plugin that fails Init or
// ValidateConfig is disabled; a required one aborts.
func (r *Registry) InitAll(ctx context.Context, depsFor func(name string) plugin.Dependencies) error {
	for _, name := range r.enabled() {
		p, _ := r.Get(name)
		info := p.Info()
		deps := depsFor(name)
		if deps.Plugins == nil {
			deps.Plugins = r
		}

		r.logger.Info("initializing plugin", zap.String("name", name))
		err := p.Init(ctx, deps)
		if err == nil {
			if v, ok := p.(plugin.Validator); ok {
				err = v.ValidateConfig()
			}
		}
		if err != nil {
			if info.Required {
				return fmt.Errorf("initialize plugin %q: %w", name, err)
			}
			r.mu.Lock()
			r.disabled[name] = err.Error()
			r.mu.Unlock()
			r.logger.Warn("optional plugin failed to initialize, disabling",
				zap.String("name", name), zap.Error(err))
			continue
		}

		if sub, ok := p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, s := range sub.Subscriptions() {
				var unsub func()
				if s.Topic == "" {
					unsub = deps.Bus.SubscribeAll(s.Handler)
				} else {
					unsub = deps.Bus.Subscribe(s.Topic, s.Handler)
				}
				r.mu.Lock()
				r.unsubs = append(r.unsubs, unsub)
				r.mu.Unlock()
			}
		}
	}
	return nil
}

// StartAll starts every enabled plugin in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.enabled() {
		p, _ := r.Get(name)
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start plugin %q: %w", name, err)
		}
	}
	return nil
}

// StopAll removes event subscriptions and stops plugins in reverse order.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()
	for _, u := range unsubs {
		u()
	}

	names := r.enabled()
	for i := len(names) - 1; i >= 0; i-- {
		p, _ := r.Get(names[i])
		r.logger.Info("stopping plugin", zap.String("name", names[i]))
		if err := p.Stop(ctx); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", names[i]), zap.Error(err))
		}
	}
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// All returns every registered plugin in the current order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name])
	}
	return out
}

// AllRoutes returns the routes of every enabled HTTPProvider, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	routes := make(map[string][]plugin.Route)
	for _, name := range r.enabled() {
		p, _ := r.Get(name)
		if hp, ok := p.(plugin.HTTPProvider); ok {
			if rs := hp.Routes(); len(rs) > 0 {
				routes[name] = rs
			}
		}
	}
	return routes
}

func (r *Registry) enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if _, off := r.disabled[name]; !off {
			out = append(out, name)
		}
	}
	return out
}
