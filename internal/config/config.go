// Package config loads netwatch configuration through viper and exposes it to
// plugins as a plugin.Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/netwatch/pkg/plugin"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig adapts a *viper.Viper to plugin.Config. A nil viper behaves as
// an empty configuration.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// Load reads configuration from path (optional), NETWATCH_* environment
// variables and built-in defaults.
func Load(path string) (*ViperConfig, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("NETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.SetConfigName("netwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/netwatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return New(v), nil
}

// SetDefaults registers the default value of every known key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("database.path", "netwatch.db")
	v.SetDefault("log.level", "info")

	v.SetDefault("plugins.pulse.enabled", true)
	v.SetDefault("plugins.pulse.min_interval", "10s")
	v.SetDefault("plugins.pulse.max_interval", "1h")
	v.SetDefault("plugins.pulse.default_interval", "60s")
	v.SetDefault("plugins.pulse.max_concurrent_checks", 64)
	v.SetDefault("plugins.pulse.seed_file", "")

	v.SetDefault("plugins.live.enabled", true)
	v.SetDefault("plugins.live.send_buffer", 32)
	v.SetDefault("plugins.live.write_timeout", "5s")
}

// Viper returns the underlying viper instance.
func (c *ViperConfig) Viper() *viper.Viper { return c.v }

func (c *ViperConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c *ViperConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *ViperConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *ViperConfig) IsSet(key string) bool                { return c.v.IsSet(key) }

// Sub returns the subtree at key. A missing subtree yields an empty config,
// never nil.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		sub = viper.New()
	}
	return &ViperConfig{v: sub}
}

// Unmarshal decodes the whole config into target using mapstructure tags.
func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}
