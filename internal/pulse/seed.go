package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/netwatch/internal/services"
	"github.com/HerbHall/netwatch/pkg/models"
)

// SeedFile is the YAML document loaded by SeedFromFile.
//
//	devices:
//	  - name: Core Router
//	    address: 192.168.1.1
//	    category: router
//	    monitors:
//	      - type: icmp
//	        interval: 60
//	        config: {count: 3}
type SeedFile struct {
	Devices []SeedDevice `yaml:"devices"`
}

// SeedDevice declares one device and its monitors.
type SeedDevice struct {
	Name     string        `yaml:"name"`
	Address  string        `yaml:"address"`
	Category string        `yaml:"category"`
	Monitors []SeedMonitor `yaml:"monitors"`
}

// SeedMonitor declares one monitor. Enabled defaults to true.
type SeedMonitor struct {
	Type     string         `yaml:"type"`
	Interval int            `yaml:"interval"`
	Enabled  *bool          `yaml:"enabled"`
	Config   map[string]any `yaml:"config"`
}

// SeedFromFile loads devices and monitors from a YAML file. Nothing is
// loaded when the devices table already has rows.
func (m *Module) SeedFromFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return m.Seed(ctx, f)
}

// Seed loads devices and monitors from YAML read from r. It is a no-op when
// any device already exists. Every entry is validated before anything is
// written.
func (m *Module) Seed(ctx context.Context, r io.Reader) error {
	existing, err := m.devices.List(ctx, services.DeviceFilter{}, services.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	if existing.Total > 0 {
		m.logger.Debug("devices present, seed skipped", zap.Int("devices", existing.Total))
		return nil
	}

	var doc SeedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return fmt.Errorf("decode seed: %w", err)
	}

	type planned struct {
		device   models.Device
		monitors []models.Monitor
	}
	plan := make([]planned, 0, len(doc.Devices))
	for i, sd := range doc.Devices {
		p := planned{device: models.Device{
			Name:     sd.Name,
			Address:  sd.Address,
			Category: models.DeviceCategory(sd.Category),
		}}
		if err := validateDevice(&p.device); err != nil {
			return fmt.Errorf("seed device %d: %w", i, err)
		}
		for j, sm := range sd.Monitors {
			mon, err := seedMonitor(sm)
			if err != nil {
				return fmt.Errorf("seed device %d monitor %d: %w", i, j, err)
			}
			check := mon
			check.DeviceID = "seed"
			if check.IntervalSeconds == 0 {
				check.IntervalSeconds = int(m.cfg.DefaultInterval / time.Second)
			}
			if err := check.Validate(m.minSec(), m.maxSec()); err != nil {
				return fmt.Errorf("seed device %d monitor %d: %w", i, j, err)
			}
			p.monitors = append(p.monitors, mon)
		}
		plan = append(plan, p)
	}

	monitors := 0
	for i := range plan {
		if err := m.devices.Create(ctx, &plan[i].device); err != nil {
			return fmt.Errorf("seed device %q: %w", plan[i].device.Name, err)
		}
		for j := range plan[i].monitors {
			mon := &plan[i].monitors[j]
			mon.DeviceID = plan[i].device.ID
			if err := m.CreateMonitor(ctx, mon); err != nil {
				return fmt.Errorf("seed monitor for %q: %w", plan[i].device.Name, err)
			}
			monitors++
		}
	}
	m.logger.Info("database seeded",
		zap.Int("devices", len(plan)),
		zap.Int("monitors", monitors),
	)
	if len(plan) > 0 {
		m.publishDevices(ctx)
	}
	return nil
}

func seedMonitor(sm SeedMonitor) (models.Monitor, error) {
	kind := models.MonitorKind(sm.Type)
	raw, err := json.Marshal(sm.Config)
	if err != nil {
		return models.Monitor{}, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	cfg, err := models.DecodeMonitorConfig(kind, raw)
	if err != nil {
		return models.Monitor{}, err
	}
	enabled := true
	if sm.Enabled != nil {
		enabled = *sm.Enabled
	}
	return models.Monitor{
		Kind:            kind,
		Config:          cfg,
		Enabled:         enabled,
		IntervalSeconds: sm.Interval,
	}, nil
}
