package config

import (
	"fmt"
	"os"
	"strings"

	"tvbridge/internal/controls"
	"tvbridge/internal/tvoverlay"

	"gopkg.in/yaml.v3"
)

// DefaultListenPort is the port the bridge API listens on when the config
// does not say otherwise.
const DefaultListenPort = 8423

// Default overlay visibilities for sun-scheduled dimming.
const (
	DefaultDayVisibility   = 95
	DefaultNightVisibility = 40
)

// Config is the bridge configuration file.
type Config struct {
	ListenPort    int              `yaml:"listen_port"`
	DataDir       string           `yaml:"data_dir"`
	HomeAssistant *HomeAssistant   `yaml:"home_assistant"`
	Devices       []Device         `yaml:"devices"`
	Controls      []ControlBinding `yaml:"controls"`
	Dimming       *Dimming         `yaml:"dimming"`
}

// HomeAssistant holds the connection settings for the entity mirror. The
// access token always comes from the environment, never from this file.
type HomeAssistant struct {
	URL string `yaml:"url"`
}

// Device describes one TvOverlay installation.
type Device struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Key returns the stable identifier other config sections and the state
// store use for this device: the explicit id when set, host:port otherwise.
func (d Device) Key() string {
	if d.ID != "" {
		return d.ID
	}
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// ControlBinding maps a Home Assistant entity onto a TvOverlay control of
// one device.
type ControlBinding struct {
	Entity  string `yaml:"entity"`
	Device  string `yaml:"device"`
	Control string `yaml:"control"`
}

// Dimming configures sun-scheduled overlay visibility.
type Dimming struct {
	Enabled         bool     `yaml:"enabled"`
	Latitude        float64  `yaml:"latitude"`
	Longitude       float64  `yaml:"longitude"`
	DayVisibility   *int     `yaml:"day_visibility"`
	NightVisibility *int     `yaml:"night_visibility"`
	Devices         []string `yaml:"devices"`
}

// Load reads, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.ListenPort == 0 {
		cfg.ListenPort = DefaultListenPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	for i := range cfg.Devices {
		if cfg.Devices[i].Port == 0 {
			cfg.Devices[i].Port = tvoverlay.DefaultPort
		}
	}

	if cfg.Dimming != nil {
		if cfg.Dimming.DayVisibility == nil {
			v := DefaultDayVisibility
			cfg.Dimming.DayVisibility = &v
		}
		if cfg.Dimming.NightVisibility == nil {
			v := DefaultNightVisibility
			cfg.Dimming.NightVisibility = &v
		}
	}
}

// Validate checks the configuration for structural problems. It does not
// try to reach any device.
func (cfg *Config) Validate() error {
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	seen := map[string]bool{}
	for i, d := range cfg.Devices {
		if d.Host == "" {
			return fmt.Errorf("device %d: host is required", i)
		}
		if d.Port < 1 || d.Port > 65535 {
			return fmt.Errorf("device %s: port %d out of range", d.Host, d.Port)
		}
		key := d.Key()
		if seen[key] {
			return fmt.Errorf("duplicate device %s", key)
		}
		seen[key] = true
	}

	byKey := controls.ByKey()
	for i, b := range cfg.Controls {
		if !strings.Contains(b.Entity, ".") {
			return fmt.Errorf("control binding %d: %q is not an entity id", i, b.Entity)
		}
		if _, ok := byKey[b.Control]; !ok {
			return fmt.Errorf("control binding %d: unknown control %q", i, b.Control)
		}
		if b.Device == "" {
			return fmt.Errorf("control binding %d: device is required", i)
		}
		if cfg.FindDevice(b.Device) == nil {
			return fmt.Errorf("control binding %d: unknown device %q", i, b.Device)
		}
	}

	if cfg.Dimming != nil && cfg.Dimming.Enabled {
		d := cfg.Dimming
		if d.Latitude < -90 || d.Latitude > 90 {
			return fmt.Errorf("dimming: latitude %v out of range", d.Latitude)
		}
		if d.Longitude < -180 || d.Longitude > 180 {
			return fmt.Errorf("dimming: longitude %v out of range", d.Longitude)
		}
		if *d.DayVisibility < 0 || *d.DayVisibility > 95 {
			return fmt.Errorf("dimming: day_visibility %d out of range 0..95", *d.DayVisibility)
		}
		if *d.NightVisibility < 0 || *d.NightVisibility > 95 {
			return fmt.Errorf("dimming: night_visibility %d out of range 0..95", *d.NightVisibility)
		}
		for _, ref := range d.Devices {
			if cfg.FindDevice(ref) == nil {
				return fmt.Errorf("dimming: unknown device %q", ref)
			}
		}
	}

	return nil
}

// FindDevice resolves a config-level device reference: id, name, host, or
// host:port.
func (cfg *Config) FindDevice(ref string) *Device {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.ID == ref || d.Name == ref || d.Host == ref || d.Key() == ref {
			return d
		}
		if fmt.Sprintf("%s:%d", d.Host, d.Port) == ref {
			return d
		}
	}
	return nil
}
