// Package config loads and validates the monitor configuration from a
// YAML file, with credentials overridable from the environment so the
// API key never has to live in the checked-in config.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tranzymon.opentransit.org/internal/appconf"
	"tranzymon.opentransit.org/internal/models"
	"tranzymon.opentransit.org/internal/poll"
)

// DefaultPath is the config file used when no flag is given.
const DefaultPath = "config.yml"

const defaultStaticTTLHours = 4

// Stop configures one monitored stop.
type Stop struct {
	ID                  string `yaml:"id" validate:"required"`
	Name                string `yaml:"name"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" validate:"gte=0"`
	VehicleTypes        []int  `yaml:"vehicle_types"`
	MaxRows             int    `yaml:"max_rows" validate:"gte=0"`
}

// StopID returns the stop identifier as a model ID.
func (s Stop) StopID() models.ID { return models.ID(s.ID) }

// PollInterval returns the configured cadence, floored at the minimum the
// coordinator enforces. Zero means the default cadence.
func (s Stop) PollInterval() time.Duration {
	if s.PollIntervalSeconds == 0 {
		return poll.DefaultInterval
	}
	interval := time.Duration(s.PollIntervalSeconds) * time.Second
	if interval < poll.MinInterval {
		return poll.MinInterval
	}
	return interval
}

// Config is the full monitor configuration.
type Config struct {
	APIKey         string `yaml:"api_key" validate:"required"`
	AgencyID       string `yaml:"agency_id" validate:"required"`
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	Env            string `yaml:"env" validate:"omitempty,oneof=development test production"`
	ListenAddr     string `yaml:"listen_addr"`
	StaticTTLHours int    `yaml:"static_ttl_hours" validate:"gte=0"`
	Stops          []Stop `yaml:"stops" validate:"min=1,dive"`
}

// Environment maps the env string onto the application environment.
func (c *Config) Environment() appconf.Environment {
	return appconf.EnvFromString(c.Env)
}

// StaticTTL returns how long the static schedule snapshot stays fresh.
func (c *Config) StaticTTL() time.Duration {
	return time.Duration(c.StaticTTLHours) * time.Hour
}

// Load reads, overlays, and validates the configuration at path. A .env
// file next to the working directory is honored before the environment
// overlay runs.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRANZY_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("TRANZY_AGENCY_ID"); v != "" {
		c.AgencyID = v
	}
	if v := os.Getenv("TRANZY_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("MONITOR_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "production"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8093"
	}
	if c.StaticTTLHours == 0 {
		c.StaticTTLHours = defaultStaticTTLHours
	}
}
