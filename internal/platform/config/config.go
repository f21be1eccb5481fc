// Package config holds the tunables of a colony run: simulation pacing,
// vitality rates, storage and transport settings.
//
// Profiles mirror the deployment shapes we run: Default for production,
// Fast for scenario runs and load tests, LowResource for development boxes.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a simulation run.
type Config struct {
	// Pacing
	TickLength      time.Duration `yaml:"tick_length"`      // real time between two refreshes
	HourLength      time.Duration `yaml:"hour_length"`      // real time of one in-game hour
	TimerResolution time.Duration `yaml:"timer_resolution"` // how often due timers are fired
	DeathGrace      time.Duration `yaml:"death_grace"`      // delay between death and removal

	// Vitality, in points per in-game hour
	EnergyDrainIdle     float64 `yaml:"energy_drain_idle"`
	EnergyDrainBusy     float64 `yaml:"energy_drain_busy"`
	ActionEnergyPerHour float64 `yaml:"action_energy_per_hour"`

	// Colony
	IncidentChance float64 `yaml:"incident_chance"` // probability per tick once settled
	SettleResource string  `yaml:"settle_resource"`
	SettleAmount   float64 `yaml:"settle_amount"`
	InitialPeople  int     `yaml:"initial_people"`
	Seed           int64   `yaml:"seed"` // 0 picks a time based seed

	// Persistence
	AutosaveEvery  time.Duration `yaml:"autosave_every"`
	StoreDriver    string        `yaml:"store_driver"` // sqlite, postgres or file
	StoreDSN       string        `yaml:"store_dsn"`
	DBMaxOpenConns int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns int           `yaml:"db_max_idle_conns"`
	JournalSize    int           `yaml:"journal_size"`

	// Cache
	RedisAddr     string        `yaml:"redis_addr"` // empty disables the view cache
	RedisPoolSize int           `yaml:"redis_pool_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	// Transport
	HTTPAddr             string  `yaml:"http_addr"`
	ClientSendBuffer     int     `yaml:"client_send_buffer"`
	MaxMessagesPerSecond float64 `yaml:"max_messages_per_second"` // per websocket client
	MaxClients           int     `yaml:"max_clients"`

	// Name source
	NamesURL string  `yaml:"names_url"` // empty uses the built-in list
	NamesRPS float64 `yaml:"names_rps"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		TickLength:      1 * time.Second,
		HourLength:      2 * time.Second,
		TimerResolution: 50 * time.Millisecond,
		DeathGrace:      3 * time.Second,

		EnergyDrainIdle:     0.5,
		EnergyDrainBusy:     1.5,
		ActionEnergyPerHour: 2,

		IncidentChance: 0.01,
		SettleResource: "wood",
		SettleAmount:   10,
		InitialPeople:  2,

		AutosaveEvery:  30 * time.Second,
		StoreDriver:    "sqlite",
		StoreDSN:       "data/colony.db",
		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,
		JournalSize:    4096,

		RedisPoolSize: numCPU * 2,
		CacheTTL:      15 * time.Minute,

		HTTPAddr:             ":8080",
		ClientSendBuffer:     64,
		MaxMessagesPerSecond: 10,
		MaxClients:           200,

		NamesRPS: 1,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// FastConfig compresses time for scenario runs and load tests.
func FastConfig() *Config {
	cfg := DefaultConfig()
	cfg.TickLength = 50 * time.Millisecond
	cfg.HourLength = 100 * time.Millisecond
	cfg.TimerResolution = 5 * time.Millisecond
	cfg.DeathGrace = 200 * time.Millisecond
	cfg.IncidentChance = 0.05
	cfg.AutosaveEvery = 5 * time.Second
	cfg.ClientSendBuffer = 128
	cfg.MaxMessagesPerSecond = 500
	cfg.MaxClients = 500
	return cfg
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	cfg := DefaultConfig()
	cfg.DBMaxOpenConns = 5
	cfg.DBMaxIdleConns = 2
	cfg.RedisPoolSize = 5
	cfg.JournalSize = 256
	cfg.ClientSendBuffer = 8
	cfg.MaxMessagesPerSecond = 5
	cfg.MaxClients = 20
	cfg.LogLevel = "debug"
	return cfg
}

// Profile returns a named profile: default, fast or low.
func Profile(name string) (*Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "fast":
		return FastConfig(), nil
	case "low":
		return LowResourceConfig(), nil
	}
	return nil, fmt.Errorf("unknown profile %q", name)
}

// Load reads a YAML file over the given base profile. Keys absent from the
// file keep the profile value.
func Load(path string, base *Config) (*Config, error) {
	cfg := *base
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides deployment settings from COLONY_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"COLONY_HTTP_ADDR":    &c.HTTPAddr,
		"COLONY_STORE_DRIVER": &c.StoreDriver,
		"COLONY_STORE_DSN":    &c.StoreDSN,
		"COLONY_REDIS_ADDR":   &c.RedisAddr,
		"COLONY_NAMES_URL":    &c.NamesURL,
		"COLONY_LOG_LEVEL":    &c.LogLevel,
		"COLONY_LOG_FORMAT":   &c.LogFormat,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("COLONY_SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("COLONY_SEED: %w", err)
		}
		c.Seed = seed
	}
	return nil
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"tick_length":      c.TickLength,
		"hour_length":      c.HourLength,
		"timer_resolution": c.TimerResolution,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.DeathGrace < 0 {
		errs = append(errs, fmt.Errorf("death_grace must not be negative"))
	}
	if c.IncidentChance < 0 || c.IncidentChance > 1 {
		errs = append(errs, fmt.Errorf("incident_chance must be within [0,1], got %v", c.IncidentChance))
	}
	switch c.StoreDriver {
	case "sqlite", "postgres", "file", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown store_driver %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

// Hours converts a real duration into in-game hours.
func (c *Config) Hours(d time.Duration) float64 {
	return float64(d) / float64(c.HourLength)
}
