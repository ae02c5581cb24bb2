// Package config loads npcsim settings from defaults, an optional YAML file
// and NPCSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talgya/npcsim/internal/agents"
)

// Config holds all configuration for npcsim.
type Config struct {
	Sim      SimConfig      `mapstructure:"sim"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`

	// Brain is the default agent tuning. Scenario files may override it.
	Brain agents.Config `mapstructure:"brain"`
}

// SimConfig controls the tick loop.
type SimConfig struct {
	TickRate    int     `mapstructure:"tick_rate"` // steps per simulated second
	Speed       float64 `mapstructure:"speed"`     // real-time multiplier
	Seed        int64   `mapstructure:"seed"`
	ReportEvery uint64  `mapstructure:"report_every"` // ticks
	SaveEvery   uint64  `mapstructure:"save_every"`   // ticks
	MaxEvents   int     `mapstructure:"max_events"`
}

type ScenarioConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig locates the save database and the event archive.
// Empty paths disable them.
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	EventLogDir string `mapstructure:"event_log_dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	AdminKey        string        `mapstructure:"admin_key"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ObserveInterval time.Duration `mapstructure:"observe_interval"`
	StreamsPerHour  int           `mapstructure:"streams_per_hour"` // per client IP
}

// String returns a safe representation of APIConfig with the admin key masked.
func (c APIConfig) String() string {
	return fmt.Sprintf("APIConfig{Enabled:%t, ListenAddr:%s, AdminKey:%s, CORSOrigins:%v}", c.Enabled, c.ListenAddr, maskKey(c.AdminKey), c.CORSOrigins)
}

// maskKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// Load reads configuration from path (or ./npcsim.yaml when empty) and the
// environment. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("sim.tick_rate", 10)
	v.SetDefault("sim.speed", 1.0)
	v.SetDefault("sim.seed", 42)
	v.SetDefault("sim.report_every", 600)
	v.SetDefault("sim.save_every", 3000)
	v.SetDefault("sim.max_events", 1000)

	v.SetDefault("scenario.path", "scenarios/village.yaml")

	v.SetDefault("storage.db_path", "data/npcsim.db")
	v.SetDefault("storage.event_log_dir", "data/events")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.admin_key", "")
	v.SetDefault("api.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("api.observe_interval", "500ms")
	v.SetDefault("api.streams_per_hour", 60)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("npcsim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NPCSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK; use defaults + env vars
	}

	cfg := Config{Brain: agents.DefaultConfig()}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Sim.TickRate <= 0 || c.Sim.TickRate > 1000 {
		return fmt.Errorf("sim.tick_rate must be in [1, 1000]")
	}
	if c.Sim.Speed < 0 {
		return fmt.Errorf("sim.speed must be >= 0")
	}
	if c.Sim.MaxEvents <= 0 {
		return fmt.Errorf("sim.max_events must be greater than 0")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	if c.API.Enabled && c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr must not be empty when api.enabled")
	}
	if c.API.ObserveInterval < 10*time.Millisecond {
		return fmt.Errorf("api.observe_interval must be at least 10ms")
	}
	if err := c.Brain.Validate(); err != nil {
		return fmt.Errorf("brain: %w", err)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the process logger for the logging section.
func NewLogger(c LoggingConfig, w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
