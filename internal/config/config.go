// Package config loads server and simulator settings from defaults, an
// optional YAML file and MCSIM_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
)

// EnvPrefix is prepended to every environment override, e.g. MCSIM_SERVER_PORT.
const EnvPrefix = "MCSIM"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Results   ResultsConfig   `mapstructure:"results" yaml:"results"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
	WebSocketPath string        `mapstructure:"websocketPath" yaml:"websocketPath"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// SimulatorConfig represents Monte Carlo engine configuration
type SimulatorConfig struct {
	Workers          int   `mapstructure:"workers" yaml:"workers"` // 0 means NumCPU
	Seed             int64 `mapstructure:"seed" yaml:"seed"`       // 0 means time-based
	ProgressInterval int   `mapstructure:"progressInterval" yaml:"progressInterval"`
	MaxTrades        int   `mapstructure:"maxTrades" yaml:"maxTrades"`
	MaxSimulations   int   `mapstructure:"maxSimulations" yaml:"maxSimulations"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ResultsConfig sizes the in-memory result registry
type ResultsConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "localhost",
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  2 * time.Minute,
			WebSocketPath: "/ws",
		},
		Log: LogConfig{Level: "info"},
		Simulator: SimulatorConfig{
			Workers:          0,
			Seed:             0,
			ProgressInterval: 0,
			MaxTrades:        10_000,
			MaxSimulations:   100_000,
		},
		Metrics: MetricsConfig{Enabled: true},
		Results: ResultsConfig{Capacity: 100},
	}
}

// Load reads configuration. path may be empty, in which case only defaults and
// environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.websocketPath", d.Server.WebSocketPath)

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("simulator.workers", d.Simulator.Workers)
	v.SetDefault("simulator.seed", d.Simulator.Seed)
	v.SetDefault("simulator.progressInterval", d.Simulator.ProgressInterval)
	v.SetDefault("simulator.maxTrades", d.Simulator.MaxTrades)
	v.SetDefault("simulator.maxSimulations", d.Simulator.MaxSimulations)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("results.capacity", d.Results.Capacity)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("server.websocketPath must start with '/', got %q", c.Server.WebSocketPath))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	if c.Simulator.Workers < 0 {
		errs = append(errs, errors.New("simulator.workers must not be negative"))
	}
	if c.Simulator.ProgressInterval < 0 {
		errs = append(errs, errors.New("simulator.progressInterval must not be negative"))
	}
	if c.Simulator.MaxTrades <= 0 {
		errs = append(errs, errors.New("simulator.maxTrades must be positive"))
	}
	if c.Simulator.MaxSimulations <= 0 {
		errs = append(errs, errors.New("simulator.maxSimulations must be positive"))
	}

	if c.Results.Capacity <= 0 {
		errs = append(errs, errors.New("results.capacity must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Limits returns the batch caps applied to incoming requests.
func (s SimulatorConfig) Limits() montecarlo.Limits {
	return montecarlo.Limits{
		MaxTrades:      s.MaxTrades,
		MaxSimulations: s.MaxSimulations,
	}
}

// EngineConfig maps the section onto the engine's own config.
func (s SimulatorConfig) EngineConfig() *montecarlo.SimulatorConfig {
	cfg := montecarlo.DefaultSimulatorConfig()
	cfg.Seed = s.Seed
	cfg.ParallelWorkers = s.Workers
	cfg.ProgressInterval = s.ProgressInterval
	return cfg
}
