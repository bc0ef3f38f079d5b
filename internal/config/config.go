// Package config loads simulator settings from defaults, an optional
// YAML or JSON file, and CELESTIAL_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/internal/observability"
)

// EnvPrefix is prepended to every environment override, e.g.
// CELESTIAL_LOG_LEVEL or CELESTIAL_SCRIPTING_ENABLED.
const EnvPrefix = "CELESTIAL"

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Backend string `mapstructure:"backend"`
	File    string `mapstructure:"file"`
}

type ScriptingConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	ModulePaths []string `mapstructure:"module_paths"`
	Preload     []string `mapstructure:"preload"`
}

type SimConfig struct {
	Tick        time.Duration `mapstructure:"tick"`
	Duration    time.Duration `mapstructure:"duration"`
	Accelerated bool          `mapstructure:"accelerated"`
	// Start is an RFC 3339 timestamp. Empty means the wall clock at startup.
	Start string `mapstructure:"start"`
}

type SceneConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

// Config is the full simulator configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Sim       SimConfig       `mapstructure:"sim"`
	Scene     SceneConfig     `mapstructure:"scene"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.backend", "slog")
	v.SetDefault("log.file", "")

	v.SetDefault("scripting.enabled", true)
	v.SetDefault("scripting.module_paths", []string{})
	v.SetDefault("scripting.preload", []string{})

	v.SetDefault("sim.tick", "1s")
	v.SetDefault("sim.duration", "10s")
	v.SetDefault("sim.accelerated", true)
	v.SetDefault("sim.start", "")

	v.SetDefault("scene.path", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "celestial-simulator")
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the simulator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sim.Tick <= 0 {
		errs = append(errs, fmt.Errorf("sim.tick must be positive, got %s", c.Sim.Tick))
	}
	if c.Sim.Duration < 0 {
		errs = append(errs, fmt.Errorf("sim.duration must not be negative, got %s", c.Sim.Duration))
	}
	if _, err := c.StartTime(time.Time{}); err != nil {
		errs = append(errs, err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0,1], got %v", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// StartTime parses sim.start, returning fallback when it is unset.
func (c *Config) StartTime(fallback time.Time) (time.Time, error) {
	if c.Sim.Start == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, c.Sim.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("sim.start: %w", err)
	}
	return t.UTC(), nil
}

// Logging maps the log section onto a logging.Config.
func (c *Config) Logging() logging.Config {
	lc := logging.Config{
		Level:   c.Log.Level,
		Format:  c.Log.Format,
		Backend: c.Log.Backend,
	}
	if c.Log.File != "" {
		lc.File = logging.DefaultFileConfig(c.Log.File)
	}
	return lc
}

// TracingSettings maps the tracing section onto an observability config.
func (c *Config) TracingSettings() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    strings.ToLower(c.Tracing.Exporter),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
