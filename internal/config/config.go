// Package config handles global configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfigInvalid wraps every validation failure.
var ErrConfigInvalid = errors.New("usbrevue: invalid configuration")

// GlobalConfig represents the top-level configuration.
// Maps to the `usbrevue:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Capture CaptureConfig `mapstructure:"capture"`
	Modify  ModifyConfig  `mapstructure:"modify"`
	Stats   StatsConfig   `mapstructure:"stats"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // trace / debug / info / warn / error
	Format     string           `mapstructure:"format"`      // text / json / pattern
	Pattern    string           `mapstructure:"pattern"`     // used by format=pattern
	TimeFormat string           `mapstructure:"time_format"` // used by format=pattern
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations. stderr is always on.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Capture I/O ───

// CaptureConfig controls the pcap writer.
type CaptureConfig struct {
	Snaplen     uint32 `mapstructure:"snaplen"`
	Nanoseconds bool   `mapstructure:"nanoseconds"` // write nanosecond-resolution pcap
}

// ─── Modify ───

// Error policies for records the pipeline cannot process.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// ModifyConfig holds defaults for the modify command.
type ModifyConfig struct {
	OnError string `mapstructure:"on_error"`
	Verbose bool   `mapstructure:"verbose"`
}

// ─── Stats ───

// StatsConfig holds defaults for the stats command.
type StatsConfig struct {
	Offsets []int `mapstructure:"offsets"` // data[] offsets to track min/max for
}

// ─── Loading ───

type configRoot struct {
	Usbrevue GlobalConfig `mapstructure:"usbrevue"`
}

// Load loads configuration from file. An empty path yields the defaults,
// still subject to environment overrides.
// Env vars use the USBREVUE_ prefix (e.g., USBREVUE_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `usbrevue.` key prefix maps to `USBREVUE_` in env vars via the
	// key replacer (e.g., key "usbrevue.log.level" → env "USBREVUE_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Usbrevue

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration.
// Environment overrides are not applied.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		panic(err)
	}
	cfg := root.Usbrevue
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		panic(err)
	}
	return &cfg
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("usbrevue.log.level", "info")
	v.SetDefault("usbrevue.log.format", "text")
	v.SetDefault("usbrevue.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("usbrevue.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("usbrevue.log.outputs.file.enabled", false)
	v.SetDefault("usbrevue.log.outputs.file.path", "usbrevue.log")
	v.SetDefault("usbrevue.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("usbrevue.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("usbrevue.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("usbrevue.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("usbrevue.metrics.enabled", false)
	v.SetDefault("usbrevue.metrics.listen", ":9091")
	v.SetDefault("usbrevue.metrics.path", "/metrics")

	// Capture defaults
	v.SetDefault("usbrevue.capture.snaplen", 262144)
	v.SetDefault("usbrevue.capture.nanoseconds", false)

	// Modify defaults
	v.SetDefault("usbrevue.modify.on_error", OnErrorAbort)
	v.SetDefault("usbrevue.modify.verbose", false)

	// Stats defaults
	v.SetDefault("usbrevue.stats.offsets", []int{})
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be trace/debug/info/warn/error)", ErrConfigInvalid, cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json", "pattern":
	default:
		return fmt.Errorf("%w: log format %q (must be text/json/pattern)", ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", ErrConfigInvalid)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Capture.Snaplen == 0 {
		cfg.Capture.Snaplen = 262144
	}

	cfg.Modify.OnError = strings.ToLower(cfg.Modify.OnError)
	if cfg.Modify.OnError != OnErrorAbort && cfg.Modify.OnError != OnErrorSkip {
		return fmt.Errorf("%w: modify.on_error %q (must be abort/skip)", ErrConfigInvalid, cfg.Modify.OnError)
	}

	for _, off := range cfg.Stats.Offsets {
		if off < 0 {
			return fmt.Errorf("%w: stats.offsets contains negative offset %d", ErrConfigInvalid, off)
		}
	}

	return nil
}
