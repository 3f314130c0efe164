// Package config provides configuration loading for batchplan.
// Policy constants that are empirically tuned (target chunk duration,
// adaptation rate, benefit threshold) live here with documented
// defaults, overridable through a YAML file or BATCHPLAN_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Planner policy defaults. These are tuned constants, not derived values:
// the benefit threshold absorbs measurement noise on spawn-cost and
// per-item timings, and the target chunk duration balances scheduling
// overhead against load-balancing granularity.
const (
	// DefaultTargetChunkDuration is how long one dispatched batch
	// should take. Batches much shorter than this pay dispatch
	// overhead per item; much longer ones balance load poorly.
	DefaultTargetChunkDuration = 200 * time.Millisecond

	// DefaultMinBenefit is the minimum estimated speedup a parallel
	// candidate must clear before parallelism is worth the risk of a
	// mis-measured model.
	DefaultMinBenefit = 1.5

	// DefaultMemoryFraction is the fraction of available memory the
	// worker set may collectively claim.
	DefaultMemoryFraction = 0.8

	// DefaultSampleSize is the number of dataset items probed serially
	// before planning.
	DefaultSampleSize = 5

	// DefaultHighVariability is the coefficient-of-variation threshold
	// above which the initial batch size is shrunk and runtime
	// adaptation is recommended.
	DefaultHighVariability = 0.5
)

// Adaptive controller defaults.
const (
	// DefaultAdaptationRate is the smoothing factor for batch size
	// updates, in [0, 1]. 0 freezes the size; 1 jumps straight to the
	// window's implied size.
	DefaultAdaptationRate = 0.5

	// DefaultTolerance is the relative deviation between the window
	// average and the target duration below which no adaptation fires.
	DefaultTolerance = 0.25

	// DefaultWindowSize is the capacity of the batch duration window.
	DefaultWindowSize = 10
)

// Profiler cache defaults.
const (
	// DefaultSpawnCostTTL is how long a spawn-cost measurement stays
	// fresh. Spawn cost drifts only with system load, slowly.
	DefaultSpawnCostTTL = 5 * time.Minute

	// DefaultMemoryTTL is how long a memory reading stays fresh.
	// Memory is queried per planning call but changes slowly.
	DefaultMemoryTTL = 10 * time.Second

	// DefaultSpawnMeasureTimeout bounds a single spawn-cost probe.
	DefaultSpawnMeasureTimeout = 5 * time.Second
)

// PlannerConfig configures the planning policy.
type PlannerConfig struct {
	TargetChunkDuration time.Duration `mapstructure:"target_chunk_duration"`
	MinBenefit          float64       `mapstructure:"min_benefit"`
	MemoryFraction      float64       `mapstructure:"memory_fraction"`
	SampleSize          int           `mapstructure:"sample_size"`
	HighVariability     float64       `mapstructure:"high_variability"`
}

// AdaptiveConfig configures the runtime batch controller.
type AdaptiveConfig struct {
	Rate      float64 `mapstructure:"rate"`
	Tolerance float64 `mapstructure:"tolerance"`
	Window    int     `mapstructure:"window"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	Planner  PlannerConfig  `mapstructure:"planner"`
	Adaptive AdaptiveConfig `mapstructure:"adaptive"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// StorePath is where decisions and cached results are persisted.
	// Empty disables persistence.
	StorePath string `mapstructure:"store_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Planner: PlannerConfig{
			TargetChunkDuration: DefaultTargetChunkDuration,
			MinBenefit:          DefaultMinBenefit,
			MemoryFraction:      DefaultMemoryFraction,
			SampleSize:          DefaultSampleSize,
			HighVariability:     DefaultHighVariability,
		},
		Adaptive: AdaptiveConfig{
			Rate:      DefaultAdaptationRate,
			Tolerance: DefaultTolerance,
			Window:    DefaultWindowSize,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/batchplan/config.yaml
//   - $HOME/.config/batchplan/config.yaml
//
// Environment variables are prefixed with BATCHPLAN_
// (e.g., BATCHPLAN_PLANNER_MIN_BENEFIT).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "batchplan"))
	}
	homeDir, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "batchplan"))
	}

	v.SetEnvPrefix("BATCHPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("planner.target_chunk_duration", DefaultTargetChunkDuration)
	v.SetDefault("planner.min_benefit", DefaultMinBenefit)
	v.SetDefault("planner.memory_fraction", DefaultMemoryFraction)
	v.SetDefault("planner.sample_size", DefaultSampleSize)
	v.SetDefault("planner.high_variability", DefaultHighVariability)
	v.SetDefault("adaptive.rate", DefaultAdaptationRate)
	v.SetDefault("adaptive.tolerance", DefaultTolerance)
	v.SetDefault("adaptive.window", DefaultWindowSize)
	v.SetDefault("logging.level", "info")
	v.SetDefault("store_path", "")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configured policy values for sanity.
func (c *Config) Validate() error {
	if c.Planner.TargetChunkDuration <= 0 {
		return fmt.Errorf("planner.target_chunk_duration must be positive, got %v", c.Planner.TargetChunkDuration)
	}
	if c.Planner.MinBenefit < 1.0 {
		return fmt.Errorf("planner.min_benefit must be >= 1.0, got %v", c.Planner.MinBenefit)
	}
	if c.Planner.MemoryFraction <= 0 || c.Planner.MemoryFraction > 1 {
		return fmt.Errorf("planner.memory_fraction must be in (0, 1], got %v", c.Planner.MemoryFraction)
	}
	if c.Planner.SampleSize < 1 {
		return fmt.Errorf("planner.sample_size must be >= 1, got %d", c.Planner.SampleSize)
	}
	if c.Adaptive.Rate < 0 || c.Adaptive.Rate > 1 {
		return fmt.Errorf("adaptive.rate must be in [0, 1], got %v", c.Adaptive.Rate)
	}
	if c.Adaptive.Tolerance < 0 {
		return fmt.Errorf("adaptive.tolerance must be >= 0, got %v", c.Adaptive.Tolerance)
	}
	if c.Adaptive.Window < 1 {
		return fmt.Errorf("adaptive.window must be >= 1, got %d", c.Adaptive.Window)
	}
	return nil
}
