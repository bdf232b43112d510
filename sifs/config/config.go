package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/spatial-indexfs/sifs"

	"github.com/spf13/viper"
)

// Config stores all configuration of the maintenance engine.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Optimizer   OptimizerConfig   `mapstructure:"optimizer"`
	Builder     BuilderConfig     `mapstructure:"builder"`
}

// MaintenanceConfig stores flush/reorganize engine tunables.
type MaintenanceConfig struct {
	MaxReorgWorkers int `mapstructure:"maxReorgWorkers"`
	// StagingRetries bounds how many candidate staging names are probed
	// before allocation gives up.
	StagingRetries int `mapstructure:"stagingRetries"`
}

// OptimizerConfig stores partition-selection tunables.
type OptimizerConfig struct {
	Kind string `mapstructure:"kind"`
	// MaxGroups caps how many split groups a single reorganization handles.
	MaxGroups    int `mapstructure:"maxGroups"`
	MaxGroupSize int `mapstructure:"maxGroupSize"`
	// SkewSigma is the standard-deviation multiplier for the size-skew strategy.
	SkewSigma float64 `mapstructure:"skewSigma"`
}

// BuilderConfig carries the opaque parameter bag forwarded unchanged to the
// index builder on every invocation.
type BuilderConfig struct {
	Params map[string]string `mapstructure:"params"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("maintenance.maxReorgWorkers", internal.DefaultMaxReorgWorkers)
	viper.SetDefault("maintenance.stagingRetries", internal.DefaultStagingRetries)
	viper.SetDefault("optimizer.kind", internal.DefaultOptimizerKind)
	viper.SetDefault("optimizer.maxGroups", 8)
	viper.SetDefault("optimizer.maxGroupSize", 16)
	viper.SetDefault("optimizer.skewSigma", 2.0)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. maintenance.maxReorgWorkers becomes MAINTENANCE_MAXREORGWORKERS

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
