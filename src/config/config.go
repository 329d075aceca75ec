package config

import (
	"fmt"
	"os"

	"market-feed/src/helpers"
	"market-feed/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, helpers.NewConfigurationError(fmt.Sprintf("failed to read config file '%s'", configPath), err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, helpers.NewConfigurationError("failed to parse config from YAML", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, helpers.NewConfigurationError("config validation failed", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills zero-valued feed tuning fields with the reference
// deployment values.
func (c *Config) ApplyDefaults() {
	f := &c.Feed
	if f.SignificanceThreshold <= 0 {
		f.SignificanceThreshold = 0.0005
	}
	if f.ATRPeriod <= 0 {
		f.ATRPeriod = 14
	}
	if f.PreloadTTLMs <= 0 {
		f.PreloadTTLMs = 60_000
	}
	if f.MaintenanceMs <= 0 {
		f.MaintenanceMs = 300_000
	}
	if f.MaxTickMs <= 0 {
		f.MaxTickMs = 2_000
	}
	if f.SeedBackfill <= 0 {
		f.SeedBackfill = 50
	}
	if f.DepthLevels <= 0 {
		f.DepthLevels = 50
	}
	if f.DepthRangePercent <= 0 {
		f.DepthRangePercent = 1.5
	}
	if f.DefaultSymbol == "" && len(c.Symbols) > 0 {
		f.DefaultSymbol = c.Symbols[0].Symbol
	}
	if len(c.Intervals) == 0 {
		c.Intervals = []string{"1m", "5m", "15m", "1h", "4h", "1d"}
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = 7
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate symbol catalog
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}
	for i, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbol %d must have a name", i)
		}
		if s.BasePrice < 0 {
			return fmt.Errorf("symbol '%s' has a negative base price", s.Symbol)
		}
	}

	// Validate feed tuning (post-defaults everything must be positive)
	if c.Feed.SignificanceThreshold >= 1 {
		return fmt.Errorf("significance threshold %f is not a sane relative change", c.Feed.SignificanceThreshold)
	}
	for i, iv := range c.Intervals {
		if iv == "" {
			return fmt.Errorf("interval %d cannot be empty", i)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
