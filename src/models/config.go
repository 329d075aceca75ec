package models

// MConfig Structure
type MConfig struct {
	Name      string          `yaml:"name"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	GrpcHost  string          `yaml:"grpc_host"`
	GrpcPort  int             `yaml:"grpc_port"`
	Storage   MStorageConfig  `yaml:"storage"`
	Feed      MFeedConfig     `yaml:"feed"`
	Symbols   []MSymbolConfig `yaml:"symbols"`
	Intervals []string        `yaml:"intervals"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

// MFeedConfig tunes the synthetic feed engine. Zero values are replaced
// with the reference defaults by config.ApplyDefaults.
type MFeedConfig struct {
	SignificanceThreshold float64 `yaml:"significance_threshold"` // relative price change gate
	ATRPeriod             int     `yaml:"atr_period"`
	PreloadTTLMs          int64   `yaml:"preload_ttl_ms"`
	MaintenanceMs         int64   `yaml:"maintenance_ms"`
	MaxTickMs             int64   `yaml:"max_tick_ms"` // slow intervals still tick at this rate
	SeedBackfill          int     `yaml:"seed_backfill"`
	DepthLevels           int     `yaml:"depth_levels"`
	DepthRangePercent     float64 `yaml:"depth_range_percent"`
	DefaultSymbol         string  `yaml:"default_symbol"`
	SessionAware          bool    `yaml:"session_aware"`
}

type MSymbolConfig struct {
	Symbol    string  `yaml:"symbol"`
	BasePrice float64 `yaml:"base_price"`
}

// -----------------------------------------------------------------------------

// SymbolNames returns the configured symbol catalog in declaration order.
func (c *MConfig) SymbolNames() []string {
	names := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		names = append(names, s.Symbol)
	}
	return names
}

// -----------------------------------------------------------------------------

// BasePrice returns the configured base price for a symbol, or 0 when the
// symbol is not in the catalog (the generator then falls back to its own
// static table).
func (c *MConfig) BasePrice(symbol string) float64 {
	for _, s := range c.Symbols {
		if s.Symbol == symbol {
			return s.BasePrice
		}
	}
	return 0
}
