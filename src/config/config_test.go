package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"market-feed/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
name: market-feed
host: localhost
port: 8765
storage:
  db_type: sqlite
  db_path: ./feed.db
symbols:
  - symbol: BTCUSDT
    base_price: 67500
`

// -----------------------------------------------------------------------------

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 0.0005, cfg.Feed.SignificanceThreshold)
	assert.Equal(t, 14, cfg.Feed.ATRPeriod)
	assert.Equal(t, int64(60_000), cfg.Feed.PreloadTTLMs)
	assert.Equal(t, int64(300_000), cfg.Feed.MaintenanceMs)
	assert.Equal(t, int64(2_000), cfg.Feed.MaxTickMs)
	assert.Equal(t, 50, cfg.Feed.SeedBackfill)
	assert.Equal(t, 50, cfg.Feed.DepthLevels)
	assert.Equal(t, 1.5, cfg.Feed.DepthRangePercent)
	assert.Equal(t, "BTCUSDT", cfg.Feed.DefaultSymbol, "first symbol becomes the greeting default")
	assert.Equal(t, []string{"1m", "5m", "15m", "1h", "4h", "1d"}, cfg.Intervals)
	assert.Equal(t, 7, cfg.Storage.RetentionDays)
}

func TestNewConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
name: market-feed
host: localhost
port: 8765
storage:
  db_type: sqlite
  db_path: ./feed.db
  retention_days: 30
feed:
  significance_threshold: 0.001
  atr_period: 7
  default_symbol: ETHUSDT
  seed_backfill: 25
symbols:
  - symbol: BTCUSDT
    base_price: 67500
  - symbol: ETHUSDT
    base_price: 3500
intervals: ["1m", "1h"]
`))
	require.NoError(t, err)

	assert.Equal(t, 0.001, cfg.Feed.SignificanceThreshold)
	assert.Equal(t, 7, cfg.Feed.ATRPeriod)
	assert.Equal(t, 25, cfg.Feed.SeedBackfill)
	assert.Equal(t, "ETHUSDT", cfg.Feed.DefaultSymbol)
	assert.Equal(t, []string{"1m", "1h"}, cfg.Intervals)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewConfigBadYAML(t *testing.T) {
	_, err := NewConfig(writeConfig(t, "name: [unclosed"))
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			"missing name",
			`
host: localhost
port: 8765
storage: {db_type: sqlite, db_path: ./feed.db}
symbols: [{symbol: BTCUSDT, base_price: 100}]
`,
		},
		{
			"privileged port",
			`
name: market-feed
host: localhost
port: 80
storage: {db_type: sqlite, db_path: ./feed.db}
symbols: [{symbol: BTCUSDT, base_price: 100}]
`,
		},
		{
			"sqlite without path",
			`
name: market-feed
host: localhost
port: 8765
storage: {db_type: sqlite}
symbols: [{symbol: BTCUSDT, base_price: 100}]
`,
		},
		{
			"postgres without connection string",
			`
name: market-feed
host: localhost
port: 8765
storage: {db_type: postgres}
symbols: [{symbol: BTCUSDT, base_price: 100}]
`,
		},
		{
			"no symbols",
			`
name: market-feed
host: localhost
port: 8765
storage: {db_type: sqlite, db_path: ./feed.db}
`,
		},
		{
			"negative base price",
			`
name: market-feed
host: localhost
port: 8765
storage: {db_type: sqlite, db_path: ./feed.db}
symbols: [{symbol: BTCUSDT, base_price: -1}]
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tc.yaml))
			require.Error(t, err)

			var cfgErr *helpers.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "load failures carry the configuration error type")
		})
	}
}

func TestNewConfigErrorsAreTyped(t *testing.T) {
	var cfgErr *helpers.ConfigurationError

	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewConfig(writeConfig(t, "name: [unclosed"))
	require.Error(t, err)
	assert.True(t, errors.As(err, &cfgErr))
	assert.Error(t, errors.Unwrap(err), "the YAML parser's cause is preserved")
}

// -----------------------------------------------------------------------------

func TestSymbolHelpers(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
name: market-feed
host: localhost
port: 8765
storage: {db_type: sqlite, db_path: ./feed.db}
symbols:
  - symbol: BTCUSDT
    base_price: 67500
  - symbol: SOLUSDT
    base_price: 180
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, cfg.SymbolNames())
	assert.Equal(t, 67500.0, cfg.BasePrice("BTCUSDT"))
	assert.Equal(t, 0.0, cfg.BasePrice("NOPE"), "unknown symbols defer to the generator table")
}

// -----------------------------------------------------------------------------

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(out))

	reloaded, err := NewConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, reloaded.Name)
	assert.Equal(t, cfg.Feed.SignificanceThreshold, reloaded.Feed.SignificanceThreshold)
	assert.Equal(t, cfg.SymbolNames(), reloaded.SymbolNames())
}
