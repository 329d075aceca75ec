package engine

import (
	"math"
	"testing"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func newTestEngine(t *testing.T) *ClusterEngine {
	t.Helper()
	cfg := &models.MConfig{
		Feed: models.MFeedConfig{
			SignificanceThreshold: 0.0005,
			ATRPeriod:             14,
			PreloadTTLMs:          60_000,
		},
	}
	return NewClusterEngine(cfg, logger.NewLogger(nil, "test"))
}

// -----------------------------------------------------------------------------
// ATR
// -----------------------------------------------------------------------------

func TestComputeATRDefaultsWithoutHistory(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, DefaultATR, e.ComputeATR(nil, 14))
	assert.Equal(t, DefaultATR, e.ComputeATR([]models.MCandle{{High: 10, Low: 9, Close: 9.5}}, 14))
}

func TestComputeATRKnownValues(t *testing.T) {
	e := newTestEngine(t)

	candles := []models.MCandle{
		{High: 12, Low: 8, Close: 10},
		{High: 14, Low: 10, Close: 12}, // TR = max(4, |14-10|, |10-10|) = 4
		{High: 13, Low: 11, Close: 12}, // TR = max(2, |13-12|, |11-12|) = 2
	}

	assert.InDelta(t, 3.0, e.ComputeATR(candles, 14), 1e-9)

	// With period 1 only the most recent pair counts.
	assert.InDelta(t, 2.0, e.ComputeATR(candles, 1), 1e-9)
}

func TestComputeATRUsesPreviousCloseGaps(t *testing.T) {
	e := newTestEngine(t)

	// Gap up: high-prevClose dominates the plain range.
	candles := []models.MCandle{
		{High: 10, Low: 9, Close: 10},
		{High: 15, Low: 14, Close: 14.5},
	}

	assert.InDelta(t, 5.0, e.ComputeATR(candles, 14), 1e-9)
}

func TestATRCache(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, DefaultATR, e.ATRFor("BTCUSDT"))

	candles := []models.MCandle{
		{High: 12, Low: 8, Close: 10},
		{High: 14, Low: 10, Close: 12},
	}
	e.RefreshATR("BTCUSDT", candles)
	assert.InDelta(t, 4.0, e.ATRFor("BTCUSDT"), 1e-9)

	// Other symbols are unaffected.
	assert.Equal(t, DefaultATR, e.ATRFor("ETHUSDT"))
}

// -----------------------------------------------------------------------------
// Significance gate
// -----------------------------------------------------------------------------

func TestIsSignificantBootstrapsUnseenSymbol(t *testing.T) {
	e := newTestEngine(t)

	assert.True(t, e.IsSignificant("BTCUSDT", 67500))
}

func TestIsSignificantThreshold(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.IsSignificant("BTCUSDT", 100))

	// 0.04% move: below threshold, rejected, cache unchanged.
	assert.False(t, e.IsSignificant("BTCUSDT", 100.04))
	// Same price again still measures against 100, not 100.04.
	assert.False(t, e.IsSignificant("BTCUSDT", 100.04))

	// 0.06% move: accepted, cache moves to the new price.
	assert.True(t, e.IsSignificant("BTCUSDT", 100.06))
	assert.False(t, e.IsSignificant("BTCUSDT", 100.07))
}

func TestIsSignificantPerSymbol(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.IsSignificant("BTCUSDT", 100))
	assert.True(t, e.IsSignificant("ETHUSDT", 100))
}

// -----------------------------------------------------------------------------
// Candle synthesis
// -----------------------------------------------------------------------------

func TestSynthesizeCandleInvariants(t *testing.T) {
	e := newTestEngine(t)

	history := []models.MCandle{
		{High: 67700, Low: 67300, Close: 67500},
		{High: 67800, Low: 67400, Close: 67600},
	}

	for i := 0; i < 200; i++ {
		c := e.SynthesizeCandle(int64(1700000000+i*60), 67500, history)

		assert.GreaterOrEqual(t, c.High, math.Max(c.Open, c.Close))
		assert.LessOrEqual(t, c.Low, math.Min(c.Open, c.Close))
		assert.GreaterOrEqual(t, c.Close, 1.0)
		assert.InDelta(t, c.Volume, c.BuyVolume+c.SellVolume, 1e-6)
		assert.InDelta(t, c.Delta, c.BuyVolume-c.SellVolume, 1e-6)
		assert.NotEmpty(t, c.Clusters)
	}
}

func TestSynthesizeCandleBuySellBias(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 200; i++ {
		c := e.SynthesizeCandle(1700000000, 100, nil)
		ratio := c.BuyVolume / c.Volume

		if c.Close >= c.Open {
			assert.GreaterOrEqual(t, ratio, 0.55)
			assert.LessOrEqual(t, ratio, 0.80)
		} else {
			assert.GreaterOrEqual(t, ratio, 0.25)
			assert.LessOrEqual(t, ratio, 0.55)
		}
	}
}

func TestSynthesizeCandlePriceFloor(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 100; i++ {
		c := e.SynthesizeCandle(1700000000, 1, nil)
		assert.GreaterOrEqual(t, c.Close, 1.0)
		assert.Greater(t, c.Low, 0.0)
	}
}

// -----------------------------------------------------------------------------
// Adaptive clusters
// -----------------------------------------------------------------------------

func TestAdaptiveClustersBounds(t *testing.T) {
	e := newTestEngine(t)

	cases := []struct {
		name      string
		low, high float64
		atr       float64
	}{
		{"wide range small atr", 100, 110, 0.1},   // would be 200 buckets, clamps to 25
		{"narrow range big atr", 100, 100.1, 5.0}, // would be 0 buckets, clamps to 5
		{"zero range", 100, 100, 0.5},
		{"moderate", 100, 104, 0.8}, // pitch 0.4 -> 10 buckets
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clusters := e.AdaptiveClusters(tc.low, tc.high, 1000, 600, 400, tc.atr, (tc.low+tc.high)/2)

			assert.GreaterOrEqual(t, len(clusters), 5)
			assert.LessOrEqual(t, len(clusters), 25)
		})
	}
}

func TestAdaptiveClustersVolumeConservation(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 50; i++ {
		clusters := e.AdaptiveClusters(100, 105, 1000, 600, 400, 0.5, 103)

		sum := 0.0
		for _, cl := range clusters {
			sum += cl.Volume
			assert.InDelta(t, cl.Delta, cl.BuyVolume-cl.SellVolume, 1e-9)
			if cl.Volume > 0 {
				assert.InDelta(t, cl.Aggression, math.Abs(cl.Delta)/cl.Volume, 1e-9)
				ratio := cl.BuyVolume / cl.Volume
				assert.GreaterOrEqual(t, ratio, 0.1-1e-9)
				assert.LessOrEqual(t, ratio, 0.9+1e-9)
			}
		}
		assert.InDelta(t, 1000, sum, 1e-6)
	}
}

func TestAdaptiveClustersSortedByVolume(t *testing.T) {
	e := newTestEngine(t)

	clusters := e.AdaptiveClusters(100, 105, 1000, 600, 400, 0.5, 103)
	require.NotEmpty(t, clusters)

	for i := 1; i < len(clusters); i++ {
		assert.GreaterOrEqual(t, clusters[i-1].Volume, clusters[i].Volume,
			"clusters must be sorted by non-increasing volume")
	}
}

// -----------------------------------------------------------------------------
// Depth filter
// -----------------------------------------------------------------------------

func TestFilterDepthBounds(t *testing.T) {
	e := newTestEngine(t)

	center := 100.0
	book := models.MOrderBookData{LastUpdate: 12345}

	// 120 levels per side, half outside the 1.5% band.
	for i := 0; i < 120; i++ {
		book.Bids = append(book.Bids, models.MOrderBookLevel{Price: center - float64(i)*0.05, Volume: 1})
		book.Asks = append(book.Asks, models.MOrderBookLevel{Price: center + float64(i)*0.05, Volume: 1})
	}

	filtered := e.FilterDepth(book, center, 1.5)

	assert.LessOrEqual(t, len(filtered.Bids), 50)
	assert.LessOrEqual(t, len(filtered.Asks), 50)
	assert.Equal(t, int64(12345), filtered.LastUpdate)

	for i, lvl := range filtered.Bids {
		assert.GreaterOrEqual(t, lvl.Price, center*(1-0.015))
		assert.LessOrEqual(t, lvl.Price, center)
		if i > 0 {
			assert.Less(t, lvl.Price, filtered.Bids[i-1].Price, "bids sorted descending")
		}
	}
	for i, lvl := range filtered.Asks {
		assert.GreaterOrEqual(t, lvl.Price, center)
		assert.LessOrEqual(t, lvl.Price, center*(1+0.015))
		if i > 0 {
			assert.Greater(t, lvl.Price, filtered.Asks[i-1].Price, "asks sorted ascending")
		}
	}
}

func TestSynthesizeOrderBookStraddlesCenter(t *testing.T) {
	e := newTestEngine(t)

	book := e.SynthesizeOrderBook("BTCUSDT", 67500, 50)

	assert.NotEmpty(t, book.Bids)
	assert.NotEmpty(t, book.Asks)
	for _, lvl := range book.Bids {
		assert.Less(t, lvl.Price, 67500.0)
		assert.Greater(t, lvl.Volume, 0.0)
	}
	for _, lvl := range book.Asks {
		assert.Greater(t, lvl.Price, 67500.0)
		assert.Greater(t, lvl.Volume, 0.0)
	}
}

// -----------------------------------------------------------------------------
// Volume profile
// -----------------------------------------------------------------------------

func TestVolumeProfileConservesVolume(t *testing.T) {
	e := newTestEngine(t)

	candles := []models.MCandle{
		{
			Low: 100, High: 110,
			Clusters: []models.MCluster{
				{Price: 101, Volume: 50, BuyVolume: 30, SellVolume: 20},
				{Price: 105, Volume: 80, BuyVolume: 40, SellVolume: 40},
			},
		},
		{
			Low: 102, High: 108,
			Clusters: []models.MCluster{
				{Price: 103, Volume: 70, BuyVolume: 35, SellVolume: 35},
				{Price: 107, Volume: 60, BuyVolume: 20, SellVolume: 40},
			},
		},
	}

	profile := e.VolumeProfile(candles, 5)
	require.NotEmpty(t, profile)

	total := 0.0
	totalBuy := 0.0
	for _, lvl := range profile {
		total += lvl.Volume
		totalBuy += lvl.BuyVolume
		assert.GreaterOrEqual(t, lvl.Price, 100.0)
		assert.LessOrEqual(t, lvl.Price, 110.0)
		assert.Greater(t, lvl.Volume, 0.0, "empty buckets must be dropped")
	}
	assert.InDelta(t, 260, total, 1e-9)
	assert.InDelta(t, 125, totalBuy, 1e-9)
}

func TestVolumeProfileEmptyInput(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, e.VolumeProfile(nil, 50))
}

func TestVolumeProfileFlatRange(t *testing.T) {
	e := newTestEngine(t)

	candles := []models.MCandle{
		{Low: 100, High: 100, Clusters: []models.MCluster{{Price: 100, Volume: 10}}},
	}

	profile := e.VolumeProfile(candles, 50)
	require.Len(t, profile, 1)
	assert.InDelta(t, 10, profile[0].Volume, 1e-9)
}

// -----------------------------------------------------------------------------
// Preload cache
// -----------------------------------------------------------------------------

func TestPreloadCacheHitAndExpiry(t *testing.T) {
	cache := NewPreloadCache(50 * time.Millisecond)
	key := PreloadKey("BTCUSDT", "1m", 1000, 2000)

	computed := 0
	compute := func() []models.MCandle {
		computed++
		return []models.MCandle{{Time: 1060}}
	}

	first := cache.GetOrCompute(key, compute)
	second := cache.GetOrCompute(key, compute)
	assert.Equal(t, 1, computed, "second call must be served from cache")
	assert.Equal(t, first, second)

	time.Sleep(60 * time.Millisecond)
	cache.GetOrCompute(key, compute)
	assert.Equal(t, 2, computed, "expired entry must be recomputed")
}

func TestPreloadCacheCleanup(t *testing.T) {
	cache := NewPreloadCache(10 * time.Millisecond)

	cache.GetOrCompute("a", func() []models.MCandle { return nil })
	cache.GetOrCompute("b", func() []models.MCandle { return nil })
	assert.Equal(t, 2, cache.Len())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, cache.Cleanup())
	assert.Equal(t, 0, cache.Len())
}

func TestPreloadKeyDistinct(t *testing.T) {
	a := PreloadKey("BTCUSDT", "1m", 0, 100)
	b := PreloadKey("BTCUSDT", "1m", 0, 200)
	c := PreloadKey("BTCUSDT", "5m", 0, 100)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
