package engine

import (
	"math/rand"
	"sync"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/utils"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	candleWindowCapacity = 100
	priceHistoryCapacity = 1000
	priceHistorySeed     = 100
	reversionLookback    = 20
	reversionForce       = 0.1

	maxRangeCandles = 1000
)

// Static base prices for well-known symbols. Used only at generator
// construction; unknown symbols start at 100.
var basePrices = map[string]float64{
	"BTCUSDT":  67500,
	"ETHUSDT":  3500,
	"SOLUSDT":  180,
	"BNBUSDT":  600,
	"LTCUSDT":  85,
	"AVAXUSDT": 35,
}

// -----------------------------------------------------------------------------
// CandleSeriesGenerator
// -----------------------------------------------------------------------------

// CandleSeriesGenerator owns one symbol's simulated price process. The price
// cursor and time cursor only move forward; the rolling candle window is the
// ATR context for future candles and the price history ring backs the
// mean-reversion term of the walk. State is never shared across symbols.
type CandleSeriesGenerator struct {
	symbol string
	engine *ClusterEngine
	logger *logger.Logger

	mu           sync.Mutex
	currentPrice float64
	currentTime  int64
	priceHistory *utils.PriceRing
	window       *utils.CandleRing
}

// -----------------------------------------------------------------------------

// NewCandleSeriesGenerator builds a generator seeded at basePrice. Pass 0
// to fall back to the static table (default 100 for unknown symbols).
func NewCandleSeriesGenerator(symbol string, basePrice float64, eng *ClusterEngine, log *logger.Logger) *CandleSeriesGenerator {
	if basePrice <= 0 {
		if p, ok := basePrices[symbol]; ok {
			basePrice = p
		} else {
			basePrice = 100
		}
	}

	g := &CandleSeriesGenerator{
		symbol:       symbol,
		engine:       eng,
		logger:       log,
		currentPrice: basePrice,
		currentTime:  time.Now().Unix(),
		priceHistory: utils.NewPriceRing(priceHistoryCapacity),
		window:       utils.NewCandleRing(candleWindowCapacity),
	}

	// Seed the history so the reversion average is meaningful from the
	// first tick.
	for i := 0; i < priceHistorySeed; i++ {
		g.priceHistory.Append(basePrice)
	}

	return g
}

// -----------------------------------------------------------------------------

func (g *CandleSeriesGenerator) Symbol() string {
	return g.symbol
}

// -----------------------------------------------------------------------------

func (g *CandleSeriesGenerator) CurrentPrice() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPrice
}

// -----------------------------------------------------------------------------

func (g *CandleSeriesGenerator) CurrentTime() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentTime
}

// -----------------------------------------------------------------------------

// Window returns a copy of the rolling candle window, oldest first.
func (g *CandleSeriesGenerator) Window() []models.MCandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window.All()
}

// -----------------------------------------------------------------------------
// Backfill
// -----------------------------------------------------------------------------

// Backfill synthesizes count historical candles walking forward in
// interval-sized steps, each close feeding the next open. The starting
// price is perturbed up to ±5% so the seed history is not visually flat.
// The generator's cursor ends at the last candle.
func (g *CandleSeriesGenerator) Backfill(count int, interval string) []models.MCandle {
	if count <= 0 {
		return []models.MCandle{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	step := utils.ParseIntervalSeconds(interval)

	price := g.currentPrice * (0.95 + rand.Float64()*0.10)
	if price < 1 {
		price = 1
	}

	start := time.Now().Unix() - int64(count)*step
	candles := make([]models.MCandle, 0, count)

	for i := 0; i < count; i++ {
		ts := start + int64(i+1)*step
		candle := g.engine.SynthesizeCandle(ts, price, g.window.All())

		candles = append(candles, candle)
		g.window.Append(candle)
		g.priceHistory.Append(candle.Close)
		price = candle.Close
	}

	g.currentPrice = price
	g.currentTime = start + int64(count)*step
	g.engine.RefreshATR(g.symbol, g.window.All())

	return candles
}

// -----------------------------------------------------------------------------
// Realtime tick
// -----------------------------------------------------------------------------

// Tick advances the price by a mean-reversion plus random-walk step, then
// consults the significance gate. A rejected tick produces nothing: the
// price update is kept but no candle is emitted and no other state moves.
// An accepted tick synthesizes one candle at the new price, records it in
// the rolling window and refreshes the symbol's ATR cache entry.
func (g *CandleSeriesGenerator) Tick(interval string) (models.MCandle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	recentAvg := g.priceHistory.Average(reversionLookback)
	reversion := 0.0
	if g.currentPrice > 0 && recentAvg > 0 {
		reversion = (recentAvg - g.currentPrice) / g.currentPrice * reversionForce
	}
	randomWalk := (rand.Float64() - 0.5) * 0.001

	price := g.currentPrice * (1 + reversion + randomWalk)
	if price < 1 {
		price = 1
	}
	g.currentPrice = price
	g.priceHistory.Append(price)

	if !g.engine.IsSignificant(g.symbol, price) {
		return models.MCandle{}, false
	}

	g.currentTime += utils.ParseIntervalSeconds(interval)
	candle := g.engine.SynthesizeCandle(g.currentTime, price, g.window.All())

	g.currentPrice = candle.Close
	g.window.Append(candle)
	g.engine.RefreshATR(g.symbol, g.window.All())

	return candle, true
}

// -----------------------------------------------------------------------------
// Detached range synthesis
// -----------------------------------------------------------------------------

// HistoricalRange synthesizes candles covering [from, to] without moving
// the live cursor. Serves preload-by-time-range queries through the TTL
// cache; the walk is seeded near the current price but otherwise detached.
func (g *CandleSeriesGenerator) HistoricalRange(from, to int64, interval string) []models.MCandle {
	step := utils.ParseIntervalSeconds(interval)
	if to <= from || step <= 0 {
		return []models.MCandle{}
	}

	count := int((to - from) / step)
	if count <= 0 {
		count = 1
	} else if count > maxRangeCandles {
		count = maxRangeCandles
	}

	g.mu.Lock()
	price := g.currentPrice
	g.mu.Unlock()

	price *= 0.95 + rand.Float64()*0.10
	if price < 1 {
		price = 1
	}

	candles := make([]models.MCandle, 0, count)
	for i := 0; i < count; i++ {
		ts := from + int64(i+1)*step

		context := candles
		if len(context) > candleWindowCapacity {
			context = context[len(context)-candleWindowCapacity:]
		}

		candle := g.engine.SynthesizeCandle(ts, price, context)
		candles = append(candles, candle)
		price = candle.Close
	}

	return candles
}
