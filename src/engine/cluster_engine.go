package engine

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	// DefaultATR is returned when there is not enough history to compute
	// a real average true range.
	DefaultATR = 0.001

	DefaultATRPeriod = 14

	minClusterCount = 5
	maxClusterCount = 25

	maxDepthLevels = 50

	minVolatility = 0.005
)

// -----------------------------------------------------------------------------
// ClusterEngine
// -----------------------------------------------------------------------------

// ClusterEngine is the stateless-per-call numeric core of the feed: ATR,
// candle synthesis, adaptive volume-at-price clusters, depth filtering and
// volume-profile aggregation. Its only mutable state is the per-symbol ATR
// cache, the last-significant-price cache backing the smart-refresh gate,
// and the TTL cache for preload queries.
type ClusterEngine struct {
	Logger *logger.Logger

	threshold float64
	atrPeriod int

	cacheMu         sync.Mutex
	atrCache        map[string]float64
	lastSignificant map[string]float64

	preload *PreloadCache
}

// -----------------------------------------------------------------------------

func NewClusterEngine(cfg *models.MConfig, log *logger.Logger) *ClusterEngine {
	threshold := cfg.Feed.SignificanceThreshold
	if threshold <= 0 {
		threshold = 0.0005
	}
	period := cfg.Feed.ATRPeriod
	if period <= 0 {
		period = DefaultATRPeriod
	}
	ttl := time.Duration(cfg.Feed.PreloadTTLMs) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &ClusterEngine{
		Logger:          log,
		threshold:       threshold,
		atrPeriod:       period,
		atrCache:        make(map[string]float64),
		lastSignificant: make(map[string]float64),
		preload:         NewPreloadCache(ttl),
	}
}

// -----------------------------------------------------------------------------
// ATR
// -----------------------------------------------------------------------------

// ComputeATR averages the true range over up to period most recent candle
// pairs. Needs at least two candles, otherwise returns DefaultATR.
func (e *ClusterEngine) ComputeATR(candles []models.MCandle, period int) float64 {
	if period <= 0 {
		period = e.atrPeriod
	}
	if len(candles) < 2 {
		return DefaultATR
	}

	sum := 0.0
	count := 0
	for i := len(candles) - 1; i >= 1 && count < period; i-- {
		cur := candles[i]
		prevClose := candles[i-1].Close

		tr := cur.High - cur.Low
		if hc := math.Abs(cur.High - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(cur.Low - prevClose); lc > tr {
			tr = lc
		}

		sum += tr
		count++
	}

	if count == 0 {
		return DefaultATR
	}
	return sum / float64(count)
}

// -----------------------------------------------------------------------------

// RefreshATR recomputes and caches the ATR for a symbol from its rolling
// candle window.
func (e *ClusterEngine) RefreshATR(symbol string, candles []models.MCandle) float64 {
	atr := e.ComputeATR(candles, e.atrPeriod)

	e.cacheMu.Lock()
	e.atrCache[symbol] = atr
	e.cacheMu.Unlock()

	return atr
}

// -----------------------------------------------------------------------------

// ATRFor returns the cached ATR for a symbol, DefaultATR when absent.
func (e *ClusterEngine) ATRFor(symbol string) float64 {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if atr, ok := e.atrCache[symbol]; ok {
		return atr
	}
	return DefaultATR
}

// -----------------------------------------------------------------------------
// Smart refresh gate
// -----------------------------------------------------------------------------

// IsSignificant is the sole authority on whether a downstream update is
// emitted. The first observation of a symbol bootstraps the cache and is
// always significant. Check-then-set is atomic per key so two concurrent
// ticks for the same symbol cannot both accept from a stale snapshot.
func (e *ClusterEngine) IsSignificant(symbol string, currentPrice float64) bool {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	last, ok := e.lastSignificant[symbol]
	if !ok || last <= 0 {
		e.lastSignificant[symbol] = currentPrice
		return true
	}

	if math.Abs(currentPrice-last)/last > e.threshold {
		e.lastSignificant[symbol] = currentPrice
		return true
	}

	// Rejection leaves the cache unchanged.
	return false
}

// -----------------------------------------------------------------------------
// Candle synthesis
// -----------------------------------------------------------------------------

// SynthesizeCandle produces one candle opening at startPrice. Volatility
// follows the ATR of the historical context, volume scales with the
// realized move, and the buy/sell split leans toward buyers on up-candles.
func (e *ClusterEngine) SynthesizeCandle(ts int64, startPrice float64, history []models.MCandle) models.MCandle {
	if startPrice < 1 {
		startPrice = 1
	}

	atr := e.ComputeATR(history, e.atrPeriod)
	volatility := math.Max(minVolatility, atr/startPrice*2)

	drift := (rand.Float64() - 0.5) * 0.002
	noise := rand.Float64() - 0.5

	open := startPrice
	close := open + open*(drift+noise*volatility)
	if close < 1 {
		close = 1
	}

	// Wicks scale with ATR
	high := math.Max(open, close) + rand.Float64()*atr*0.5
	low := math.Min(open, close) - rand.Float64()*atr*0.5
	if low <= 0 {
		low = math.Min(open, close) * 0.99
	}

	// Volume tracks realized volatility
	priceChange := close - open
	baseVolume := 100 + rand.Float64()*900
	volume := baseVolume * (1 + 20*math.Abs(priceChange)/startPrice)

	var buyRatio float64
	if close >= open {
		buyRatio = 0.55 + rand.Float64()*0.25 // [0.55, 0.80]
	} else {
		buyRatio = 0.25 + rand.Float64()*0.30 // [0.25, 0.55]
	}

	buyVolume := volume * buyRatio
	sellVolume := volume - buyVolume

	return models.MCandle{
		Time:       ts,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
		BuyVolume:  buyVolume,
		SellVolume: sellVolume,
		Delta:      buyVolume - sellVolume,
		Clusters:   e.AdaptiveClusters(low, high, volume, buyVolume, sellVolume, atr, close),
	}
}

// -----------------------------------------------------------------------------
// Adaptive clusters
// -----------------------------------------------------------------------------

// AdaptiveClusters partitions a candle's range into volume-at-price buckets.
// Cluster pitch is half the ATR, count clamped to [5,25]. Importance blends
// proximity to the current price (0.6) and to the range midpoint (0.4) and
// scales each bucket's volume allocation. The result is sorted by descending
// volume so the first element is the candle's point of control.
func (e *ClusterEngine) AdaptiveClusters(low, high, totalVolume, totalBuyVolume, totalSellVolume, atr, currentPrice float64) []models.MCluster {
	priceRange := high - low

	pitch := 0.5 * atr
	count := minClusterCount
	if pitch > 0 && priceRange > 0 {
		count = int(priceRange / pitch)
		if count < minClusterCount {
			count = minClusterCount
		} else if count > maxClusterCount {
			count = maxClusterCount
		}
	}

	if priceRange <= 0 {
		priceRange = math.Max(atr, 1e-9)
	}
	step := priceRange / float64(count)
	mid := (low + high) / 2

	baseRatio := 0.5
	if totalVolume > 0 {
		baseRatio = totalBuyVolume / totalVolume
	}

	clusters := make([]models.MCluster, count)
	weights := make([]float64, count)
	weightSum := 0.0

	for i := 0; i < count; i++ {
		price := low + (float64(i)+0.5)*step

		priceProximity := 1 - math.Abs(price-currentPrice)/priceRange
		midProximity := 1 - math.Abs(price-mid)/priceRange
		importance := 0.6*math.Max(priceProximity, 0) + 0.4*math.Max(midProximity, 0)

		w := importance * (0.7 + rand.Float64()*0.6)
		if w <= 0 {
			w = 0.01
		}
		weights[i] = w
		weightSum += w

		clusters[i].Price = price
	}

	for i := 0; i < count; i++ {
		volume := totalVolume * weights[i] / weightSum

		// Buyers accumulate low in the range, sellers distribute high.
		relative := (clusters[i].Price - low) / priceRange
		bias := (0.5 - relative) * 0.3
		ratio := baseRatio + bias + (rand.Float64()-0.5)*0.1
		if ratio < 0.1 {
			ratio = 0.1
		} else if ratio > 0.9 {
			ratio = 0.9
		}

		buy := volume * ratio
		sell := volume - buy

		aggression := 0.0
		if volume > 0 {
			aggression = math.Abs(buy-sell) / volume
		}

		clusters[i].Volume = volume
		clusters[i].BuyVolume = buy
		clusters[i].SellVolume = sell
		clusters[i].Delta = buy - sell
		clusters[i].Aggression = aggression
	}

	sort.Slice(clusters, func(a, b int) bool {
		return clusters[a].Volume > clusters[b].Volume
	})

	return clusters
}

// -----------------------------------------------------------------------------
// Order book synthesis and depth filtering
// -----------------------------------------------------------------------------

// SynthesizeOrderBook builds a plausible depth snapshot around a center
// price, with level spacing scaled by the symbol's cached ATR and liquidity
// thinning away from the touch.
func (e *ClusterEngine) SynthesizeOrderBook(symbol string, centerPrice float64, depth int) models.MOrderBookData {
	if depth <= 0 || depth > maxDepthLevels {
		depth = maxDepthLevels
	}

	atr := e.ATRFor(symbol)
	step := math.Max(atr*0.1, centerPrice*0.0001)

	bids := make([]models.MOrderBookLevel, 0, depth)
	asks := make([]models.MOrderBookLevel, 0, depth)

	for i := 0; i < depth; i++ {
		offset := step * float64(i+1) * (0.8 + rand.Float64()*0.4)
		liquidity := (0.5 + rand.Float64()*5) / (1 + 0.05*float64(i))

		bidPrice := centerPrice - offset
		if bidPrice > 0 {
			bids = append(bids, models.MOrderBookLevel{Price: bidPrice, Volume: liquidity})
		}
		asks = append(asks, models.MOrderBookLevel{
			Price:  centerPrice + offset,
			Volume: (0.5 + rand.Float64()*5) / (1 + 0.05*float64(i)),
		})
	}

	return models.MOrderBookData{
		Bids:       bids,
		Asks:       asks,
		LastUpdate: time.Now().UnixMilli(),
	}
}

// -----------------------------------------------------------------------------

// FilterDepth bounds a depth snapshot to rangePercent around centerPrice,
// bids sorted descending and asks ascending, each side capped at 50 levels.
func (e *ClusterEngine) FilterDepth(book models.MOrderBookData, centerPrice, rangePercent float64) models.MOrderBookData {
	if rangePercent <= 0 {
		rangePercent = 1.5
	}
	r := rangePercent / 100

	lowBound := centerPrice * (1 - r)
	highBound := centerPrice * (1 + r)

	bids := make([]models.MOrderBookLevel, 0, len(book.Bids))
	for _, lvl := range book.Bids {
		if lvl.Price >= lowBound && lvl.Price <= centerPrice {
			bids = append(bids, lvl)
		}
	}
	sort.Slice(bids, func(a, b int) bool { return bids[a].Price > bids[b].Price })
	if len(bids) > maxDepthLevels {
		bids = bids[:maxDepthLevels]
	}

	asks := make([]models.MOrderBookLevel, 0, len(book.Asks))
	for _, lvl := range book.Asks {
		if lvl.Price >= centerPrice && lvl.Price <= highBound {
			asks = append(asks, lvl)
		}
	}
	sort.Slice(asks, func(a, b int) bool { return asks[a].Price < asks[b].Price })
	if len(asks) > maxDepthLevels {
		asks = asks[:maxDepthLevels]
	}

	return models.MOrderBookData{
		Bids:       bids,
		Asks:       asks,
		LastUpdate: book.LastUpdate,
	}
}

// -----------------------------------------------------------------------------
// Volume profile
// -----------------------------------------------------------------------------

// VolumeProfile partitions [min(low), max(high)] of the input candles into
// equal-width buckets and accumulates every cluster of every candle into
// the bucket its price falls in. This is a histogram reduction: exact given
// fixed inputs. Empty buckets are dropped.
func (e *ClusterEngine) VolumeProfile(candles []models.MCandle, levels int) []models.MVolumeLevel {
	if len(candles) == 0 {
		return []models.MVolumeLevel{}
	}
	if levels <= 0 {
		levels = 50
	}

	minPrice := math.MaxFloat64
	maxPrice := -math.MaxFloat64
	for _, c := range candles {
		if c.Low < minPrice {
			minPrice = c.Low
		}
		if c.High > maxPrice {
			maxPrice = c.High
		}
	}

	if maxPrice <= minPrice {
		// Degenerate flat range: everything lands in one bucket.
		levels = 1
	}

	step := (maxPrice - minPrice) / float64(levels)
	buckets := make([]models.MVolumeLevel, levels)
	for i := range buckets {
		buckets[i].Price = minPrice + (float64(i)+0.5)*step
	}

	for _, c := range candles {
		for _, cl := range c.Clusters {
			idx := 0
			if step > 0 {
				idx = int((cl.Price - minPrice) / step)
			}
			if idx < 0 {
				idx = 0
			} else if idx >= levels {
				idx = levels - 1
			}

			buckets[idx].Volume += cl.Volume
			buckets[idx].BuyVolume += cl.BuyVolume
			buckets[idx].SellVolume += cl.SellVolume
		}
	}

	result := make([]models.MVolumeLevel, 0, levels)
	for _, b := range buckets {
		if b.Volume > 0 {
			result = append(result, b)
		}
	}

	return result
}

// -----------------------------------------------------------------------------
// Preload cache passthrough
// -----------------------------------------------------------------------------

// Preload exposes the TTL cache for time-range queries.
func (e *ClusterEngine) Preload() *PreloadCache {
	return e.preload
}

// -----------------------------------------------------------------------------

// Cleanup sweeps the TTL cache. Intended to run on a fixed period
// independent of request traffic.
func (e *ClusterEngine) Cleanup() {
	purged := e.preload.Cleanup()
	if purged > 0 {
		e.Logger.Debug("ClusterEngine: purged %d expired preload entries", purged)
	}
}
