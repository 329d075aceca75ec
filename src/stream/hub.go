package stream

import (
	"fmt"
	"sync"
	"time"

	"market-feed/src/engine"
	"market-feed/src/helpers"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/utils"
)

// -----------------------------------------------------------------------------
// Subscription key and per-key update loop
// -----------------------------------------------------------------------------

type SubscriptionKey struct {
	Symbol   string
	Interval string
}

func (k SubscriptionKey) String() string {
	return k.Symbol + "@" + k.Interval
}

// keyLoop is one cancellable scheduled task. Ticks for a key are consumed
// by a single goroutine, so a key never runs concurrently with itself.
type keyLoop struct {
	ticker *time.Ticker
	done   chan struct{}
}

// -----------------------------------------------------------------------------
// StreamHub
// -----------------------------------------------------------------------------

// StreamHub owns the live connection set, the per-(symbol,interval)
// subscription registry, one generator per symbol and one update loop per
// active key. One generator serves all subscribers of its symbol; removing
// the last subscriber of a key stops that key's loop.
type StreamHub struct {
	Config *models.MConfig
	Logger *logger.Logger

	engine   *engine.ClusterEngine
	store    interfaces.ICandleStore
	errors   *helpers.ErrorHandler
	sessions *utils.MarketScheduler
	memory   *utils.MemoryMonitor

	mu            sync.Mutex
	connections   map[string]interfaces.IConnection
	subscriptions map[SubscriptionKey]map[string]interfaces.IConnection
	generators    map[string]*engine.CandleSeriesGenerator
	loops         map[SubscriptionKey]*keyLoop

	maintDone chan struct{}
	stopOnce  sync.Once
}

// -----------------------------------------------------------------------------

func NewStreamHub(cfg *models.MConfig, eng *engine.ClusterEngine, store interfaces.ICandleStore, log *logger.Logger) *StreamHub {
	return &StreamHub{
		Config:        cfg,
		Logger:        log,
		engine:        eng,
		store:         store,
		errors:        helpers.NewErrorHandler(),
		sessions:      utils.NewMarketScheduler(cfg.SymbolNames(), log),
		memory:        utils.NewMemoryMonitor(0, log),
		connections:   make(map[string]interfaces.IConnection),
		subscriptions: make(map[SubscriptionKey]map[string]interfaces.IConnection),
		generators:    make(map[string]*engine.CandleSeriesGenerator),
		loops:         make(map[SubscriptionKey]*keyLoop),
		maintDone:     make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches the periodic cache-maintenance sweep.
func (h *StreamHub) Start() {
	period := time.Duration(h.Config.Feed.MaintenanceMs) * time.Millisecond
	if period <= 0 {
		period = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-h.maintDone:
				return
			case <-ticker.C:
				h.runMaintenance()
			}
		}
	}()

	h.Logger.Info("StreamHub: started (maintenance every %v)", period)
}

// -----------------------------------------------------------------------------

// Stop halts every update loop and the maintenance sweep. Idempotent.
func (h *StreamHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.maintDone)

		h.mu.Lock()
		for key := range h.loops {
			h.stopLoopLocked(key)
		}
		h.mu.Unlock()

		h.Logger.Info("StreamHub: stopped")
	})
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

// AddConnection registers a live transport handle and greets it with a
// connection status frame plus a historical snapshot for the default symbol.
func (h *StreamHub) AddConnection(conn interfaces.IConnection) {
	h.mu.Lock()
	h.connections[conn.ID()] = conn
	count := len(h.connections)
	h.mu.Unlock()

	h.Logger.Info("StreamHub: connection %s added (%d live)", conn.ID(), count)

	conn.Send(models.MConnectionStatusFrame{
		Type: models.FrameConnectionStatus,
		Data: models.MConnectionStatus{Connected: true, Message: "connected to market feed"},
	})

	symbol := h.Config.Feed.DefaultSymbol
	if symbol == "" {
		return
	}
	interval := "1m"
	candles := h.GetHistoricalData(symbol, interval, h.Config.Feed.SeedBackfill)
	conn.Send(models.MHistoricalDataFrame{
		Type:     models.FrameHistoricalData,
		Symbol:   symbol,
		Interval: interval,
		Data:     candles,
	})
}

// -----------------------------------------------------------------------------

// RemoveConnection drops a connection and detaches it from every
// subscription it held. Keys whose subscriber set becomes empty get their
// update loop stopped, so no timer outlives its audience.
func (h *StreamHub) RemoveConnection(conn interfaces.IConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.connections, conn.ID())

	for key, subs := range h.subscriptions {
		delete(subs, conn.ID())
		if len(subs) == 0 {
			delete(h.subscriptions, key)
			h.stopLoopLocked(key)
		}
	}

	h.Logger.Info("StreamHub: connection %s removed (%d live)", conn.ID(), len(h.connections))
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe attaches a connection to a (symbol, interval) stream. The add
// is idempotent; the first subscriber for a key seeds the generator with a
// reduced backfill and starts the key's update loop.
func (h *StreamHub) Subscribe(symbol, interval string, conn interfaces.IConnection) error {
	if symbol == "" {
		return helpers.NewValidationError("subscribe requires a symbol")
	}
	if interval == "" {
		interval = "1m"
	}

	key := SubscriptionKey{Symbol: symbol, Interval: interval}

	h.mu.Lock()
	subs, exists := h.subscriptions[key]
	if !exists {
		subs = make(map[string]interfaces.IConnection)
		h.subscriptions[key] = subs
	}
	subs[conn.ID()] = conn
	first := !exists
	h.mu.Unlock()

	if first {
		// Reduced seed backfill keeps startup latency low while still
		// giving the generator a real ATR context.
		gen := h.generatorFor(symbol)
		gen.Backfill(h.Config.Feed.SeedBackfill, interval)
		h.startLoop(key)
	}

	conn.Send(models.MSubscriptionStatusFrame{
		Type:       models.FrameSubscriptionStatus,
		Symbol:     symbol,
		Interval:   interval,
		Subscribed: true,
	})

	h.Logger.Info("StreamHub: %s subscribed to %s", conn.ID(), key)
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe detaches a connection from one key; the last leaver stops
// the key's loop.
func (h *StreamHub) Unsubscribe(symbol, interval string, conn interfaces.IConnection) {
	key := SubscriptionKey{Symbol: symbol, Interval: interval}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[key]
	if !ok {
		return
	}
	delete(subs, conn.ID())
	if len(subs) == 0 {
		delete(h.subscriptions, key)
		h.stopLoopLocked(key)
	}
}

// -----------------------------------------------------------------------------
// Update loops
// -----------------------------------------------------------------------------

func (h *StreamHub) startLoop(key SubscriptionKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, running := h.loops[key]; running {
		return
	}
	if len(h.subscriptions[key]) == 0 {
		// Subscriber already gone before the loop could start.
		return
	}

	// Slow intervals are still re-evaluated at least every MaxTickMs so
	// the significance gate has enough samples to react promptly.
	period := utils.IntervalDuration(key.Interval)
	maxTick := time.Duration(h.Config.Feed.MaxTickMs) * time.Millisecond
	if maxTick > 0 && period > maxTick {
		period = maxTick
	}

	loop := &keyLoop{
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
	h.loops[key] = loop

	go func() {
		for {
			select {
			case <-loop.done:
				return
			case <-loop.ticker.C:
				h.runTick(key)
			}
		}
	}()

	h.Logger.Info("StreamHub: started update loop for %s (every %v)", key, period)
}

// -----------------------------------------------------------------------------

// stopLoopLocked releases a key's scheduled task. Caller holds h.mu.
// Stopping an already-stopped key is a no-op.
func (h *StreamHub) stopLoopLocked(key SubscriptionKey) {
	loop, ok := h.loops[key]
	if !ok {
		return
	}
	loop.ticker.Stop()
	close(loop.done)
	delete(h.loops, key)

	h.Logger.Info("StreamHub: stopped update loop for %s", key)
}

// -----------------------------------------------------------------------------

// runTick drives one scheduled evaluation of a key. A fault in one
// symbol's generation is caught here so it cannot crash the scheduler or
// other symbols' loops; the key self-heals on its next tick.
func (h *StreamHub) runTick(key SubscriptionKey) {
	defer func() {
		if r := recover(); r != nil {
			h.errors.Handle(
				helpers.NewGenerationError(fmt.Sprintf("tick for %s panicked: %v", key, r), nil),
				"StreamHub.runTick",
			)
		}
	}()

	if h.Config.Feed.SessionAware && !h.sessions.IsOpen(key.Symbol) {
		return
	}

	gen := h.generatorFor(key.Symbol)
	candle, ok := gen.Tick(key.Interval)
	if !ok {
		// Gate rejected: nothing is sent and nothing is persisted, so
		// broadcast traffic stays proportional to real signal.
		return
	}

	book := h.engine.FilterDepth(
		h.engine.SynthesizeOrderBook(key.Symbol, candle.Close, h.Config.Feed.DepthLevels),
		candle.Close,
		h.Config.Feed.DepthRangePercent,
	)

	// Write-through persistence. A storage failure must not abort the
	// broadcast of an already-computed update.
	if err := h.store.SaveCandle(key.Symbol, key.Interval, candle); err != nil {
		h.errors.Handle(helpers.NewStorageError("save candle failed", err), "StreamHub.runTick")
	}
	if err := h.store.SaveOrderBook(key.Symbol, book); err != nil {
		h.errors.Handle(helpers.NewStorageError("save order book failed", err), "StreamHub.runTick")
	}

	h.broadcast(key,
		models.MCandleUpdateFrame{
			Type:     models.FrameCandleUpdate,
			Symbol:   key.Symbol,
			Interval: key.Interval,
			Data:     candle,
		},
		models.MOrderBookUpdateFrame{
			Type:   models.FrameOrderBookUpdate,
			Symbol: key.Symbol,
			Data:   book,
		},
	)
}

// -----------------------------------------------------------------------------

// broadcast delivers frames in order to every subscriber of a key. Sends
// are fire-and-forget per connection: a slow or closed client is skipped
// and reaped on its own disconnect signal.
func (h *StreamHub) broadcast(key SubscriptionKey, frames ...interface{}) {
	h.mu.Lock()
	subs := make([]interfaces.IConnection, 0, len(h.subscriptions[key]))
	for _, conn := range h.subscriptions[key] {
		subs = append(subs, conn)
	}
	h.mu.Unlock()

	for _, conn := range subs {
		for _, frame := range frames {
			if !conn.Send(frame) {
				h.Logger.Debug("StreamHub: skipped slow client %s on %s", conn.ID(), key)
				break
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Generators
// -----------------------------------------------------------------------------

// generatorFor lazily constructs the symbol's generator: check, construct
// if absent, insert, all under the hub lock.
func (h *StreamHub) generatorFor(symbol string) *engine.CandleSeriesGenerator {
	h.mu.Lock()
	defer h.mu.Unlock()

	if gen, ok := h.generators[symbol]; ok {
		return gen
	}

	gen := engine.NewCandleSeriesGenerator(symbol, h.Config.BasePrice(symbol), h.engine, h.Logger)
	h.generators[symbol] = gen
	return gen
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// GetHistoricalData prefers persisted candles and falls back to a fresh
// synthesized backfill so a caller never receives empty results for a
// known symbol.
func (h *StreamHub) GetHistoricalData(symbol, interval string, limit int) []models.MCandle {
	if limit <= 0 {
		limit = h.Config.Feed.SeedBackfill
	}

	candles, err := h.store.GetCandles(symbol, interval, limit)
	if err != nil {
		h.errors.Handle(helpers.NewStorageError("load candles failed", err), "StreamHub.GetHistoricalData")
	}
	if len(candles) > 0 {
		return candles
	}

	return h.generatorFor(symbol).Backfill(limit, interval)
}

// -----------------------------------------------------------------------------

// GetOrderBook returns the persisted depth snapshot when available, else a
// freshly synthesized and filtered one.
func (h *StreamHub) GetOrderBook(symbol string) models.MOrderBookData {
	book, err := h.store.GetOrderBook(symbol)
	if err != nil {
		h.errors.Handle(helpers.NewStorageError("load order book failed", err), "StreamHub.GetOrderBook")
	}
	if book != nil {
		return *book
	}

	center := h.generatorFor(symbol).CurrentPrice()
	return h.engine.FilterDepth(
		h.engine.SynthesizeOrderBook(symbol, center, h.Config.Feed.DepthLevels),
		center,
		h.Config.Feed.DepthRangePercent,
	)
}

// -----------------------------------------------------------------------------

// PreloadRange serves a time-range candle query through the engine's TTL
// cache.
func (h *StreamHub) PreloadRange(symbol, interval string, from, to int64) []models.MCandle {
	key := engine.PreloadKey(symbol, interval, from, to)
	return h.engine.Preload().GetOrCompute(key, func() []models.MCandle {
		return h.generatorFor(symbol).HistoricalRange(from, to, interval)
	})
}

// -----------------------------------------------------------------------------

// VolumeProfileRange aggregates the volume profile of a preloaded range.
func (h *StreamHub) VolumeProfileRange(symbol, interval string, from, to int64, levels int) []models.MVolumeLevel {
	candles := h.PreloadRange(symbol, interval, from, to)
	return h.engine.VolumeProfile(candles, levels)
}

// -----------------------------------------------------------------------------
// Catalog / stats
// -----------------------------------------------------------------------------

func (h *StreamHub) Symbols() []string {
	return h.Config.SymbolNames()
}

func (h *StreamHub) Intervals() []string {
	return h.Config.Intervals
}

func (h *StreamHub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

func (h *StreamHub) LoopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.loops)
}

func (h *StreamHub) SubscriberCount(symbol, interval string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscriptions[SubscriptionKey{Symbol: symbol, Interval: interval}])
}

// -----------------------------------------------------------------------------
// Maintenance
// -----------------------------------------------------------------------------

func (h *StreamHub) runMaintenance() {
	h.engine.Cleanup()
	if err := h.store.CleanupOldData(); err != nil {
		h.errors.Handle(helpers.NewStorageError("retention cleanup failed", err), "StreamHub.runMaintenance")
	}
	h.memory.Sweep()
}
