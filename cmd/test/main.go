// Offline smoke harness: drives the feed core end to end without network
// transport or a real database, and prints what a subscriber would see.
package main

import (
	"flag"
	"fmt"
	"sync"
	"time"

	"market-feed/src/engine"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/stream"
)

// -----------------------------------------------------------------------------
// In-memory store and connection stand-ins
// -----------------------------------------------------------------------------

type memoryStore struct {
	mu      sync.Mutex
	candles map[string][]models.MCandle
	books   map[string]models.MOrderBookData
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		candles: make(map[string][]models.MCandle),
		books:   make(map[string]models.MOrderBookData),
	}
}

func (m *memoryStore) Initialize() error { return nil }
func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) SaveCandle(symbol, interval string, candle models.MCandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := symbol + "|" + interval
	m.candles[key] = append(m.candles[key], candle)
	return nil
}

func (m *memoryStore) GetCandles(symbol, interval string, limit int) ([]models.MCandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	candles := m.candles[symbol+"|"+interval]
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return append([]models.MCandle(nil), candles...), nil
}

func (m *memoryStore) SaveOrderBook(symbol string, book models.MOrderBookData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[symbol] = book
	return nil
}

func (m *memoryStore) GetOrderBook(symbol string) (*models.MOrderBookData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.books[symbol]; ok {
		return &book, nil
	}
	return nil, nil
}

func (m *memoryStore) CleanupOldData() error { return nil }

// -----------------------------------------------------------------------------

type printConnection struct {
	id     string
	frames chan interface{}
}

func (c *printConnection) ID() string { return c.id }

func (c *printConnection) Send(frame interface{}) bool {
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "symbol to stream")
	interval := flag.String("interval", "1m", "candle interval")
	duration := flag.Duration("duration", 10*time.Second, "how long to observe the stream")
	flag.Parse()

	appLogger := logger.NewLogger(nil, "smoke")

	cfg := &models.MConfig{
		Name: "smoke",
		Feed: models.MFeedConfig{
			SignificanceThreshold: 0.0005,
			ATRPeriod:             14,
			PreloadTTLMs:          60_000,
			MaintenanceMs:         300_000,
			MaxTickMs:             250, // tick fast so the run is short
			SeedBackfill:          50,
			DepthLevels:           50,
			DepthRangePercent:     1.5,
			DefaultSymbol:         *symbol,
		},
		Symbols:   []models.MSymbolConfig{{Symbol: *symbol}},
		Intervals: []string{*interval},
	}

	clusterEngine := engine.NewClusterEngine(cfg, appLogger)
	hub := stream.NewStreamHub(cfg, clusterEngine, newMemoryStore(), appLogger)
	hub.Start()
	defer hub.Stop()

	conn := &printConnection{id: "smoke-1", frames: make(chan interface{}, 256)}
	hub.AddConnection(conn)
	if err := hub.Subscribe(*symbol, *interval, conn); err != nil {
		appLogger.Critical("subscribe failed: %v", err)
	}

	candles, books, other := 0, 0, 0
	deadline := time.After(*duration)

observe:
	for {
		select {
		case frame := <-conn.frames:
			switch f := frame.(type) {
			case models.MCandleUpdateFrame:
				candles++
				fmt.Printf("candle  %s %s t=%d o=%.2f h=%.2f l=%.2f c=%.2f vol=%.1f clusters=%d\n",
					f.Symbol, f.Interval, f.Data.Time, f.Data.Open, f.Data.High, f.Data.Low,
					f.Data.Close, f.Data.Volume, len(f.Data.Clusters))
			case models.MOrderBookUpdateFrame:
				books++
			default:
				other++
			}
		case <-deadline:
			break observe
		}
	}

	fmt.Printf("\nobserved %d candle updates, %d order book updates, %d other frames in %v\n",
		candles, books, other, *duration)
	fmt.Printf("significance gate suppressed the rest; loops running: %d\n", hub.LoopCount())
}
