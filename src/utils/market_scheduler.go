package utils

import (
	"sync"
	"time"

	"market-feed/src/logger"
)

// MarketScheduler maps symbols to their trading calendars and answers
// "may this symbol tick right now". Crypto symbols always may.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars maps a list of symbols to their respective calendars
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)

	for _, symbol := range symbols {
		cal := GetCalendar(symbol)
		if cal != nil {
			ms.Calendars[symbol] = cal
		}
	}

	ms.Logger.Info("MarketScheduler: Mapped %d symbols to calendars.", len(symbols))
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the symbol's market is open right now.
// Unknown symbols are assumed open (lazily referenced crypto pairs).
func (ms *MarketScheduler) IsOpen(symbol string) bool {
	ms.mu.RLock()
	cal, ok := ms.Calendars[symbol]
	ms.mu.RUnlock()

	if !ok {
		return true
	}
	return cal.IsOpenOnMinute(time.Now().UTC())
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked markets are currently open
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := time.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if len(ms.Calendars) == 0 {
		return true
	}

	for _, cal := range ms.Calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}

	return false
}
