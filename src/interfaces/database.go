package interfaces

import "market-feed/src/models"

// -----------------------------------------------------------------------------
// ICandleStore defines the narrow persistence contract of the feed core.
// The store is a write-through cache, never a source of truth for
// simulation state.
// -----------------------------------------------------------------------------

type ICandleStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveCandle upserts one generated candle for (symbol, interval).
	SaveCandle(symbol, interval string, candle models.MCandle) error

	// -----------------------------------------------------------------------------

	// GetCandles returns up to limit most recent candles, oldest first.
	GetCandles(symbol, interval string, limit int) ([]models.MCandle, error)

	// -----------------------------------------------------------------------------

	// SaveOrderBook upserts the latest depth snapshot for a symbol.
	SaveOrderBook(symbol string, book models.MOrderBookData) error

	// -----------------------------------------------------------------------------

	// GetOrderBook returns the latest snapshot, nil when absent.
	GetOrderBook(symbol string) (*models.MOrderBookData, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
