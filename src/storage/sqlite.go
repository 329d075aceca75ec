package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT,
			interval TEXT,
			time INTEGER,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume REAL,
			buy_volume REAL,
			sell_volume REAL,
			delta REAL,
			clusters TEXT,
			PRIMARY KEY (symbol, interval, time)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create candles: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS order_books (
			symbol TEXT PRIMARY KEY,
			bids TEXT,
			asks TEXT,
			last_update INTEGER
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create order_books: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveCandle(symbol, interval string, candle models.MCandle) error {
	clusters, err := json.Marshal(candle.Clusters)
	if err != nil {
		return fmt.Errorf("failed to encode clusters: %w", err)
	}

	_, err = d.DB.Exec(`
		INSERT INTO candles (symbol, interval, time, open, high, low, close, volume, buy_volume, sell_volume, delta, clusters)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, interval, time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			buy_volume = excluded.buy_volume,
			sell_volume = excluded.sell_volume,
			delta = excluded.delta,
			clusters = excluded.clusters
	`, symbol, interval, candle.Time, candle.Open, candle.High, candle.Low, candle.Close,
		candle.Volume, candle.BuyVolume, candle.SellVolume, candle.Delta, string(clusters))

	return err
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) GetCandles(symbol, interval string, limit int) ([]models.MCandle, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.DB.Query(`
		SELECT time, open, high, low, close, volume, buy_volume, sell_volume, delta, clusters
		FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY time DESC
		LIMIT ?
	`, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []models.MCandle
	for rows.Next() {
		var c models.MCandle
		var clusters string
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.BuyVolume, &c.SellVolume, &c.Delta, &clusters); err != nil {
			return nil, err
		}
		if clusters != "" {
			if err := json.Unmarshal([]byte(clusters), &c.Clusters); err != nil {
				d.Logger.Warning("Failed to decode clusters for %s@%d: %v", symbol, c.Time, err)
			}
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers expect oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveOrderBook(symbol string, book models.MOrderBookData) error {
	bids, err := json.Marshal(book.Bids)
	if err != nil {
		return fmt.Errorf("failed to encode bids: %w", err)
	}
	asks, err := json.Marshal(book.Asks)
	if err != nil {
		return fmt.Errorf("failed to encode asks: %w", err)
	}

	_, err = d.DB.Exec(`
		INSERT INTO order_books (symbol, bids, asks, last_update)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			bids = excluded.bids,
			asks = excluded.asks,
			last_update = excluded.last_update
	`, symbol, string(bids), string(asks), book.LastUpdate)

	return err
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) GetOrderBook(symbol string) (*models.MOrderBookData, error) {
	var bids, asks string
	var book models.MOrderBookData

	err := d.DB.QueryRow(`
		SELECT bids, asks, last_update FROM order_books WHERE symbol = ?
	`, symbol).Scan(&bids, &asks, &book.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(bids), &book.Bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids: %w", err)
	}
	if err := json.Unmarshal([]byte(asks), &book.Asks); err != nil {
		return nil, fmt.Errorf("failed to decode asks: %w", err)
	}

	return &book, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	retention := d.Config.Storage.RetentionDays
	if retention <= 0 {
		retention = 7
	}
	cutoff := time.Now().AddDate(0, 0, -retention).Unix()

	res, err := d.DB.Exec("DELETE FROM candles WHERE time < ?", cutoff)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.Logger.Info("SQLite: removed %d candles past retention", n)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
