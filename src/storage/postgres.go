package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Use the executable name as the schema so parallel deployments
	// do not stomp each other's tables.
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	if err := d.RegisterSymbols(d.Config.Symbols); err != nil {
		d.Logger.Error("PostgresDB: failed to register symbol catalog: %v", err)
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s".candles (
			symbol TEXT,
			"interval" TEXT,
			time BIGINT,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION,
			volume DOUBLE PRECISION,
			buy_volume DOUBLE PRECISION,
			sell_volume DOUBLE PRECISION,
			delta DOUBLE PRECISION,
			clusters JSONB,
			PRIMARY KEY (symbol, "interval", time)
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create candles: %w", err)
	}

	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s".order_books (
			symbol TEXT PRIMARY KEY,
			bids JSONB,
			asks JSONB,
			last_update BIGINT
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create order_books: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveCandle(symbol, interval string, candle models.MCandle) error {
	clusters, err := json.Marshal(candle.Clusters)
	if err != nil {
		return fmt.Errorf("failed to encode clusters: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO "%s".candles (symbol, "interval", time, open, high, low, close, volume, buy_volume, sell_volume, delta, clusters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol, "interval", time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			buy_volume = EXCLUDED.buy_volume,
			sell_volume = EXCLUDED.sell_volume,
			delta = EXCLUDED.delta,
			clusters = EXCLUDED.clusters
	`, d.Schema)

	_, err = d.DB.Exec(query, symbol, interval, candle.Time, candle.Open, candle.High, candle.Low,
		candle.Close, candle.Volume, candle.BuyVolume, candle.SellVolume, candle.Delta, string(clusters))
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetCandles(symbol, interval string, limit int) ([]models.MCandle, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT time, open, high, low, close, volume, buy_volume, sell_volume, delta, clusters
		FROM "%s".candles
		WHERE symbol = $1 AND "interval" = $2
		ORDER BY time DESC
		LIMIT $3
	`, d.Schema)

	rows, err := d.DB.Query(query, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []models.MCandle
	for rows.Next() {
		var c models.MCandle
		var clusters []byte
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.BuyVolume, &c.SellVolume, &c.Delta, &clusters); err != nil {
			return nil, err
		}
		if len(clusters) > 0 {
			if err := json.Unmarshal(clusters, &c.Clusters); err != nil {
				d.Logger.Warning("Failed to decode clusters for %s@%d: %v", symbol, c.Time, err)
			}
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first query for the LIMIT; callers expect oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveOrderBook(symbol string, book models.MOrderBookData) error {
	bids, err := json.Marshal(book.Bids)
	if err != nil {
		return fmt.Errorf("failed to encode bids: %w", err)
	}
	asks, err := json.Marshal(book.Asks)
	if err != nil {
		return fmt.Errorf("failed to encode asks: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO "%s".order_books (symbol, bids, asks, last_update)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			bids = EXCLUDED.bids,
			asks = EXCLUDED.asks,
			last_update = EXCLUDED.last_update
	`, d.Schema)

	_, err = d.DB.Exec(query, symbol, string(bids), string(asks), book.LastUpdate)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetOrderBook(symbol string) (*models.MOrderBookData, error) {
	var bids, asks []byte
	var book models.MOrderBookData

	query := fmt.Sprintf(`
		SELECT bids, asks, last_update FROM "%s".order_books WHERE symbol = $1
	`, d.Schema)

	err := d.DB.QueryRow(query, symbol).Scan(&bids, &asks, &book.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(bids, &book.Bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids: %w", err)
	}
	if err := json.Unmarshal(asks, &book.Asks); err != nil {
		return nil, fmt.Errorf("failed to decode asks: %w", err)
	}

	return &book, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	retention := d.Config.Storage.RetentionDays
	if retention <= 0 {
		retention = 7
	}
	cutoff := time.Now().AddDate(0, 0, -retention).Unix()

	query := fmt.Sprintf(`DELETE FROM "%s".candles WHERE time < $1`, d.Schema)
	res, err := d.DB.Exec(query, cutoff)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.Logger.Info("PostgresDB: removed %d candles past retention", n)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
