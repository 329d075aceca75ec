package storage

import (
	"path/filepath"
	"testing"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func newTestDB(t *testing.T) *AsyncSQLiteDB {
	t.Helper()

	cfg := &models.MConfig{
		Storage: models.MStorageConfig{
			DBType:        "sqlite",
			DBPath:        filepath.Join(t.TempDir(), "feed.db"),
			RetentionDays: 7,
		},
	}

	db, err := NewAsyncSQLiteDB(cfg, logger.NewLogger(nil, "test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func candleAt(ts int64, close float64) models.MCandle {
	return models.MCandle{
		Time:       ts,
		Open:       close - 1,
		High:       close + 2,
		Low:        close - 2,
		Close:      close,
		Volume:     500,
		BuyVolume:  300,
		SellVolume: 200,
		Delta:      100,
		Clusters: []models.MCluster{
			{Price: close, Volume: 500, BuyVolume: 300, SellVolume: 200},
		},
	}
}

// -----------------------------------------------------------------------------

func TestSaveAndGetCandles(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(base+int64(60*i), 100+float64(i))))
	}

	candles, err := db.GetCandles("BTCUSDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 5)

	for i := 1; i < len(candles); i++ {
		assert.Greater(t, candles[i].Time, candles[i-1].Time, "oldest candle first")
	}
	assert.Equal(t, 104.0, candles[4].Close)
	assert.Len(t, candles[0].Clusters, 1)
	assert.Equal(t, 500.0, candles[0].Clusters[0].Volume)
}

func TestGetCandlesHonorsLimit(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Unix()
	for i := 0; i < 10; i++ {
		require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(base+int64(60*i), 100)))
	}

	candles, err := db.GetCandles("BTCUSDT", "1m", 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	// The limit keeps the newest rows, still returned oldest-first.
	assert.Equal(t, base+7*60, candles[0].Time)
	assert.Equal(t, base+9*60, candles[2].Time)
}

func TestSaveCandleUpserts(t *testing.T) {
	db := newTestDB(t)

	ts := time.Now().Unix()
	require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(ts, 100)))
	require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(ts, 105)))

	candles, err := db.GetCandles("BTCUSDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1, "same (symbol, interval, time) replaces the row")
	assert.Equal(t, 105.0, candles[0].Close)
}

func TestCandlesAreKeyedBySymbolAndInterval(t *testing.T) {
	db := newTestDB(t)

	ts := time.Now().Unix()
	require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(ts, 100)))
	require.NoError(t, db.SaveCandle("BTCUSDT", "5m", candleAt(ts, 101)))
	require.NoError(t, db.SaveCandle("ETHUSDT", "1m", candleAt(ts, 102)))

	candles, err := db.GetCandles("BTCUSDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 100.0, candles[0].Close)
}

func TestGetCandlesEmpty(t *testing.T) {
	db := newTestDB(t)

	candles, err := db.GetCandles("NOPE", "1m", 10)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

// -----------------------------------------------------------------------------

func TestSaveAndGetOrderBook(t *testing.T) {
	db := newTestDB(t)

	book := models.MOrderBookData{
		Bids: []models.MOrderBookLevel{
			{Price: 99.5, Volume: 10},
			{Price: 99.0, Volume: 20},
		},
		Asks: []models.MOrderBookLevel{
			{Price: 100.5, Volume: 15},
		},
		LastUpdate: time.Now().UnixMilli(),
	}
	require.NoError(t, db.SaveOrderBook("BTCUSDT", book))

	got, err := db.GetOrderBook("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, book.Bids, got.Bids)
	assert.Equal(t, book.Asks, got.Asks)
	assert.Equal(t, book.LastUpdate, got.LastUpdate)
}

func TestOrderBookUpserts(t *testing.T) {
	db := newTestDB(t)

	first := models.MOrderBookData{
		Bids:       []models.MOrderBookLevel{{Price: 99, Volume: 1}},
		Asks:       []models.MOrderBookLevel{{Price: 101, Volume: 1}},
		LastUpdate: 1,
	}
	second := models.MOrderBookData{
		Bids:       []models.MOrderBookLevel{{Price: 98, Volume: 2}},
		Asks:       []models.MOrderBookLevel{{Price: 102, Volume: 2}},
		LastUpdate: 2,
	}
	require.NoError(t, db.SaveOrderBook("BTCUSDT", first))
	require.NoError(t, db.SaveOrderBook("BTCUSDT", second))

	got, err := db.GetOrderBook("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.LastUpdate, "one snapshot per symbol")
	assert.Equal(t, 98.0, got.Bids[0].Price)
}

func TestGetOrderBookUnknownSymbol(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetOrderBook("NOPE")
	require.NoError(t, err)
	assert.Nil(t, got, "absent snapshot is nil, not an error")
}

// -----------------------------------------------------------------------------

func TestCleanupOldData(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().Unix()
	old := time.Now().AddDate(0, 0, -30).Unix()
	require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(old, 90)))
	require.NoError(t, db.SaveCandle("BTCUSDT", "1m", candleAt(now, 100)))

	require.NoError(t, db.CleanupOldData())

	candles, err := db.GetCandles("BTCUSDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1, "rows past retention are dropped")
	assert.Equal(t, now, candles[0].Time)
}
