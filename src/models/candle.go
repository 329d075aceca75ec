package models

// -----------------------------------------------------------------------------
// Candle / Cluster models (wire format matches the chart client)
// -----------------------------------------------------------------------------

// MCluster is a synthetic volume-at-price bucket inside one candle's range.
type MCluster struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
	Delta      float64 `json:"delta"`
	Aggression float64 `json:"aggression"` // |delta| / volume, 0 when volume is 0
}

// MCandle is one OHLCV bar plus its per-price-level cluster breakdown.
// Candles are immutable once emitted; clusters are sorted by descending
// volume so Clusters[0] is the point of control.
type MCandle struct {
	Time       int64      `json:"time"` // epoch seconds
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     float64    `json:"volume"`
	BuyVolume  float64    `json:"buyVolume"`
	SellVolume float64    `json:"sellVolume"`
	Delta      float64    `json:"delta"`
	Clusters   []MCluster `json:"clusters"`
}

// MVolumeLevel is one bucket of a volume profile histogram.
type MVolumeLevel struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
}
