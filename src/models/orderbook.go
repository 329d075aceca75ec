package models

// -----------------------------------------------------------------------------
// Order book models
// -----------------------------------------------------------------------------

type MOrderBookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// MOrderBookData is a depth snapshot. Bids are sorted by descending price,
// asks by ascending price; after filtering each side holds at most 50 levels.
type MOrderBookData struct {
	Bids       []MOrderBookLevel `json:"bids"`
	Asks       []MOrderBookLevel `json:"asks"`
	LastUpdate int64             `json:"lastUpdate"` // epoch millis
}
