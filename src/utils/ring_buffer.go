package utils

import (
	"market-feed/src/models"
)

// -----------------------------------------------------------------------------
// PriceRing is a fixed-size circular buffer of prices.
// True ring buffer - no resizing allowed!
// -----------------------------------------------------------------------------

type PriceRing struct {
	data     []float64
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewPriceRing creates a new buffer with fixed capacity
func NewPriceRing(capacity int) *PriceRing {
	if capacity <= 0 {
		capacity = 1000 // Default reasonable size
	}

	return &PriceRing{
		data:     make([]float64, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds a price, evicting the oldest when full
func (rb *PriceRing) Append(price float64) {
	rb.data[rb.index] = price
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// Latest returns the n most recent prices, oldest first
func (rb *PriceRing) Latest(n int) []float64 {
	if rb.size == 0 || n <= 0 {
		return []float64{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]float64, count)

	// Latest data is at index-1
	startIdx := (rb.index - count + rb.capacity) % rb.capacity
	for i := 0; i < count; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Average returns the mean of the n most recent prices (all when n > size).
func (rb *PriceRing) Average(n int) float64 {
	latest := rb.Latest(n)
	if len(latest) == 0 {
		return 0
	}

	sum := 0.0
	for _, p := range latest {
		sum += p
	}
	return sum / float64(len(latest))
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *PriceRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *PriceRing) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------
// CandleRing is a fixed-size circular buffer of candles, used as the
// generator's rolling ATR context window.
// -----------------------------------------------------------------------------

type CandleRing struct {
	data     []models.MCandle
	capacity int
	index    int
	size     int
}

// -----------------------------------------------------------------------------

// NewCandleRing creates a new buffer with fixed capacity
func NewCandleRing(capacity int) *CandleRing {
	if capacity <= 0 {
		capacity = 100
	}

	return &CandleRing{
		data:     make([]models.MCandle, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds a candle, evicting the oldest when full
func (rb *CandleRing) Append(c models.MCandle) {
	rb.data[rb.index] = c
	rb.index = (rb.index + 1) % rb.capacity

	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// All returns all candles in insertion order (oldest to newest)
func (rb *CandleRing) All() []models.MCandle {
	if rb.size == 0 {
		return []models.MCandle{}
	}

	result := make([]models.MCandle, rb.size)

	// Calculate start index (oldest element)
	var startIdx int
	if rb.size == rb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = rb.index
	} else {
		startIdx = 0
	}

	for i := 0; i < rb.size; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Latest returns the n most recent candles, oldest first
func (rb *CandleRing) Latest(n int) []models.MCandle {
	if rb.size == 0 || n <= 0 {
		return []models.MCandle{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]models.MCandle, count)
	startIdx := (rb.index - count + rb.capacity) % rb.capacity
	for i := 0; i < count; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *CandleRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *CandleRing) Capacity() int {
	return rb.capacity
}
