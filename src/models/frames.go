package models

// -----------------------------------------------------------------------------
// Outbound frames (one JSON object per websocket message)
// -----------------------------------------------------------------------------

const (
	FrameCandleUpdate       = "candle_update"
	FrameOrderBookUpdate    = "orderbook_update"
	FrameHistoricalData     = "historical_data"
	FrameConnectionStatus   = "connection_status"
	FrameSubscriptionStatus = "subscription_status"
	FrameError              = "error"
)

type MCandleUpdateFrame struct {
	Type     string  `json:"type"`
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Data     MCandle `json:"data"`
}

type MOrderBookUpdateFrame struct {
	Type   string         `json:"type"`
	Symbol string         `json:"symbol"`
	Data   MOrderBookData `json:"data"`
}

type MHistoricalDataFrame struct {
	Type     string    `json:"type"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Data     []MCandle `json:"data"`
}

type MConnectionStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

type MConnectionStatusFrame struct {
	Type string            `json:"type"`
	Data MConnectionStatus `json:"data"`
}

type MSubscriptionStatusFrame struct {
	Type       string `json:"type"`
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	Subscribed bool   `json:"subscribed"`
}

type MErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}
