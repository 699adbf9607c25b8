package domain

import "time"

// Bar is one immutable OHLCV record for (symbol, timeframe, timestamp),
// where Timestamp is the UTC bar-open time.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BarKey is the natural key a Bar Repository upserts on.
type BarKey struct {
	Symbol    string
	Timeframe Timeframe
	Timestamp time.Time
}

func (b Bar) Key() BarKey {
	return BarKey{Symbol: b.Symbol, Timeframe: b.Timeframe, Timestamp: b.Timestamp}
}
