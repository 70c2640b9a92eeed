package domain

import "time"

// Candle is one OHLCV bar. Candles are immutable once stored and keyed by
// (Symbol, Timeframe, Timestamp).
type Candle struct {
	Symbol    string    // Trading symbol (e.g., "BTCUSDT", "BTC-USD")
	Timeframe string    // Bar interval (e.g., "1h", "5m")
	Timestamp time.Time // Bar open time, UTC
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Body returns the absolute size of the candle body.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}
