package domain

import "time"

// SwingKind tells whether a swing point is a local high or low.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a local extremum of a candle window. It is recomputed on
// every detection run and never stored on its own.
type SwingPoint struct {
	Index     int // Position in the candle window
	Timestamp time.Time
	Level     float64
	Kind      SwingKind
}

// MarketStructureBreak is a close beyond the most recent opposing swing.
type MarketStructureBreak struct {
	Symbol               string    `json:"symbol"`
	Timeframe            string    `json:"timeframe"`
	Direction            Direction `json:"direction"`
	Index                int       `json:"index"`
	Timestamp            time.Time `json:"timestamp"`    // Breaking candle
	Level                float64   `json:"level"`        // Close of the breaking candle
	BrokenLevel          float64   `json:"broken_level"` // Swing level that was broken
	BrokenLevelTimestamp time.Time `json:"broken_level_ts"`
}
