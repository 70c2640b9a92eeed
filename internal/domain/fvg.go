package domain

import "time"

// FVGStatus is the lifecycle state of a tracked fair value gap.
type FVGStatus string

const (
	FVGPending FVGStatus = "pending"
	FVGFilled  FVGStatus = "filled"
	FVGExpired FVGStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s FVGStatus) IsTerminal() bool {
	return s == FVGFilled || s == FVGExpired
}

// FairValueGap is a three-candle imbalance. Start is always the lower
// boundary and End the upper one, for both directions.
type FairValueGap struct {
	ID            int64
	Symbol        string
	Timeframe     string
	Direction     Direction
	Start         float64   // Lower price boundary of the gap
	End           float64   // Upper price boundary of the gap
	FormedAt      time.Time // Timestamp of the middle candle
	Height        float64   // End - Start
	PctOfPrice    float64   // Height relative to the middle candle close
	Status        FVGStatus
	InversionTime time.Time     // Set when the gap is filled (zero otherwise)
	Confirmation  *Confirmation // Set when the gap is filled
}

// Confirmation records why a gap was marked filled.
type Confirmation struct {
	Confluences []string             `json:"confluences"`
	MSB         MarketStructureBreak `json:"msb"`
}
