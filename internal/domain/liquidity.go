package domain

import "time"

// PoolType is the side of the book where resting liquidity is presumed.
type PoolType string

const (
	BuySide  PoolType = "buy-side"  // below swing lows
	SellSide PoolType = "sell-side" // above swing highs
)

// PoolSignificance tells how a pool was formed.
type PoolSignificance string

const (
	SignificantSwing PoolSignificance = "significant_swing"
	EqualHighs       PoolSignificance = "equal_highs"
	EqualLows        PoolSignificance = "equal_lows"
)

// TargetPoolType returns the pool type a trade on the given side aims for.
func TargetPoolType(side OrderSide) PoolType {
	if side == Buy {
		return BuySide
	}
	return SellSide
}

// LiquidityPool is a price level where stop orders are presumed to cluster.
type LiquidityPool struct {
	ID           int64
	Symbol       string
	Timeframe    string
	Type         PoolType
	Level        float64
	FormedAt     time.Time
	Significance PoolSignificance
	Touches      int
	Tapped       bool
	TapTime      time.Time // Zero until tapped
	Metadata     map[string]interface{}
}

// IsEqualLevel reports whether the pool came from a cluster of swings.
func (p LiquidityPool) IsEqualLevel() bool {
	return p.Significance == EqualHighs || p.Significance == EqualLows
}
