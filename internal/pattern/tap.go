package pattern

import (
	"time"

	"fvgTrader/internal/domain"
)

// FindTap returns the timestamp of the first candle after the pool formed
// that trades through its level: a high at or above it for sell-side pools,
// a low at or below it for buy-side pools.
func FindTap(pool domain.LiquidityPool, candles []domain.Candle) (time.Time, bool) {
	for _, c := range candles {
		if !c.Timestamp.After(pool.FormedAt) {
			continue
		}
		switch pool.Type {
		case domain.SellSide:
			if c.High >= pool.Level {
				return c.Timestamp, true
			}
		case domain.BuySide:
			if c.Low <= pool.Level {
				return c.Timestamp, true
			}
		}
	}
	return time.Time{}, false
}
