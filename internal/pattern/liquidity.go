package pattern

import (
	"math"
	"sort"

	"fvgTrader/internal/domain"
)

// LiquidityConfig controls liquidity pool detection.
type LiquidityConfig struct {
	SwingOrder int     // default 5
	Tolerance  float64 // relative band for "equal" levels, default 0.001
}

// DefaultLiquidityConfig returns the standard pool detection settings.
func DefaultLiquidityConfig() LiquidityConfig {
	return LiquidityConfig{SwingOrder: 5, Tolerance: 0.001}
}

// DetectLiquidity builds liquidity pools from swing points.
//
// Every swing high is a sell-side pool and every swing low a buy-side pool.
// Swings of the same kind within Tolerance of each other are also merged into
// an equal-highs/equal-lows pool at their mean level. Equal pools win over
// lone swings, and any pool within twice the tolerance of an already kept pool
// of the same type is dropped. Output is sorted by formation time, then level.
func DetectLiquidity(candles []domain.Candle, cfg LiquidityConfig) []domain.LiquidityPool {
	if cfg.SwingOrder <= 0 || len(candles) < cfg.SwingOrder*2+1 {
		return nil
	}
	symbol, timeframe := candles[0].Symbol, candles[0].Timeframe
	highs, lows := DetectSwings(candles, cfg.SwingOrder)

	var pools []domain.LiquidityPool
	for _, sp := range highs {
		pools = append(pools, swingPool(symbol, timeframe, domain.SellSide, sp))
	}
	for _, sp := range lows {
		pools = append(pools, swingPool(symbol, timeframe, domain.BuySide, sp))
	}
	pools = append(pools, clusterPools(symbol, timeframe, domain.SellSide, domain.EqualHighs, highs, cfg.Tolerance)...)
	pools = append(pools, clusterPools(symbol, timeframe, domain.BuySide, domain.EqualLows, lows, cfg.Tolerance)...)

	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].IsEqualLevel() && !pools[j].IsEqualLevel()
	})

	var kept []domain.LiquidityPool
	for _, p := range pools {
		dup := false
		for _, k := range kept {
			if k.Type == p.Type && math.Abs(p.Level-k.Level) <= p.Level*cfg.Tolerance*2 {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, p)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].FormedAt.Equal(kept[j].FormedAt) {
			return kept[i].FormedAt.Before(kept[j].FormedAt)
		}
		return kept[i].Level < kept[j].Level
	})
	return kept
}

func swingPool(symbol, timeframe string, typ domain.PoolType, sp domain.SwingPoint) domain.LiquidityPool {
	return domain.LiquidityPool{
		Symbol:       symbol,
		Timeframe:    timeframe,
		Type:         typ,
		Level:        sp.Level,
		FormedAt:     sp.Timestamp,
		Significance: domain.SignificantSwing,
		Touches:      1,
	}
}

func clusterPools(symbol, timeframe string, typ domain.PoolType, sig domain.PoolSignificance, swings []domain.SwingPoint, tolerance float64) []domain.LiquidityPool {
	sorted := make([]domain.SwingPoint, len(swings))
	copy(sorted, swings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	processed := make([]bool, len(sorted))
	var pools []domain.LiquidityPool
	for i, anchor := range sorted {
		if processed[i] {
			continue
		}
		band := anchor.Level * tolerance
		var members []int
		for j, sp := range sorted {
			if math.Abs(sp.Level-anchor.Level) <= band {
				members = append(members, j)
			}
		}
		if len(members) < 2 {
			continue
		}

		sum := 0.0
		last := sorted[members[0]].Timestamp
		for _, j := range members {
			sum += sorted[j].Level
			if sorted[j].Timestamp.After(last) {
				last = sorted[j].Timestamp
			}
			processed[j] = true
		}
		pools = append(pools, domain.LiquidityPool{
			Symbol:       symbol,
			Timeframe:    timeframe,
			Type:         typ,
			Level:        sum / float64(len(members)),
			FormedAt:     last,
			Significance: sig,
			Touches:      len(members),
		})
	}
	return pools
}
