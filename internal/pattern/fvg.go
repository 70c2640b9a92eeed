package pattern

import (
	"fvgTrader/internal/domain"
)

// FVGConfig holds the significance thresholds for gap detection.
type FVGConfig struct {
	ATRPeriod     int     // default 14
	ATRMultiplier float64 // gap height must exceed this multiple of ATR, default 0.8
	MinPctPrice   float64 // gap height / close must exceed this, default 0.003
}

// DefaultFVGConfig returns the standard detection thresholds.
func DefaultFVGConfig() FVGConfig {
	return FVGConfig{ATRPeriod: 14, ATRMultiplier: 0.8, MinPctPrice: 0.003}
}

// DetectFVGs scans every consecutive candle triple for a fair value gap.
//
// A bullish gap exists when the first candle's high is below the third
// candle's low; a bearish gap when the third candle's high is below the first
// candle's low. Only gaps that clear both the ATR and the price-percentage
// threshold, measured at the middle candle, are returned. Start is the lower
// boundary and End the upper one in both directions.
func DetectFVGs(candles []domain.Candle, cfg FVGConfig) []domain.FairValueGap {
	if cfg.ATRPeriod <= 0 || len(candles) < cfg.ATRPeriod+2 {
		return nil
	}
	atr := ATR(candles, cfg.ATRPeriod)

	var gaps []domain.FairValueGap
	for i := 2; i < len(candles); i++ {
		n1, n2, n3 := candles[i-2], candles[i-1], candles[i]

		var dir domain.Direction
		var start, end float64
		switch {
		case n1.High < n3.Low:
			dir, start, end = domain.Bullish, n1.High, n3.Low
		case n3.High < n1.Low:
			dir, start, end = domain.Bearish, n3.High, n1.Low
		default:
			continue
		}

		height := end - start
		if n2.Close <= 0 {
			continue
		}
		pct := height / n2.Close
		if height <= cfg.ATRMultiplier*atr[i-1] || pct <= cfg.MinPctPrice {
			continue
		}

		gaps = append(gaps, domain.FairValueGap{
			Symbol:     n2.Symbol,
			Timeframe:  n2.Timeframe,
			Direction:  dir,
			Start:      start,
			End:        end,
			FormedAt:   n2.Timestamp,
			Height:     height,
			PctOfPrice: pct,
			Status:     domain.FVGPending,
		})
	}
	return gaps
}
