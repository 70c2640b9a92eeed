package pattern

import (
	"math"

	"fvgTrader/internal/domain"
)

// TrueRanges returns the true range of every candle. The first candle has no
// previous close, so its true range is just high minus low.
func TrueRanges(candles []domain.Candle) []float64 {
	trueRanges := make([]float64, len(candles))
	if len(candles) == 0 {
		return trueRanges
	}
	trueRanges[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)
		trueRanges[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return trueRanges
}

// ATR returns the Average True Range for every candle using Wilder's
// smoothing seeded with the simple average of the first period true ranges.
//
// The first period-1 values are undefined and are back-filled with the first
// defined value. Returns nil when there are fewer than period candles.
func ATR(candles []domain.Candle, period int) []float64 {
	if period <= 0 || len(candles) < period {
		return nil
	}
	trueRanges := TrueRanges(candles)
	atr := make([]float64, len(candles))

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += trueRanges[i]
	}
	seed /= float64(period)
	atr[period-1] = seed

	for i := period; i < len(candles); i++ {
		atr[i] = (atr[i-1]*float64(period-1) + trueRanges[i]) / float64(period)
	}

	// back-fill only
	for i := 0; i < period-1; i++ {
		atr[i] = seed
	}
	return atr
}
