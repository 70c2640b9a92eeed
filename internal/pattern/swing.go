package pattern

import (
	"math"
	"sort"

	"fvgTrader/internal/domain"
)

// prominenceFactor scales the column's standard deviation into the minimum
// prominence a peak needs to count as a swing.
const prominenceFactor = 0.1

// SwingIndices returns the positions of local maxima in values that are at
// least order samples apart and whose prominence is at least 0.1 times the
// population standard deviation of values. Indices are ascending.
//
// When two peaks are closer than order, the higher one is kept. Flat tops
// resolve to the middle sample of the plateau.
func SwingIndices(values []float64, order int) []int {
	peaks := localMaxima(values)
	if len(peaks) == 0 {
		return nil
	}
	if order > 1 {
		peaks = selectByDistance(values, peaks, order)
	}

	minProminence := prominenceFactor * stddev(values)
	kept := peaks[:0]
	for _, p := range peaks {
		if prominence(values, p) >= minProminence {
			kept = append(kept, p)
		}
	}
	return kept
}

// DetectSwings finds swing highs on the high column and swing lows on the
// low column.
func DetectSwings(candles []domain.Candle, order int) (highs, lows []domain.SwingPoint) {
	highVals := make([]float64, len(candles))
	negLowVals := make([]float64, len(candles))
	for i, c := range candles {
		highVals[i] = c.High
		negLowVals[i] = -c.Low
	}

	for _, idx := range SwingIndices(highVals, order) {
		highs = append(highs, domain.SwingPoint{
			Index:     idx,
			Timestamp: candles[idx].Timestamp,
			Level:     candles[idx].High,
			Kind:      domain.SwingHigh,
		})
	}
	for _, idx := range SwingIndices(negLowVals, order) {
		lows = append(lows, domain.SwingPoint{
			Index:     idx,
			Timestamp: candles[idx].Timestamp,
			Level:     candles[idx].Low,
			Kind:      domain.SwingLow,
		})
	}
	return highs, lows
}

func localMaxima(x []float64) []int {
	var peaks []int
	iMax := len(x) - 1
	for i := 1; i < iMax; i++ {
		if x[i-1] >= x[i] {
			continue
		}
		ahead := i + 1
		for ahead < iMax && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead
		}
	}
	return peaks
}

func selectByDistance(x []float64, peaks []int, distance int) []int {
	n := len(peaks)
	byPriority := make([]int, n)
	for i := range byPriority {
		byPriority[i] = i
	}
	sort.SliceStable(byPriority, func(a, b int) bool {
		return x[peaks[byPriority[a]]] < x[peaks[byPriority[b]]]
	})

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	for i := n - 1; i >= 0; i-- {
		j := byPriority[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < n && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, n)
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func prominence(x []float64, peak int) float64 {
	leftMin := x[peak]
	for i := peak; i >= 0 && x[i] <= x[peak]; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}
	rightMin := x[peak]
	for i := peak; i < len(x) && x[i] <= x[peak]; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}
	return x[peak] - math.Max(leftMin, rightMin)
}

func stddev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	sq := 0.0
	for _, v := range x {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(x)))
}
