package pattern

import (
	"fvgTrader/internal/domain"
)

// DetectMSBs finds closes beyond the most recent swing high (bullish) or swing
// low (bearish) formed strictly before the breaking candle. A break is not
// recorded again while the previous MSB has the same direction and broken
// level, so a level that stays broken yields a single MSB.
func DetectMSBs(candles []domain.Candle, order int) []domain.MarketStructureBreak {
	if order <= 0 || len(candles) < order*2+1 {
		return nil
	}
	highs, lows := DetectSwings(candles, order)

	var msbs []domain.MarketStructureBreak
	record := func(i int, dir domain.Direction, sp domain.SwingPoint) {
		if n := len(msbs); n > 0 {
			last := msbs[n-1]
			if last.Direction == dir && last.BrokenLevel == sp.Level {
				return
			}
		}
		c := candles[i]
		msbs = append(msbs, domain.MarketStructureBreak{
			Symbol:               c.Symbol,
			Timeframe:            c.Timeframe,
			Direction:            dir,
			Index:                i,
			Timestamp:            c.Timestamp,
			Level:                c.Close,
			BrokenLevel:          sp.Level,
			BrokenLevelTimestamp: sp.Timestamp,
		})
	}

	for i := order; i < len(candles); i++ {
		c := candles[i]
		if sh, ok := lastSwingBefore(highs, c); ok && c.Close > sh.Level {
			record(i, domain.Bullish, sh)
		}
		if sl, ok := lastSwingBefore(lows, c); ok && c.Close < sl.Level {
			record(i, domain.Bearish, sl)
		}
	}
	return msbs
}

func lastSwingBefore(swings []domain.SwingPoint, c domain.Candle) (domain.SwingPoint, bool) {
	for k := len(swings) - 1; k >= 0; k-- {
		if swings[k].Timestamp.Before(c.Timestamp) {
			return swings[k], true
		}
	}
	return domain.SwingPoint{}, false
}
