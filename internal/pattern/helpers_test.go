package pattern

import (
	"time"

	"fvgTrader/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// bar builds a candle at t0 + i hours.
func bar(i int, open, high, low, close float64) domain.Candle {
	return domain.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    100,
	}
}

// hl builds candles from high/low/close triples.
func hl(rows ...[3]float64) []domain.Candle {
	out := make([]domain.Candle, len(rows))
	for i, r := range rows {
		out[i] = bar(i, r[2], r[0], r[1], r[2])
	}
	return out
}

// flat returns n quiet candles with a true range of 0.1 around price.
func flat(n int, high float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = bar(i, high-0.05, high, high-0.1, high-0.05)
	}
	return out
}

func appendBars(base []domain.Candle, rows ...[3]float64) []domain.Candle {
	out := append([]domain.Candle(nil), base...)
	for _, r := range rows {
		out = append(out, bar(len(out), r[2], r[0], r[1], r[2]))
	}
	return out
}
