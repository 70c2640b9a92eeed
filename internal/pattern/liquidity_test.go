package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/domain"
)

// equalHighsWindow has swing highs at 100 (index 2) and 100.05 (index 6),
// which sit inside the 0.1% band, and one swing low at 90 (index 4).
func equalHighsWindow() []domain.Candle {
	return hl(
		[3]float64{95, 94, 94.5},
		[3]float64{97, 96, 96.5},
		[3]float64{100, 99, 99.5},
		[3]float64{97, 96, 96.5},
		[3]float64{95, 90, 92},
		[3]float64{97, 96, 96.5},
		[3]float64{100.05, 99, 99.5},
		[3]float64{97, 96, 96.5},
		[3]float64{95, 94, 94.5},
	)
}

func TestDetectLiquidity_EqualHighsWinOverLoneSwings(t *testing.T) {
	candles := equalHighsWindow()
	cfg := LiquidityConfig{SwingOrder: 2, Tolerance: 0.001}

	pools := DetectLiquidity(candles, cfg)
	require.Len(t, pools, 2)

	buy := pools[0]
	assert.Equal(t, domain.BuySide, buy.Type)
	assert.Equal(t, 90.0, buy.Level)
	assert.Equal(t, domain.SignificantSwing, buy.Significance)
	assert.Equal(t, 1, buy.Touches)
	assert.Equal(t, candles[4].Timestamp, buy.FormedAt)

	sell := pools[1]
	assert.Equal(t, domain.SellSide, sell.Type)
	assert.InDelta(t, 100.025, sell.Level, 1e-9)
	assert.Equal(t, domain.EqualHighs, sell.Significance)
	assert.Equal(t, 2, sell.Touches)
	assert.Equal(t, candles[6].Timestamp, sell.FormedAt, "formed at the latest touch")
	assert.False(t, sell.Tapped)
}

func TestDetectLiquidity_DistinctLevelsKept(t *testing.T) {
	candles := equalHighsWindow()
	candles[6].High = 104 // no longer equal to the first high

	pools := DetectLiquidity(candles, LiquidityConfig{SwingOrder: 2, Tolerance: 0.001})

	var sellLevels []float64
	for _, p := range pools {
		if p.Type == domain.SellSide {
			sellLevels = append(sellLevels, p.Level)
			assert.Equal(t, domain.SignificantSwing, p.Significance)
		}
	}
	assert.Equal(t, []float64{100, 104}, sellLevels)
}

func TestDetectLiquidity_Deterministic(t *testing.T) {
	candles := equalHighsWindow()
	cfg := LiquidityConfig{SwingOrder: 2, Tolerance: 0.001}
	assert.Equal(t, DetectLiquidity(candles, cfg), DetectLiquidity(candles, cfg))
}

func TestFindTap(t *testing.T) {
	candles := equalHighsWindow()
	formed := candles[2].Timestamp

	tests := []struct {
		name    string
		pool    domain.LiquidityPool
		wantOK  bool
		wantIdx int
	}{
		{
			name:    "sell-side tapped by later high",
			pool:    domain.LiquidityPool{Type: domain.SellSide, Level: 100, FormedAt: formed},
			wantOK:  true,
			wantIdx: 6,
		},
		{
			name:   "forming candle does not count",
			pool:   domain.LiquidityPool{Type: domain.SellSide, Level: 100.01, FormedAt: candles[6].Timestamp},
			wantOK: false,
		},
		{
			name:    "buy-side tapped by later low",
			pool:    domain.LiquidityPool{Type: domain.BuySide, Level: 94, FormedAt: formed},
			wantOK:  true,
			wantIdx: 4,
		},
		{
			name:   "buy-side never reached",
			pool:   domain.LiquidityPool{Type: domain.BuySide, Level: 80, FormedAt: formed},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := FindTap(tt.pool, candles)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, candles[tt.wantIdx].Timestamp, ts)
			} else {
				assert.Equal(t, time.Time{}, ts)
			}
		})
	}
}
