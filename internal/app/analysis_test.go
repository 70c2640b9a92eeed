package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/adapters/membus"
	"fvgTrader/internal/adapters/metrics"
	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/pattern"
	"fvgTrader/internal/signal"
)

var sessionOpen = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

// ltfCloses builds 5m dojis starting at sessionOpen. Open equals close, so
// no candle qualifies as an order block.
func ltfCloses(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Symbol:    "ETHUSDT",
			Timeframe: "5m",
			Timestamp: sessionOpen.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

// invertingSeries has one swing low at index 2 (106.5) and one swing high
// at index 4 (111.5) for order 2. Index 2 closes back inside a 100-110
// bullish gap and index 6 breaks the swing low.
func invertingSeries() []domain.Candle {
	return ltfCloses(112, 110, 107, 109, 111, 109, 106, 105)
}

func pendingBullishGap() domain.FairValueGap {
	return domain.FairValueGap{
		Symbol:    "ETHUSDT",
		Timeframe: "1h",
		Direction: domain.Bullish,
		Start:     100,
		End:       110,
		FormedAt:  sessionOpen.Add(-time.Hour),
	}
}

type analysisFixture struct {
	store   *memStore
	bus     *membus.Bus
	flaky   *flakyBus // wraps bus; set failures to break publishing
	metrics *metrics.Memory
	stage   *Analysis
}

func newAnalysisFixture(t *testing.T) *analysisFixture {
	t.Helper()
	validator, err := signal.New(signal.DefaultConfig())
	require.NoError(t, err)

	f := &analysisFixture{store: newMemStore(), bus: membus.New(), metrics: metrics.NewMemory()}
	f.flaky = &flakyBus{Bus: f.bus}
	f.stage, err = NewAnalysis(f.store, f.store, validator, f.flaky, &mockLogger{}, f.metrics, AnalysisConfig{
		HTF:         "1h",
		LTF:         "5m",
		HTFLookback: 48 * time.Hour,
		LTFLookback: 24 * time.Hour,
		FVG:         pattern.DefaultFVGConfig(),
		Liquidity:   pattern.LiquidityConfig{SwingOrder: 2, Tolerance: 0.001},
	})
	require.NoError(t, err)
	f.stage.now = func() time.Time { return sessionOpen.Add(time.Hour) }
	return f
}

func (f *analysisFixture) signals(t *testing.T) []message.SignalGenerated {
	t.Helper()
	var out []message.SignalGenerated
	for _, fields := range f.bus.Entries(message.StreamSignalsGenerated) {
		msg, err := message.Decode(fields)
		require.NoError(t, err)
		out = append(out, msg.(message.SignalGenerated))
	}
	return out
}

func TestNewAnalysis_Validation(t *testing.T) {
	validator, err := signal.New(signal.DefaultConfig())
	require.NoError(t, err)
	store := newMemStore()

	_, err = NewAnalysis(nil, store, validator, membus.New(), &mockLogger{}, nil, AnalysisConfig{HTF: "1h", LTF: "5m", HTFLookback: time.Hour, LTFLookback: time.Hour})
	assert.Error(t, err)

	_, err = NewAnalysis(store, store, validator, membus.New(), &mockLogger{}, nil, AnalysisConfig{HTF: "1h", HTFLookback: time.Hour, LTFLookback: time.Hour})
	assert.Error(t, err)

	a, err := NewAnalysis(store, store, validator, membus.New(), &mockLogger{}, nil, AnalysisConfig{
		HTF: "1h", LTF: "5m", HTFLookback: time.Hour, LTFLookback: time.Hour,
		Liquidity: pattern.LiquidityConfig{SwingOrder: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, a.cfg.MSBOrder)
	assert.Equal(t, DefaultFVGExpiry, a.cfg.FVGExpiry)
	assert.Equal(t, DefaultSweepInterval, a.cfg.SweepEvery)
}

func TestAnalysis_PublishesSignalAndFillsGap(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	ltf := invertingSeries()
	_, err := f.store.SaveCandles(ctx, ltf)
	require.NoError(t, err)

	gap := f.store.addGap(pendingBullishGap())
	f.store.untapped = []*domain.LiquidityPool{
		{ID: 900, Symbol: "ETHUSDT", Timeframe: "5m", Type: domain.SellSide, Level: 101, FormedAt: ltf[len(ltf)-1].Timestamp},
	}

	err = f.stage.HandleCandlesAvailable(ctx, message.CandlesAvailable{Symbol: "ETHUSDT", Timeframe: "5m", Count: len(ltf)})
	require.NoError(t, err)

	sigs := f.signals(t)
	require.Len(t, sigs, 1)
	s := sigs[0]
	assert.Equal(t, gap.ID, s.FVGID)
	assert.Equal(t, "ETHUSDT", s.Ticker)
	assert.Equal(t, "5m", s.Timeframe)
	assert.Equal(t, domain.Sell, s.Side)
	assert.Equal(t, 107.0, s.Entry)
	assert.Equal(t, 110.0, s.Stop)
	assert.Equal(t, 101.0, s.Target)
	assert.InDelta(t, 2.0, s.RR, 1e-9)
	assert.Equal(t, []string{signal.ConfluenceSession}, s.Confluences)

	stored := f.store.gap(gap.ID)
	assert.Equal(t, domain.FVGFilled, stored.Status)
	assert.Equal(t, ltf[2].Timestamp, stored.InversionTime)
	require.NotNil(t, stored.Confirmation)
	assert.Equal(t, 106.5, stored.Confirmation.MSB.BrokenLevel)
	assert.Equal(t, 6, stored.Confirmation.MSB.Index)

	assert.Equal(t, 1.0, f.metrics.Counter("signals_generated_total", map[string]string{"side": "SELL"}))
	assert.NotEmpty(t, f.store.savedPools, "detected pools are stored")

	// The gap is no longer pending, so a second pass publishes nothing.
	n, err := f.stage.AnalyzeSymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, f.bus.Len(message.StreamSignalsGenerated))
}

func TestAnalysis_MarksTappedPools(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	ltf := invertingSeries()
	_, err := f.store.SaveCandles(ctx, ltf)
	require.NoError(t, err)

	f.store.untapped = []*domain.LiquidityPool{
		// Low of index 6 (105.5) is the first to reach it.
		{ID: 901, Symbol: "ETHUSDT", Timeframe: "5m", Type: domain.BuySide, Level: 106.5, FormedAt: ltf[2].Timestamp},
		{ID: 902, Symbol: "ETHUSDT", Timeframe: "5m", Type: domain.SellSide, Level: 200, FormedAt: ltf[0].Timestamp},
	}

	_, err = f.stage.AnalyzeSymbol(ctx, "ETHUSDT")
	require.NoError(t, err)

	require.Contains(t, f.store.tapped, int64(901))
	assert.Equal(t, ltf[6].Timestamp, f.store.tapped[901])
	assert.NotContains(t, f.store.tapped, int64(902))
}

func TestAnalysis_CountsRejections(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	_, err := f.store.SaveCandles(ctx, ltfCloses(112, 113, 114, 113, 115, 116))
	require.NoError(t, err)
	gap := f.store.addGap(pendingBullishGap())

	n, err := f.stage.AnalyzeSymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1.0, f.metrics.Counter("signal_rejections_total", map[string]string{"reason": string(signal.RejectNoInversion)}))
	assert.Equal(t, domain.FVGPending, f.store.gap(gap.ID).Status)
	assert.Equal(t, 0, f.bus.Len(message.StreamSignalsGenerated))
}

func TestAnalysis_NoTargetLeavesGapPending(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	_, err := f.store.SaveCandles(ctx, invertingSeries())
	require.NoError(t, err)
	gap := f.store.addGap(pendingBullishGap())

	_, err = f.stage.AnalyzeSymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.metrics.Counter("signal_rejections_total", map[string]string{"reason": string(signal.RejectNoTarget)}))
	assert.Equal(t, domain.FVGPending, f.store.gap(gap.ID).Status)
}

func TestAnalysis_DetectsHigherTimeframeGaps(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()

	start := sessionOpen.Add(-20 * time.Hour)
	var htf []domain.Candle
	add := func(high, low, close float64) {
		htf = append(htf, domain.Candle{
			Symbol: "ETHUSDT", Timeframe: "1h", Timestamp: start.Add(time.Duration(len(htf)) * time.Hour),
			Open: close, High: high, Low: low, Close: close, Volume: 100,
		})
	}
	for i := 0; i < 14; i++ {
		add(10, 9.9, 9.95)
	}
	add(10, 9, 9.5)
	add(10.2, 9.8, 10)
	add(12, 11.5, 11.8)
	_, err := f.store.SaveCandles(ctx, htf)
	require.NoError(t, err)

	require.NoError(t, f.stage.HandleCandlesAvailable(ctx, message.CandlesAvailable{Symbol: "ETHUSDT", Timeframe: "1h"}))
	require.NoError(t, f.stage.HandleCandlesAvailable(ctx, message.CandlesAvailable{Symbol: "ETHUSDT", Timeframe: "1h"}))

	pending, err := f.store.PendingFVGs(ctx, "ETHUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.Bullish, pending[0].Direction)
	assert.Equal(t, 10.0, pending[0].Start)
	assert.Equal(t, 11.5, pending[0].End)
	assert.Equal(t, htf[15].Timestamp, pending[0].FormedAt)
	assert.Equal(t, 1.0, f.metrics.Counter("fvgs_detected_total", map[string]string{"timeframe": "1h"}))
}

func TestAnalysis_IgnoresOtherTimeframes(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	_, err := f.store.SaveCandles(ctx, invertingSeries())
	require.NoError(t, err)
	gap := f.store.addGap(pendingBullishGap())
	f.store.untapped = []*domain.LiquidityPool{{ID: 900, Type: domain.SellSide, Level: 101, FormedAt: sessionOpen.Add(time.Hour)}}

	err = f.stage.HandleCandlesAvailable(ctx, message.CandlesAvailable{Symbol: "ETHUSDT", Timeframe: "15m"})
	require.NoError(t, err)
	assert.Equal(t, domain.FVGPending, f.store.gap(gap.ID).Status)
	assert.Equal(t, 0, f.bus.Len(message.StreamSignalsGenerated))
}

func TestAnalysis_RejectsWrongMessageType(t *testing.T) {
	f := newAnalysisFixture(t)
	err := f.stage.HandleCandlesAvailable(context.Background(), message.AssetsScreened{Symbols: []string{"ETHUSDT"}})

	var verr *message.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, message.TypeAssetsScreened, verr.Type)
}

func TestAnalysis_ExpireStale(t *testing.T) {
	f := newAnalysisFixture(t)
	now := f.stage.now()

	old := pendingBullishGap()
	old.FormedAt = now.Add(-121 * time.Hour)
	oldGap := f.store.addGap(old)
	fresh := f.store.addGap(pendingBullishGap())

	n, err := f.stage.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(-DefaultFVGExpiry), f.store.expireCutoff)
	assert.Equal(t, domain.FVGExpired, f.store.gap(oldGap.ID).Status)
	assert.Equal(t, domain.FVGPending, f.store.gap(fresh.ID).Status)
	assert.Equal(t, 1.0, f.metrics.Counter("fvgs_expired_total", nil))

	n, err = f.stage.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, f.metrics.Counter("fvgs_expired_total", nil))
}

func TestAnalysis_RepublishesSignalAfterPublishFailure(t *testing.T) {
	f := newAnalysisFixture(t)
	ctx := context.Background()
	ltf := invertingSeries()
	_, err := f.store.SaveCandles(ctx, ltf)
	require.NoError(t, err)
	gap := f.store.addGap(pendingBullishGap())
	f.store.untapped = []*domain.LiquidityPool{
		{ID: 900, Symbol: "ETHUSDT", Timeframe: "5m", Type: domain.SellSide, Level: 101, FormedAt: ltf[len(ltf)-1].Timestamp},
	}
	f.flaky.failures = 1
	notice := message.CandlesAvailable{Symbol: "ETHUSDT", Timeframe: "5m", Count: len(ltf)}

	// The signal is recorded and the gap filled, but the publish fails.
	err = f.stage.HandleCandlesAvailable(ctx, notice)
	assert.ErrorIs(t, err, errPublish)
	assert.Empty(t, f.signals(t))
	assert.Equal(t, domain.FVGFilled, f.store.gap(gap.ID).Status)

	// The redelivered notice publishes the recorded signal.
	require.NoError(t, f.stage.HandleCandlesAvailable(ctx, notice))
	sigs := f.signals(t)
	require.Len(t, sigs, 1)
	assert.Equal(t, gap.ID, sigs[0].FVGID)
	assert.Equal(t, domain.Sell, sigs[0].Side)
	assert.Equal(t, 107.0, sigs[0].Entry)
	assert.Equal(t, 101.0, sigs[0].Target)
	assert.Equal(t, domain.SignalPending, f.store.signalStatus(sigs[0].SignalID))
	assert.Equal(t, 1.0, f.metrics.Counter("signals_generated_total", map[string]string{"side": "SELL"}))

	// Announced once; later passes stay quiet.
	n, err := f.stage.AnalyzeSymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.signals(t), 1)
}
