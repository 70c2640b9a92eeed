package app

import (
	"context"
	"fmt"
	"time"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/pattern"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/signal"
	"fvgTrader/internal/stage"
)

const (
	// DefaultFVGExpiry is how long a gap may stay pending.
	DefaultFVGExpiry = 120 * time.Hour
	// DefaultSweepInterval is how often stale gaps are expired.
	DefaultSweepInterval = time.Hour
)

// AnalysisConfig configures the analysis stage.
type AnalysisConfig struct {
	HTF         string // timeframe gaps are detected on
	LTF         string // timeframe liquidity, structure and inversions are read on
	HTFLookback time.Duration
	LTFLookback time.Duration
	FVG         pattern.FVGConfig
	Liquidity   pattern.LiquidityConfig
	MSBOrder    int // swing order for structure breaks
	FVGExpiry   time.Duration
	SweepEvery  time.Duration
}

// Analysis turns stored candles into gaps, pools and trade signals.
type Analysis struct {
	candles   ports.CandleStore
	store     ports.LifecycleStore
	validator *signal.Validator
	bus       ports.EventBus
	logger    ports.Logger
	metrics   ports.Metrics
	cfg       AnalysisConfig
	now       func() time.Time
}

// NewAnalysis creates the analysis stage.
func NewAnalysis(candles ports.CandleStore, store ports.LifecycleStore, validator *signal.Validator, bus ports.EventBus, logger ports.Logger, metrics ports.Metrics, cfg AnalysisConfig) (*Analysis, error) {
	if candles == nil || store == nil || validator == nil || bus == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Analysis")
	}
	if cfg.HTF == "" || cfg.LTF == "" {
		return nil, fmt.Errorf("analysis needs both HTF and LTF timeframes")
	}
	if cfg.HTFLookback <= 0 || cfg.LTFLookback <= 0 {
		return nil, fmt.Errorf("analysis lookbacks must be positive")
	}
	if cfg.MSBOrder <= 0 {
		cfg.MSBOrder = cfg.Liquidity.SwingOrder
	}
	if cfg.FVGExpiry <= 0 {
		cfg.FVGExpiry = DefaultFVGExpiry
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = DefaultSweepInterval
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Analysis{
		candles:   candles,
		store:     store,
		validator: validator,
		bus:       bus,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
		now:       utcNow,
	}, nil
}

// Register subscribes the stage to candle notifications.
func (a *Analysis) Register(r *stage.Runner) {
	r.Handle(message.StreamCandlesAvailable, a.HandleCandlesAvailable)
}

// Run sweeps expired gaps every SweepEvery.
func (a *Analysis) Run(ctx context.Context) error {
	return every(ctx, a.cfg.SweepEvery, a.logger, "Analysis expiry sweep", func(ctx context.Context) error {
		_, err := a.ExpireStale(ctx)
		return err
	})
}

// HandleCandlesAvailable re-analyzes the symbol when one of its two
// timeframes received candles.
func (a *Analysis) HandleCandlesAvailable(ctx context.Context, msg message.Message) error {
	m, ok := msg.(message.CandlesAvailable)
	if !ok {
		return unexpected(msg, message.TypeCandlesAvailable)
	}
	if m.Timeframe != a.cfg.HTF && m.Timeframe != a.cfg.LTF {
		a.logger.Debug(ctx, "Analysis: ignoring timeframe", map[string]interface{}{"symbol": m.Symbol, "timeframe": m.Timeframe})
		return nil
	}
	_, err := a.AnalyzeSymbol(ctx, m.Symbol)
	return err
}

// ExpireStale expires pending gaps older than the configured expiry.
func (a *Analysis) ExpireStale(ctx context.Context) (int64, error) {
	n, err := a.store.ExpireFVGs(ctx, a.now().Add(-a.cfg.FVGExpiry))
	if err != nil {
		return 0, fmt.Errorf("expire fvgs: %w", err)
	}
	if n > 0 {
		a.metrics.IncCounter("fvgs_expired_total", nil)
	}
	return n, nil
}

// AnalyzeSymbol runs one full pass for the symbol and returns the number of
// signals published. Signals recorded by an earlier pass whose publish
// failed are published first.
func (a *Analysis) AnalyzeSymbol(ctx context.Context, symbol string) (int, error) {
	op := "AnalyzeSymbol"
	fields := map[string]interface{}{"symbol": symbol}
	now := a.now()

	published, err := a.announceOutstanding(ctx, symbol)
	if err != nil {
		return published, fmt.Errorf("%s: %w", op, err)
	}

	htf, err := a.candles.CandlesSince(ctx, symbol, a.cfg.HTF, now.Add(-a.cfg.HTFLookback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.saveGaps(ctx, htf); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	ltf, err := a.candles.CandlesSince(ctx, symbol, a.cfg.LTF, now.Add(-a.cfg.LTFLookback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	pools, err := a.refreshPools(ctx, symbol, ltf)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	msbs := pattern.DetectMSBs(ltf, a.cfg.MSBOrder)

	pending, err := a.store.PendingFVGs(ctx, symbol, a.cfg.HTF)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, gap := range pending {
		outcome, rejection := a.validator.Evaluate(*gap, ltf, msbs, pools)
		if rejection != "" {
			a.metrics.IncCounter("signal_rejections_total", map[string]string{"reason": string(rejection)})
			a.logger.Debug(ctx, op+": gap not actionable", map[string]interface{}{"symbol": symbol, "fvgID": gap.ID, "reason": rejection})
			continue
		}
		ok, err := a.record(ctx, gap, outcome)
		if err != nil {
			return published, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			published++
		}
	}

	fields["htfCandles"], fields["ltfCandles"] = len(htf), len(ltf)
	fields["pendingFVGs"], fields["signals"] = len(pending), published
	a.logger.Info(ctx, op+": analysis complete", fields)
	return published, nil
}

func (a *Analysis) saveGaps(ctx context.Context, htf []domain.Candle) error {
	gaps := pattern.DetectFVGs(htf, a.cfg.FVG)
	created := 0
	for i := range gaps {
		_, isNew, err := a.store.SaveFVG(ctx, &gaps[i])
		if err != nil {
			return err
		}
		if isNew {
			created++
		}
	}
	if created > 0 {
		a.metrics.IncCounter("fvgs_detected_total", map[string]string{"timeframe": a.cfg.HTF})
	}
	return nil
}

// refreshPools stores newly detected pools, marks taps and returns the pools
// still untapped.
func (a *Analysis) refreshPools(ctx context.Context, symbol string, ltf []domain.Candle) ([]*domain.LiquidityPool, error) {
	detected := pattern.DetectLiquidity(ltf, a.cfg.Liquidity)
	for i := range detected {
		if _, _, err := a.store.SaveLiquidityPool(ctx, &detected[i], a.cfg.Liquidity.Tolerance); err != nil {
			return nil, err
		}
	}

	untapped, err := a.store.UntappedPools(ctx, symbol, a.cfg.LTF)
	if err != nil {
		return nil, err
	}
	live := make([]*domain.LiquidityPool, 0, len(untapped))
	for _, pool := range untapped {
		tapTime, tapped := pattern.FindTap(*pool, ltf)
		if !tapped {
			live = append(live, pool)
			continue
		}
		if _, err := a.store.MarkPoolTapped(ctx, pool.ID, tapTime); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// announceOutstanding publishes pending signals of the symbol that were
// recorded but never announced.
func (a *Analysis) announceOutstanding(ctx context.Context, symbol string) (int, error) {
	signals, err := a.store.UnannouncedSignals(ctx, symbol, a.cfg.LTF)
	if err != nil {
		return 0, err
	}
	for i, sig := range signals {
		if err := a.announce(ctx, sig); err != nil {
			return i, err
		}
	}
	if len(signals) > 0 {
		a.logger.Info(ctx, "Republished unannounced signals", map[string]interface{}{"symbol": symbol, "count": len(signals)})
	}
	return len(signals), nil
}

// record persists the signal, fills the gap and publishes. It reports false
// when the gap had already left pending.
func (a *Analysis) record(ctx context.Context, gap *domain.FairValueGap, outcome *signal.Outcome) (bool, error) {
	sig := outcome.Signal
	signalID, filled, err := a.store.RecordSignal(ctx, gap.ID, outcome.InversionTime, outcome.Confirmation, &sig)
	if err != nil {
		return false, err
	}
	if !filled {
		return false, nil
	}
	sig.ID, sig.FVGID = signalID, gap.ID
	if err := a.announce(ctx, &sig); err != nil {
		return false, err
	}
	return true, nil
}

// announce publishes SignalGenerated for a recorded signal and marks it
// announced. A failed mark only causes a duplicate publish later.
func (a *Analysis) announce(ctx context.Context, sig *domain.TradeSignal) error {
	msg := message.SignalGenerated{
		SignalID:    sig.ID,
		FVGID:       sig.FVGID,
		Ticker:      sig.Ticker,
		Timeframe:   sig.Timeframe,
		Side:        sig.Direction,
		Entry:       sig.EntryPrice,
		Stop:        sig.StopLoss,
		Target:      sig.LiquidityTarget,
		RR:          sig.RR,
		Confluences: sig.Confluences,
	}
	if _, err := message.Publish(ctx, a.bus, msg); err != nil {
		return fmt.Errorf("publish signal %d: %w", sig.ID, err)
	}
	if _, err := a.store.MarkSignalAnnounced(ctx, sig.ID); err != nil {
		return fmt.Errorf("mark signal %d announced: %w", sig.ID, err)
	}
	a.metrics.IncCounter("signals_generated_total", map[string]string{"side": string(sig.Direction)})
	a.logger.Info(ctx, "Signal generated", map[string]interface{}{
		"signalID": sig.ID, "fvgID": sig.FVGID, "ticker": sig.Ticker, "side": sig.Direction,
		"entry": sig.EntryPrice, "stop": sig.StopLoss, "target": sig.LiquidityTarget, "rr": sig.RR,
	})
	return nil
}
