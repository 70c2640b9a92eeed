// Package signal turns pending fair value gaps into trade signals once price
// inverts through them with a confirming market structure break.
package signal

import (
	"fmt"
	"math"
	"time"

	"fvgTrader/internal/domain"
)

// Rejection names why a gap produced no signal. Empty means accepted.
type Rejection string

const (
	RejectNoInversion Rejection = "no_confirmed_inversion"
	RejectNoTarget    Rejection = "no_liquidity_target"
	RejectZeroRisk    Rejection = "zero_risk"
	RejectLowRR       Rejection = "rr_below_minimum"
	RejectWrongSide   Rejection = "target_wrong_side"
)

// Config holds the validation thresholds.
type Config struct {
	MSBWindow           int     // candles either side of the inversion, default 10
	MSBBufferPct        float64 // range buffer as a fraction of price, default 0.005
	VolumeWindow        int     // default 20
	VolumeFactor        float64 // default 2.0
	Sessions            []Session
	OrderBlockLookback  int     // default 15
	OrderBlockBodyRatio float64 // default 0.6
	MinRR               float64 // default 1.0
	MaxRRCap            float64 // default 10.0
}

// DefaultConfig returns the standard validation thresholds.
func DefaultConfig() Config {
	return Config{
		MSBWindow:           10,
		MSBBufferPct:        0.005,
		VolumeWindow:        20,
		VolumeFactor:        2.0,
		Sessions:            DefaultSessions(),
		OrderBlockLookback:  15,
		OrderBlockBodyRatio: 0.6,
		MinRR:               1.0,
		MaxRRCap:            10.0,
	}
}

// Validator evaluates pending gaps against lower-timeframe price action.
type Validator struct {
	cfg Config
}

// New creates a validator after checking the configuration.
func New(cfg Config) (*Validator, error) {
	if cfg.MSBWindow < 0 || cfg.VolumeWindow <= 0 || cfg.OrderBlockLookback < 0 {
		return nil, fmt.Errorf("signal validator: windows must be positive")
	}
	if cfg.MinRR <= 0 || cfg.MaxRRCap < cfg.MinRR {
		return nil, fmt.Errorf("signal validator: need 0 < MinRR <= MaxRRCap, got %v and %v", cfg.MinRR, cfg.MaxRRCap)
	}
	if cfg.Sessions == nil {
		cfg.Sessions = DefaultSessions()
	}
	return &Validator{cfg: cfg}, nil
}

// Outcome is an accepted inversion.
type Outcome struct {
	Signal         domain.TradeSignal
	InversionIndex int
	InversionTime  time.Time
	Confirmation   domain.Confirmation
}

// Evaluate looks for the first valid inversion of fvg in the ltf candles.
//
// An inversion candle closes back inside the gap at or after its formation.
// It counts only with an MSB in the trade direction near it whose broken
// level sits inside the buffered gap, and with at least one confluence.
// Inversion candles that miss either are skipped; the first one that passes
// decides the outcome, so a target or risk/reward failure rejects the gap.
func (v *Validator) Evaluate(fvg domain.FairValueGap, ltf []domain.Candle, msbs []domain.MarketStructureBreak, pools []*domain.LiquidityPool) (*Outcome, Rejection) {
	side := fvg.Direction.Opposite().Side()

	for i, c := range ltf {
		if c.Timestamp.Before(fvg.FormedAt) || !inverts(fvg, c.Close) {
			continue
		}
		msb, ok := v.confirmingMSB(fvg, side, i, c.Close, msbs)
		if !ok {
			continue
		}
		confluences := v.confluences(ltf, i, msb)
		if len(confluences) == 0 {
			continue
		}

		entry := c.Close
		stop := stopLoss(fvg)
		pool := nearestPool(pools, domain.TargetPoolType(side), entry)
		if pool == nil {
			return nil, RejectNoTarget
		}
		target, rr, rej := RiskReward(side, entry, stop, pool.Level, v.cfg.MinRR, v.cfg.MaxRRCap)
		if rej != "" {
			return nil, rej
		}

		return &Outcome{
			Signal: domain.TradeSignal{
				Ticker:          fvg.Symbol,
				Timeframe:       c.Timeframe,
				Direction:       side,
				FVGID:           fvg.ID,
				EntryPrice:      entry,
				StopLoss:        stop,
				LiquidityTarget: target,
				RR:              rr,
				Confluences:     confluences,
				Status:          domain.SignalPending,
			},
			InversionIndex: i,
			InversionTime:  c.Timestamp,
			Confirmation:   domain.Confirmation{Confluences: confluences, MSB: msb},
		}, ""
	}
	return nil, RejectNoInversion
}

func inverts(fvg domain.FairValueGap, price float64) bool {
	if fvg.Direction == domain.Bullish {
		return price < fvg.End
	}
	return price > fvg.Start
}

// stopLoss sits at the far side of the gap from the trade.
func stopLoss(fvg domain.FairValueGap) float64 {
	if fvg.Direction == domain.Bullish {
		return fvg.End
	}
	return fvg.Start
}

func (v *Validator) confirmingMSB(fvg domain.FairValueGap, side domain.OrderSide, idx int, price float64, msbs []domain.MarketStructureBreak) (domain.MarketStructureBreak, bool) {
	want := domain.DirectionOf(side)
	buffer := v.cfg.MSBBufferPct * price
	lo, hi := fvg.Start-buffer, fvg.End+buffer
	for _, m := range msbs {
		if m.Direction != want {
			continue
		}
		if d := m.Index - idx; d < -v.cfg.MSBWindow || d > v.cfg.MSBWindow {
			continue
		}
		if m.BrokenLevel >= lo && m.BrokenLevel <= hi {
			return m, true
		}
	}
	return domain.MarketStructureBreak{}, false
}

func (v *Validator) confluences(ltf []domain.Candle, idx int, msb domain.MarketStructureBreak) []string {
	var out []string
	if VolumeSpike(ltf, idx, v.cfg.VolumeWindow, v.cfg.VolumeFactor) {
		out = append(out, ConfluenceVolumeSpike)
	}
	if InSession(ltf[idx].Timestamp, v.cfg.Sessions) {
		out = append(out, ConfluenceSession)
	}
	if OrderBlockBefore(ltf, msb.Index, msb.Direction, v.cfg.OrderBlockLookback, v.cfg.OrderBlockBodyRatio) {
		out = append(out, ConfluenceOrderBlock)
	}
	return out
}

func nearestPool(pools []*domain.LiquidityPool, typ domain.PoolType, price float64) *domain.LiquidityPool {
	var best *domain.LiquidityPool
	bestDist := math.Inf(1)
	for _, p := range pools {
		if p == nil || p.Tapped || p.Type != typ {
			continue
		}
		if d := math.Abs(p.Level - price); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}
