package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fvgTrader/internal/pattern"
	"fvgTrader/internal/signal"
)

// StrategyParams are the detection and validation thresholds that may be
// overridden from a YAML file. Keys left out of the file keep their defaults.
type StrategyParams struct {
	ATRPeriod           int     `yaml:"atr_period"`
	ATRMultiplier       float64 `yaml:"atr_multiplier"`
	MinPctPrice         float64 `yaml:"min_pct_price"`
	SwingOrder          int     `yaml:"swing_order"`
	LiquidityTolerance  float64 `yaml:"liquidity_tolerance"`
	MSBWindow           int     `yaml:"msb_window"`
	MSBBufferPct        float64 `yaml:"msb_buffer_pct"`
	VolumeWindow        int     `yaml:"volume_window"`
	VolumeFactor        float64 `yaml:"volume_factor"`
	OrderBlockLookback  int     `yaml:"order_block_lookback"`
	OrderBlockBodyRatio float64 `yaml:"order_block_body_ratio"`
	MinRR               float64 `yaml:"min_rr"`
	MaxRRCap            float64 `yaml:"max_rr_cap"`
}

// DefaultStrategyParams returns the built-in thresholds.
func DefaultStrategyParams() StrategyParams {
	fvg := pattern.DefaultFVGConfig()
	liq := pattern.DefaultLiquidityConfig()
	sig := signal.DefaultConfig()
	return StrategyParams{
		ATRPeriod:           fvg.ATRPeriod,
		ATRMultiplier:       fvg.ATRMultiplier,
		MinPctPrice:         fvg.MinPctPrice,
		SwingOrder:          liq.SwingOrder,
		LiquidityTolerance:  liq.Tolerance,
		MSBWindow:           sig.MSBWindow,
		MSBBufferPct:        sig.MSBBufferPct,
		VolumeWindow:        sig.VolumeWindow,
		VolumeFactor:        sig.VolumeFactor,
		OrderBlockLookback:  sig.OrderBlockLookback,
		OrderBlockBodyRatio: sig.OrderBlockBodyRatio,
		MinRR:               sig.MinRR,
		MaxRRCap:            sig.MaxRRCap,
	}
}

// LoadStrategyParams reads overrides from a YAML file on top of the defaults.
func LoadStrategyParams(path string) (StrategyParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyParams{}, fmt.Errorf("read strategy params %s: %w", path, err)
	}
	params, err := ParseStrategyParams(data)
	if err != nil {
		return StrategyParams{}, fmt.Errorf("strategy params %s: %w", path, err)
	}
	return params, nil
}

// ParseStrategyParams decodes YAML overrides on top of the defaults.
// Unknown keys are rejected.
func ParseStrategyParams(data []byte) (StrategyParams, error) {
	params := DefaultStrategyParams()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		return StrategyParams{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := params.Validate(); err != nil {
		return StrategyParams{}, err
	}
	return params, nil
}

// Validate checks that every threshold is usable.
func (p StrategyParams) Validate() error {
	var errs []string
	if p.ATRPeriod <= 0 {
		errs = append(errs, "atr_period must be positive")
	}
	if p.ATRMultiplier < 0 || p.MinPctPrice < 0 {
		errs = append(errs, "atr_multiplier and min_pct_price cannot be negative")
	}
	if p.SwingOrder <= 0 {
		errs = append(errs, "swing_order must be positive")
	}
	if p.LiquidityTolerance < 0 {
		errs = append(errs, "liquidity_tolerance cannot be negative")
	}
	if p.MSBWindow < 0 || p.OrderBlockLookback < 0 {
		errs = append(errs, "msb_window and order_block_lookback cannot be negative")
	}
	if p.VolumeWindow <= 0 {
		errs = append(errs, "volume_window must be positive")
	}
	if p.MinRR <= 0 || p.MaxRRCap < p.MinRR {
		errs = append(errs, "need 0 < min_rr <= max_rr_cap")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid strategy params: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FVGConfig returns the gap detection thresholds.
func (p StrategyParams) FVGConfig() pattern.FVGConfig {
	return pattern.FVGConfig{ATRPeriod: p.ATRPeriod, ATRMultiplier: p.ATRMultiplier, MinPctPrice: p.MinPctPrice}
}

// LiquidityConfig returns the pool detection settings.
func (p StrategyParams) LiquidityConfig() pattern.LiquidityConfig {
	return pattern.LiquidityConfig{SwingOrder: p.SwingOrder, Tolerance: p.LiquidityTolerance}
}

// SignalConfig returns the validator thresholds with the default sessions.
func (p StrategyParams) SignalConfig() signal.Config {
	cfg := signal.DefaultConfig()
	cfg.MSBWindow = p.MSBWindow
	cfg.MSBBufferPct = p.MSBBufferPct
	cfg.VolumeWindow = p.VolumeWindow
	cfg.VolumeFactor = p.VolumeFactor
	cfg.OrderBlockLookback = p.OrderBlockLookback
	cfg.OrderBlockBodyRatio = p.OrderBlockBodyRatio
	cfg.MinRR = p.MinRR
	cfg.MaxRRCap = p.MaxRRCap
	return cfg
}
