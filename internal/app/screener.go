package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// DefaultScreenInterval is how often the universe is screened.
const DefaultScreenInterval = 4 * time.Hour

// Screener publishes the symbols worth collecting.
type Screener struct {
	universe ports.UniverseProvider
	filter   ports.ScreeningFilter
	bus      ports.EventBus
	logger   ports.Logger
	static   []string
	interval time.Duration
	now      func() time.Time
}

// ScreenerConfig configures the screener.
type ScreenerConfig struct {
	// StaticSymbols bypasses the universe provider and the filter.
	StaticSymbols []string
	Interval      time.Duration
}

// NewScreener creates the screener stage. universe and filter may be nil only
// when static symbols are configured.
func NewScreener(universe ports.UniverseProvider, filter ports.ScreeningFilter, bus ports.EventBus, logger ports.Logger, cfg ScreenerConfig) (*Screener, error) {
	if bus == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Screener")
	}
	if len(cfg.StaticSymbols) == 0 && (universe == nil || filter == nil) {
		return nil, fmt.Errorf("screener needs a universe provider and a filter, or static symbols")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScreenInterval
	}
	return &Screener{
		universe: universe,
		filter:   filter,
		bus:      bus,
		logger:   logger,
		static:   cfg.StaticSymbols,
		interval: cfg.Interval,
		now:      utcNow,
	}, nil
}

// Register is a no-op: the screener consumes no stream.
func (s *Screener) Register(*stage.Runner) {}

// Run screens immediately and then every interval.
func (s *Screener) Run(ctx context.Context) error {
	return every(ctx, s.interval, s.logger, "Screener", func(ctx context.Context) error {
		_, err := s.ScreenOnce(ctx)
		return err
	})
}

// ScreenOnce selects symbols and publishes them. An empty selection is
// logged and not published.
func (s *Screener) ScreenOnce(ctx context.Context) ([]string, error) {
	op := "ScreenOnce"
	symbols, err := s.selectSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(symbols) == 0 {
		s.logger.Warn(ctx, op+": no symbols passed screening")
		return symbols, nil
	}

	msg := message.AssetsScreened{Symbols: symbols, ScreenedAt: s.now()}
	if _, err := message.Publish(ctx, s.bus, msg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info(ctx, op+": assets screened", map[string]interface{}{"count": len(symbols), "symbols": symbols})
	return symbols, nil
}

func (s *Screener) selectSymbols(ctx context.Context) ([]string, error) {
	if len(s.static) > 0 {
		out := append([]string(nil), s.static...)
		sort.Strings(out)
		return out, nil
	}
	universe, err := s.universe.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	selected, err := s.filter.Filter(ctx, universe)
	if err != nil {
		return nil, fmt.Errorf("filter symbols: %w", err)
	}
	return selected, nil
}
