package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// DefaultFetchInterval is how often remembered symbols are refreshed.
const DefaultFetchInterval = 5 * time.Minute

// Series is a timeframe the collector keeps up to date.
type Series struct {
	Timeframe string
	Lookback  time.Duration // window fetched when nothing is stored yet
}

// CollectorConfig configures the collector.
type CollectorConfig struct {
	Series   []Series
	Interval time.Duration
}

// Collector keeps the candle store current for the screened symbols.
type Collector struct {
	source    ports.CandleSource
	store     ports.CandleStore
	bus       ports.EventBus
	scheduler *stage.Scheduler
	limiter   *stage.Limiter
	retry     stage.RetryPolicy
	logger    ports.Logger
	series    []Series
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	symbols []string
}

// NewCollector creates the collector stage. limiter bounds concurrent fetches
// and must belong to scheduler; it should not be the runner's own limiter.
func NewCollector(source ports.CandleSource, store ports.CandleStore, bus ports.EventBus, scheduler *stage.Scheduler, limiter *stage.Limiter, retry stage.RetryPolicy, logger ports.Logger, cfg CollectorConfig) (*Collector, error) {
	if source == nil || store == nil || bus == nil || limiter == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Collector")
	}
	if err := limiter.Check(scheduler); err != nil {
		return nil, err
	}
	if len(cfg.Series) == 0 {
		return nil, fmt.Errorf("collector needs at least one timeframe")
	}
	for _, s := range cfg.Series {
		if s.Timeframe == "" || s.Lookback <= 0 {
			return nil, fmt.Errorf("collector series needs a timeframe and a positive lookback, got %+v", s)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFetchInterval
	}
	return &Collector{
		source:    source,
		store:     store,
		bus:       bus,
		scheduler: scheduler,
		limiter:   limiter,
		retry:     retry,
		logger:    logger,
		series:    cfg.Series,
		interval:  cfg.Interval,
		now:       utcNow,
	}, nil
}

// Register subscribes the collector to screening results.
func (c *Collector) Register(r *stage.Runner) {
	r.Handle(message.StreamAssetsScreened, c.HandleAssetsScreened)
}

// Run refreshes the remembered symbols every interval.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "Collector: stopping")
			return nil
		case <-ticker.C:
			symbols := c.Symbols()
			if len(symbols) == 0 {
				continue
			}
			if err := c.CollectAll(ctx, symbols); err != nil && ctx.Err() == nil {
				c.logger.Error(ctx, err, "Collector: refresh failed")
			}
		}
	}
}

// HandleAssetsScreened remembers the symbols and collects them right away.
func (c *Collector) HandleAssetsScreened(ctx context.Context, msg message.Message) error {
	m, ok := msg.(message.AssetsScreened)
	if !ok {
		return unexpected(msg, message.TypeAssetsScreened)
	}
	symbols := append([]string(nil), m.Symbols...)
	sort.Strings(symbols)

	c.mu.Lock()
	c.symbols = symbols
	c.mu.Unlock()

	return c.CollectAll(ctx, symbols)
}

// Symbols returns the last screened symbols.
func (c *Collector) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.symbols...)
}

// CollectAll fetches every symbol × timeframe concurrently under the fetch
// limiter. A unit whose fetch exhausts its retries is skipped; a storage or
// publish failure fails the whole call.
func (c *Collector) CollectAll(ctx context.Context, symbols []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		for _, s := range c.series {
			symbol, s := symbol, s
			g.Go(func() error {
				if err := c.limiter.Acquire(gctx, c.scheduler); err != nil {
					return err
				}
				defer c.limiter.Release()
				return c.collect(gctx, symbol, s)
			})
		}
	}
	return g.Wait()
}

func (c *Collector) collect(ctx context.Context, symbol string, s Series) error {
	fields := map[string]interface{}{"symbol": symbol, "timeframe": s.Timeframe}
	end := c.now()
	start := end.Add(-s.Lookback)
	latest, ok, err := c.store.LatestCandleTime(ctx, symbol, s.Timeframe)
	if err != nil {
		return fmt.Errorf("latest candle for %s %s: %w", symbol, s.Timeframe, err)
	}
	if ok {
		start = latest.Add(time.Millisecond)
	}
	if !start.Before(end) {
		return nil
	}

	var candles []domain.Candle
	err = c.retry.Do(ctx, "fetch_candles", func(ctx context.Context) error {
		var err error
		candles, err = c.source.FetchCandles(ctx, symbol, s.Timeframe, start, end)
		if errors.Is(err, ports.ErrInvalidRequest) {
			return stage.Permanent(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, stage.ErrRetriesExhausted) || errors.Is(err, ports.ErrInvalidRequest) {
			c.logger.Error(ctx, err, "Collector: skipping series after fetch failure", fields)
			return nil
		}
		return fmt.Errorf("collect %s %s: %w", symbol, s.Timeframe, err)
	}
	if len(candles) == 0 {
		c.logger.Debug(ctx, "Collector: source returned no candles", fields)
		return nil
	}

	saved, err := c.store.SaveCandles(ctx, candles)
	if err != nil {
		return fmt.Errorf("collect %s %s: %w", symbol, s.Timeframe, err)
	}
	from, to := candles[0].Timestamp, candles[len(candles)-1].Timestamp

	fields["fetched"], fields["inserted"] = len(candles), saved
	if saved == 0 {
		c.logger.Debug(ctx, "Collector: no new candles", fields)
		return nil
	}
	msg := message.CandlesAvailable{Symbol: symbol, Timeframe: s.Timeframe, From: from, To: to, Count: saved}
	if _, err := message.Publish(ctx, c.bus, msg); err != nil {
		return fmt.Errorf("collect %s %s: %w", symbol, s.Timeframe, err)
	}
	c.logger.Info(ctx, "Collector: candles stored", fields)
	return nil
}
