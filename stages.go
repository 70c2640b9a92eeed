package main

import (
	"fmt"

	"fvgTrader/config"
	"fvgTrader/internal/adapters/binanceclient"
	"fvgTrader/internal/adapters/logger"
	"fvgTrader/internal/adapters/sqlstore"
	"fvgTrader/internal/app"
	"fvgTrader/internal/execution"
	"fvgTrader/internal/monitor"
	"fvgTrader/internal/ports"
	fvgsignal "fvgTrader/internal/signal"
	"fvgTrader/internal/sizing"
	"fvgTrader/internal/stage"
)

// deps holds the shared infrastructure the stages are built from.
type deps struct {
	cfg       *config.Config
	logger    *logger.StdLogger
	store     *sqlstore.Store
	bus       ports.EventBus
	metrics   ports.Metrics
	scheduler *stage.Scheduler

	binance *binanceclient.Client
}

// exchange creates the Binance adapter on first use.
func (d *deps) exchange() (*binanceclient.Client, error) {
	if d.binance != nil {
		return d.binance, nil
	}
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     d.cfg.APIKey,
		SecretKey:  d.cfg.SecretKey,
		UseTestnet: d.cfg.IsTestnet,
		Logger:     d.logger.With(map[string]interface{}{"component": "binance"}),
		Screen: binanceclient.ScreenConfig{
			QuoteAsset:      d.cfg.ScreenQuoteAsset,
			MinQuoteVolume:  d.cfg.ScreenMinQuoteVolume,
			MinAbsChangePct: d.cfg.ScreenMinAbsChangePct,
			MaxSymbols:      d.cfg.ScreenMaxSymbols,
		},
	})
	if err != nil {
		return nil, err
	}
	d.binance = client
	return client, nil
}

func (d *deps) retryPolicy() stage.RetryPolicy {
	p := stage.DefaultRetryPolicy(d.metrics)
	p.MaxAttempts = d.cfg.RetryMaxAttempts
	p.Min = d.cfg.RetryMinDelay
	p.Max = d.cfg.RetryMaxDelay
	return p
}

// buildStage wires one stage by name.
func buildStage(name string, d *deps) (app.Stage, error) {
	cfg := d.cfg
	log := d.logger.With(map[string]interface{}{"stage": name})

	switch name {
	case config.StageScreener:
		var universe ports.UniverseProvider
		var filter ports.ScreeningFilter
		if len(cfg.StaticSymbols) == 0 {
			client, err := d.exchange()
			if err != nil {
				return nil, err
			}
			universe, filter = client, client
		}
		return app.NewScreener(universe, filter, d.bus, log, app.ScreenerConfig{
			StaticSymbols: cfg.StaticSymbols,
			Interval:      cfg.ScreenInterval,
		})

	case config.StageCollector:
		client, err := d.exchange()
		if err != nil {
			return nil, err
		}
		return app.NewCollector(client, d.store, d.bus, d.scheduler, d.scheduler.NewLimiter(int64(cfg.StageConcurrency)), d.retryPolicy(), log, app.CollectorConfig{
			Series: []app.Series{
				{Timeframe: cfg.HTFTimeframe, Lookback: cfg.HTFLookback},
				{Timeframe: cfg.LTFTimeframe, Lookback: cfg.LTFLookback},
			},
			Interval: cfg.FetchInterval,
		})

	case config.StageAnalysis:
		validator, err := fvgsignal.New(cfg.Strategy.SignalConfig())
		if err != nil {
			return nil, err
		}
		return app.NewAnalysis(d.store, d.store, validator, d.bus, log, d.metrics, app.AnalysisConfig{
			HTF:         cfg.HTFTimeframe,
			LTF:         cfg.LTFTimeframe,
			HTFLookback: cfg.HTFLookback,
			LTFLookback: cfg.LTFLookback,
			FVG:         cfg.Strategy.FVGConfig(),
			Liquidity:   cfg.Strategy.LiquidityConfig(),
			FVGExpiry:   cfg.FVGExpiry,
			SweepEvery:  cfg.ExpirySweepInterval,
		})

	case config.StagePortfolio:
		engine, err := sizing.New(sizing.Config{
			Mode:                cfg.SizingMode,
			FixedNotionalUSD:    cfg.FixedNotionalUSD,
			AccountBalance:      cfg.AccountBalance,
			MaxRiskPct:          cfg.MaxRiskPct,
			Precision:           int32(cfg.QtyPrecision),
			MinQtyCrypto:        cfg.MinQtyCrypto,
			MinQtyEquity:        cfg.MinQtyEquity,
			CryptoQuoteSuffixes: cfg.CryptoQuoteSuffixes,
		})
		if err != nil {
			return nil, err
		}
		return app.NewPortfolio(d.store, engine, d.bus, log, d.metrics)

	case config.StageExecution:
		return app.NewExecution(execution.NewSimulator(log), d.bus, log)

	case config.StageTracker:
		mon, err := monitor.New(d.store, d.store, log, d.metrics, cfg.MonitorInterval)
		if err != nil {
			return nil, err
		}
		return app.NewTracker(d.store, mon, d.bus, log)

	case config.StageJournal:
		return app.NewJournal(d.store, d.store, d.bus, log)

	case config.StagePerformance:
		return app.NewPerformance(d.store, log, d.metrics, cfg.PerformanceInterval, cfg.AccountBalance)
	}
	return nil, fmt.Errorf("unknown stage %q", name)
}
