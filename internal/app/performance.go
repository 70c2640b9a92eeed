package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"fvgTrader/internal/analytics"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// DefaultPerformanceInterval is how often the journal is rolled up.
const DefaultPerformanceInterval = time.Hour

// Performance periodically summarizes the trade journal.
type Performance struct {
	journal        ports.JournalReader
	logger         ports.Logger
	metrics        ports.Metrics
	interval       time.Duration
	initialBalance float64
}

// NewPerformance creates the performance stage.
func NewPerformance(journal ports.JournalReader, logger ports.Logger, metrics ports.Metrics, interval time.Duration, initialBalance float64) (*Performance, error) {
	if journal == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Performance")
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if interval <= 0 {
		interval = DefaultPerformanceInterval
	}
	return &Performance{journal: journal, logger: logger, metrics: metrics, interval: interval, initialBalance: initialBalance}, nil
}

// Register is a no-op: archive announcements carry nothing the report needs.
func (p *Performance) Register(*stage.Runner) {}

// Run reports immediately and then every interval.
func (p *Performance) Run(ctx context.Context) error {
	return every(ctx, p.interval, p.logger, "Performance", func(ctx context.Context) error {
		_, err := p.ReportOnce(ctx)
		return err
	})
}

// ReportOnce analyzes every archived trade, logs the summary and exports it
// as gauges.
func (p *Performance) ReportOnce(ctx context.Context) (*analytics.Report, error) {
	trades, err := p.journal.ClosedTrades(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load closed trades: %w", err)
	}
	report := analytics.Analyze(trades, p.initialBalance)
	if report.TotalTrades == 0 {
		p.logger.Info(ctx, "Performance: no closed trades yet")
	} else {
		p.logger.Info(ctx, "Performance: summary", report.Fields())
	}

	p.metrics.SetGauge("performance_trades", float64(report.TotalTrades), nil)
	p.metrics.SetGauge("performance_win_rate", report.WinRate, nil)
	p.metrics.SetGauge("performance_total_pnl", report.TotalPnL, nil)
	p.metrics.SetGauge("performance_max_drawdown", report.MaxDrawdown, nil)
	p.metrics.SetGauge("performance_expectancy", report.Expectancy, nil)
	if !math.IsInf(report.ProfitFactor, 0) {
		p.metrics.SetGauge("performance_profit_factor", report.ProfitFactor, nil)
	}
	return report, nil
}
