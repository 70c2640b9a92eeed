// Package analytics rolls archived trades up into performance figures.
package analytics

import (
	"math"
	"sort"
	"time"

	"fvgTrader/internal/domain"
)

// Report holds performance metrics for a set of closed trades.
type Report struct {
	// Basic Metrics
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // 0..1
	TotalPnL      float64
	GrossProfit   float64
	GrossLoss     float64 // <= 0
	ProfitFactor  float64 // +Inf when there are wins and no losses
	AverageWin    float64
	AverageLoss   float64
	Expectancy    float64
	FinalBalance  float64
	ReturnOnCap   float64

	// Advanced Metrics
	MaxDrawdown          float64 // fraction of the running peak
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHold          time.Duration
	ByReason             map[domain.CloseReason]int
	BySymbol             map[string]SymbolStats
	MonthlyReturns       map[string]float64
	EquityCurve          []EquityPoint
}

// SymbolStats is the per-symbol slice of a report.
type SymbolStats struct {
	Trades int
	Wins   int
	PnL    float64
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// Analyze computes a report from closed trades, replayed in close order
// against initialBalance. The input slice is not modified.
func Analyze(trades []domain.JournalEntry, initialBalance float64) *Report {
	r := &Report{
		FinalBalance:   initialBalance,
		ByReason:       make(map[domain.CloseReason]int),
		BySymbol:       make(map[string]SymbolStats),
		MonthlyReturns: make(map[string]float64),
		EquityCurve:    make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return r
	}

	ordered := make([]domain.JournalEntry, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ClosedAt.Before(ordered[j].ClosedAt)
	})

	balance := initialBalance
	peak := initialBalance
	var wins, losses, maxWins, maxLosses int
	var hold time.Duration

	for _, t := range ordered {
		r.TotalTrades++
		sym := r.BySymbol[t.Symbol]
		sym.Trades++
		sym.PnL += t.PnL

		// A flat trade counts as a loss.
		if t.PnL > 0 {
			r.WinningTrades++
			r.GrossProfit += t.PnL
			sym.Wins++
			wins++
			losses = 0
		} else {
			r.LosingTrades++
			r.GrossLoss += t.PnL
			losses++
			wins = 0
		}
		maxWins = max(maxWins, wins)
		maxLosses = max(maxLosses, losses)
		r.BySymbol[t.Symbol] = sym
		r.ByReason[t.CloseReason]++
		r.MonthlyReturns[t.ClosedAt.UTC().Format("2006-01")] += t.PnL
		hold += t.ClosedAt.Sub(t.OpenedAt)

		balance += t.PnL
		if balance > peak {
			peak = balance
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - balance) / peak
		}
		r.MaxDrawdown = math.Max(r.MaxDrawdown, drawdown)
		r.EquityCurve = append(r.EquityCurve, EquityPoint{Time: t.ClosedAt, Value: balance, Drawdown: drawdown})
	}

	r.TotalPnL = r.GrossProfit + r.GrossLoss
	r.FinalBalance = balance
	r.MaxConsecutiveWins = maxWins
	r.MaxConsecutiveLosses = maxLosses
	r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades)
	r.AverageHold = hold / time.Duration(r.TotalTrades)
	if r.WinningTrades > 0 {
		r.AverageWin = r.GrossProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = r.GrossLoss / float64(r.LosingTrades)
	}
	switch {
	case r.GrossLoss < 0:
		r.ProfitFactor = r.GrossProfit / -r.GrossLoss
	case r.GrossProfit > 0:
		r.ProfitFactor = math.Inf(1)
	}
	r.Expectancy = r.WinRate*r.AverageWin + (1-r.WinRate)*r.AverageLoss
	if initialBalance != 0 {
		r.ReturnOnCap = (r.FinalBalance - initialBalance) / initialBalance
	}
	return r
}

// Monthly returns the monthly PnL sorted by month.
func (r *Report) Monthly() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(r.MonthlyReturns))
	for month, pnl := range r.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: pnl})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// Fields flattens the headline figures for structured logging.
func (r *Report) Fields() map[string]interface{} {
	return map[string]interface{}{
		"trades":       r.TotalTrades,
		"winRate":      r.WinRate,
		"totalPnL":     r.TotalPnL,
		"profitFactor": r.ProfitFactor,
		"expectancy":   r.Expectancy,
		"maxDrawdown":  r.MaxDrawdown,
		"finalBalance": r.FinalBalance,
	}
}
