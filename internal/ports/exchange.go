package ports

import (
	"context"
	"time"

	"fvgTrader/internal/domain"
)

// CandleSource fetches historical candles from an external market data provider.
type CandleSource interface {
	// FetchCandles returns closed candles with open time in [start, end], oldest first.
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error)
}

// UniverseProvider lists the tradable symbols.
type UniverseProvider interface {
	ListSymbols(ctx context.Context) ([]string, error)
}

// ScreeningFilter narrows a symbol list to those meeting liquidity and
// volatility thresholds.
type ScreeningFilter interface {
	Filter(ctx context.Context, symbols []string) ([]string, error)
}

// Executor turns a sized order into a fill. The simulator is the default
// implementation; a broker adapter would satisfy the same interface.
type Executor interface {
	Execute(ctx context.Context, order domain.Order) (domain.Fill, error)
}
