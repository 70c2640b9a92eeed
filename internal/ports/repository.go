package ports

import (
	"context"
	"time"

	"fvgTrader/internal/domain"
)

// CandleStore is append-only time-series access to OHLCV bars.
type CandleStore interface {
	// SaveCandles inserts candles, ignoring any that already exist for
	// (symbol, timeframe, timestamp). Returns the number of new rows.
	SaveCandles(ctx context.Context, candles []domain.Candle) (int, error)
	// CandlesSince returns candles at or after since, oldest first.
	CandlesSince(ctx context.Context, symbol, timeframe string, since time.Time) ([]domain.Candle, error)
	// LatestCandleTime returns the newest stored timestamp; ok is false when none exist.
	LatestCandleTime(ctx context.Context, symbol, timeframe string) (ts time.Time, ok bool, err error)
	// LatestClose returns the close of the newest candle of any timeframe.
	// Returns ErrNotFound when the symbol has no candles.
	LatestClose(ctx context.Context, symbol string) (float64, time.Time, error)
}

// FVGStore tracks fair value gaps through pending -> filled | expired.
type FVGStore interface {
	// SaveFVG stores a gap unless one with the same descriptor exists.
	// Returns the row id and whether a new row was created.
	SaveFVG(ctx context.Context, fvg *domain.FairValueGap) (int64, bool, error)
	// PendingFVGs returns the pending gaps for a symbol/timeframe, oldest first.
	PendingFVGs(ctx context.Context, symbol, timeframe string) ([]*domain.FairValueGap, error)
	// ExpireFVGs moves pending gaps formed before the cutoff to expired.
	ExpireFVGs(ctx context.Context, formedBefore time.Time) (int64, error)
}

// LiquidityStore tracks liquidity pools and their one-way tapped flag.
type LiquidityStore interface {
	// SaveLiquidityPool stores a pool unless an equivalent one is within the
	// level tolerance band. Returns the row id and whether it was created.
	SaveLiquidityPool(ctx context.Context, pool *domain.LiquidityPool, tolerance float64) (int64, bool, error)
	// UntappedPools returns pools that have not been tapped yet.
	UntappedPools(ctx context.Context, symbol, timeframe string) ([]*domain.LiquidityPool, error)
	// MarkPoolTapped sets tapped=true only if it is still false.
	MarkPoolTapped(ctx context.Context, id int64, tapTime time.Time) (bool, error)
}

// SignalStore owns trade signal rows.
type SignalStore interface {
	// RecordSignal atomically upserts the pending signal for the gap and
	// moves the gap from pending to filled. fvgFilled is false when the gap
	// was no longer pending.
	RecordSignal(ctx context.Context, fvgID int64, inversionTime time.Time, conf domain.Confirmation, sig *domain.TradeSignal) (signalID int64, fvgFilled bool, err error)
	// GetSignal retrieves a signal by ID. Returns nil, nil if not found.
	GetSignal(ctx context.Context, id int64) (*domain.TradeSignal, error)
	// TransitionSignal changes status only if the current status equals from.
	TransitionSignal(ctx context.Context, id int64, from, to domain.SignalStatus) (bool, error)
	// UnannouncedSignals lists pending signals that were never published.
	UnannouncedSignals(ctx context.Context, ticker, timeframe string) ([]*domain.TradeSignal, error)
	// MarkSignalAnnounced records a successful publish of the signal.
	MarkSignalAnnounced(ctx context.Context, id int64) (bool, error)
}

// PositionStore owns positions keyed by execution id, at most one per signal.
type PositionStore interface {
	// OpenPosition inserts an open position; a repeated execution id or
	// signal id is ignored.
	OpenPosition(ctx context.Context, pos *domain.Position) (bool, error)
	// GetPosition retrieves a position. Returns nil, nil if not found.
	GetPosition(ctx context.Context, executionID string) (*domain.Position, error)
	// OpenPositions lists all open positions.
	OpenPositions(ctx context.Context) ([]*domain.Position, error)
	// ClosePosition moves open -> closed; false when it was already closed.
	ClosePosition(ctx context.Context, executionID string, exitPrice, pnl float64, reason domain.CloseReason, closedAt time.Time) (bool, error)
	// UnannouncedCloses lists closed positions whose close was never published.
	UnannouncedCloses(ctx context.Context) ([]*domain.Position, error)
	// MarkCloseAnnounced records a successful publish of the close.
	MarkCloseAnnounced(ctx context.Context, executionID string) (bool, error)
}

// LifecycleStore is every persisted state machine the pipeline drives.
type LifecycleStore interface {
	FVGStore
	LiquidityStore
	SignalStore
	PositionStore
}

// JournalSink accepts closed-position records.
type JournalSink interface {
	// Archive stores the entry once per execution id.
	Archive(ctx context.Context, entry domain.JournalEntry) (bool, error)
}

// JournalReader is read by the performance aggregator.
type JournalReader interface {
	// ClosedTrades returns archived trades closed at or after since.
	ClosedTrades(ctx context.Context, since time.Time) ([]domain.JournalEntry, error)
}
