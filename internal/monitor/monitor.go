// Package monitor watches open positions and closes them when the latest
// price crosses the stop loss or the take profit.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// DefaultInterval is how often open positions are checked.
const DefaultInterval = 60 * time.Second

// PriceSource supplies the latest known price of a symbol.
type PriceSource interface {
	LatestClose(ctx context.Context, symbol string) (float64, time.Time, error)
}

// CloseHandler is notified for every position the monitor closed. A close
// is retried on later checks until the handler succeeds, so it may see the
// same position more than once.
type CloseHandler func(ctx context.Context, pos *domain.Position) error

// Monitor evaluates open positions on a fixed interval.
type Monitor struct {
	positions ports.PositionStore
	prices    PriceSource
	logger    ports.Logger
	metrics   ports.Metrics
	interval  time.Duration
	now       func() time.Time

	// OnClose runs after a close was committed, and again on later checks
	// until it returns nil.
	OnClose CloseHandler
}

// New creates a position monitor. A non-positive interval uses DefaultInterval.
func New(positions ports.PositionStore, prices PriceSource, logger ports.Logger, metrics ports.Metrics, interval time.Duration) (*Monitor, error) {
	if positions == nil || prices == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Monitor")
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		positions: positions,
		prices:    prices,
		logger:    logger,
		metrics:   metrics,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run checks positions immediately and then on every tick until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info(ctx, "Position monitor started", map[string]interface{}{"interval": m.interval.String()})
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.CheckOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error(ctx, err, "Position check failed")
		}
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "Position monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// CheckOnce retries close announcements that failed before, then evaluates
// every open position against its latest price and returns the number of
// positions closed. A failure on one position is logged and does not stop
// the others.
func (m *Monitor) CheckOnce(ctx context.Context) (int, error) {
	op := "CheckOnce"
	m.announceOutstanding(ctx)

	open, err := m.positions.OpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to list open positions: %w", op, err)
	}
	m.metrics.SetGauge("open_positions", float64(len(open)), nil)

	closed := 0
	for _, pos := range open {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		ok, err := m.check(ctx, pos)
		if err != nil {
			m.logger.Error(ctx, err, op+": Failed to check position", map[string]interface{}{
				"execution_id": pos.ExecutionID,
				"symbol":       pos.Symbol,
			})
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

func (m *Monitor) check(ctx context.Context, pos *domain.Position) (bool, error) {
	price, _, err := m.prices.LatestClose(ctx, pos.Symbol)
	if errors.Is(err, ports.ErrNotFound) {
		m.logger.Debug(ctx, "No price yet for position", map[string]interface{}{"symbol": pos.Symbol})
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("latest price for %s: %w", pos.Symbol, err)
	}

	reason, hit := Evaluate(pos, price)
	if !hit {
		return false, nil
	}

	pnl := PnL(pos.Side, pos.EntryPrice, price, pos.Quantity)
	closedAt := m.now()
	applied, err := m.positions.ClosePosition(ctx, pos.ExecutionID, price, pnl, reason, closedAt)
	if err != nil {
		return false, fmt.Errorf("close position %s: %w", pos.ExecutionID, err)
	}
	if !applied {
		// Closed elsewhere since it was listed.
		return false, nil
	}

	pos.Status = domain.StatusClosed
	pos.ExitPrice = price
	pos.PnL = pnl
	pos.CloseReason = reason
	pos.ClosedAt = closedAt

	m.metrics.IncCounter("positions_closed_total", map[string]string{"reason": string(reason)})
	m.logger.Info(ctx, "Position closed", map[string]interface{}{
		"execution_id": pos.ExecutionID,
		"symbol":       pos.Symbol,
		"reason":       reason,
		"exit_price":   price,
		"pnl":          pnl,
	})

	if err := m.announce(ctx, pos); err != nil {
		return true, err
	}
	return true, nil
}

// announceOutstanding hands closes that were committed but never announced
// to OnClose again.
func (m *Monitor) announceOutstanding(ctx context.Context) {
	if m.OnClose == nil {
		return
	}
	closed, err := m.positions.UnannouncedCloses(ctx)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to list unannounced closes")
		return
	}
	for _, pos := range closed {
		if ctx.Err() != nil {
			return
		}
		if err := m.announce(ctx, pos); err != nil {
			m.logger.Error(ctx, err, "Close announcement failed again", map[string]interface{}{
				"execution_id": pos.ExecutionID,
				"symbol":       pos.Symbol,
			})
			continue
		}
		m.logger.Info(ctx, "Close announced after retry", map[string]interface{}{"execution_id": pos.ExecutionID})
	}
}

// announce runs OnClose and records the announcement.
func (m *Monitor) announce(ctx context.Context, pos *domain.Position) error {
	if m.OnClose == nil {
		return nil
	}
	if err := m.OnClose(ctx, pos); err != nil {
		return fmt.Errorf("close handler for %s: %w", pos.ExecutionID, err)
	}
	if _, err := m.positions.MarkCloseAnnounced(ctx, pos.ExecutionID); err != nil {
		return fmt.Errorf("mark close of %s announced: %w", pos.ExecutionID, err)
	}
	return nil
}

// Evaluate reports whether price triggers the position's stop loss or take
// profit. The stop is checked first.
func Evaluate(pos *domain.Position, price float64) (domain.CloseReason, bool) {
	if pos.Side == domain.Sell {
		switch {
		case price >= pos.StopLoss:
			return domain.CloseReasonStopLoss, true
		case price <= pos.TakeProfit:
			return domain.CloseReasonTakeProfit, true
		}
		return "", false
	}
	switch {
	case price <= pos.StopLoss:
		return domain.CloseReasonStopLoss, true
	case price >= pos.TakeProfit:
		return domain.CloseReasonTakeProfit, true
	}
	return "", false
}

// PnL returns the realised profit of closing qty at exit.
func PnL(side domain.OrderSide, entry, exit, qty float64) float64 {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if side == domain.Sell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(qty)).InexactFloat64()
}
