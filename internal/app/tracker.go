package app

import (
	"context"
	"fmt"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/monitor"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// Tracker opens positions from fills and publishes the monitor's closes.
type Tracker struct {
	positions ports.PositionStore
	monitor   *monitor.Monitor
	bus       ports.EventBus
	logger    ports.Logger
}

// NewTracker creates the tracker stage and takes over mon's close callback.
func NewTracker(positions ports.PositionStore, mon *monitor.Monitor, bus ports.EventBus, logger ports.Logger) (*Tracker, error) {
	if positions == nil || mon == nil || bus == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Tracker")
	}
	t := &Tracker{positions: positions, monitor: mon, bus: bus, logger: logger}
	mon.OnClose = t.publishClosed
	return t, nil
}

// Register subscribes the stage to fills.
func (t *Tracker) Register(r *stage.Runner) {
	r.Handle(message.StreamOrdersFilled, t.HandleOrderFilled)
}

// Run drives the position monitor.
func (t *Tracker) Run(ctx context.Context) error {
	return t.monitor.Run(ctx)
}

// HandleOrderFilled opens the position. A repeated execution id is ignored.
func (t *Tracker) HandleOrderFilled(ctx context.Context, msg message.Message) error {
	m, ok := msg.(message.OrderFilled)
	if !ok {
		return unexpected(msg, message.TypeOrderFilled)
	}
	pos := &domain.Position{
		ExecutionID: m.ExecutionID,
		SignalID:    m.SignalID,
		Symbol:      m.Symbol,
		Side:        m.Side,
		EntryPrice:  m.FillPrice,
		Quantity:    m.Quantity,
		StopLoss:    m.Stop,
		TakeProfit:  m.TakeProfit,
		Status:      domain.StatusOpen,
		OpenedAt:    m.FilledAt,
	}
	created, err := t.positions.OpenPosition(ctx, pos)
	if err != nil {
		return fmt.Errorf("open position %s: %w", m.ExecutionID, err)
	}
	fields := map[string]interface{}{"executionID": m.ExecutionID, "symbol": m.Symbol, "side": m.Side}
	if !created {
		t.logger.Debug(ctx, "Tracker: duplicate fill ignored", fields)
		return nil
	}
	t.logger.Info(ctx, "Tracker: position opened", fields)
	return nil
}

func (t *Tracker) publishClosed(ctx context.Context, pos *domain.Position) error {
	msg := message.PositionClosed{
		ExecutionID: pos.ExecutionID,
		Symbol:      pos.Symbol,
		Reason:      pos.CloseReason,
		ExitPrice:   pos.ExitPrice,
		PnL:         pos.PnL,
		ClosedAt:    pos.ClosedAt,
	}
	if _, err := message.Publish(ctx, t.bus, msg); err != nil {
		return fmt.Errorf("publish close of %s: %w", pos.ExecutionID, err)
	}
	return nil
}
