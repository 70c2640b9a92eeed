package app

import (
	"context"
	"errors"
	"fmt"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// Execution hands sized orders to the executor and reports the fills.
type Execution struct {
	executor ports.Executor
	bus      ports.EventBus
	logger   ports.Logger
}

// NewExecution creates the execution stage.
func NewExecution(executor ports.Executor, bus ports.EventBus, logger ports.Logger) (*Execution, error) {
	if executor == nil || bus == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Execution")
	}
	return &Execution{executor: executor, bus: bus, logger: logger}, nil
}

// Register subscribes the stage to sized orders.
func (e *Execution) Register(r *stage.Runner) {
	r.Handle(message.StreamOrdersSized, e.HandleOrderSized)
}

// Run blocks until ctx is done; execution has no periodic work.
func (e *Execution) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// HandleOrderSized executes the order. An order the executor rejects as
// invalid is dropped.
func (e *Execution) HandleOrderSized(ctx context.Context, msg message.Message) error {
	m, ok := msg.(message.OrderSized)
	if !ok {
		return unexpected(msg, message.TypeOrderSized)
	}
	order := domain.Order{
		SignalID:   m.SignalID,
		Symbol:     m.Symbol,
		Side:       m.Side,
		EntryPrice: m.Entry,
		StopLoss:   m.Stop,
		TakeProfit: m.TakeProfit,
		Quantity:   m.Quantity.InexactFloat64(),
		Mode:       m.Mode,
	}

	fill, err := e.executor.Execute(ctx, order)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidRequest) {
			return &message.ValidationError{Type: m.Type(), Field: "order", Reason: err.Error()}
		}
		return fmt.Errorf("execute order for signal %d: %w", m.SignalID, err)
	}

	out := message.OrderFilled{
		ExecutionID: fill.ExecutionID,
		SignalID:    m.SignalID,
		Symbol:      m.Symbol,
		Side:        m.Side,
		FillPrice:   fill.Price,
		Quantity:    fill.Quantity,
		Stop:        m.Stop,
		TakeProfit:  m.TakeProfit,
		FilledAt:    fill.FilledAt,
	}
	if _, err := message.Publish(ctx, e.bus, out); err != nil {
		return fmt.Errorf("report fill %s: %w", fill.ExecutionID, err)
	}
	e.logger.Info(ctx, "Order executed", map[string]interface{}{
		"signalID": m.SignalID, "executionID": fill.ExecutionID, "symbol": m.Symbol,
		"side": m.Side, "price": fill.Price, "quantity": fill.Quantity,
	})
	return nil
}
