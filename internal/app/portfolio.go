package app

import (
	"context"
	"fmt"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/sizing"
	"fvgTrader/internal/stage"
)

// Portfolio sizes pending signals and forwards accepted orders.
type Portfolio struct {
	signals ports.SignalStore
	engine  *sizing.Engine
	bus     ports.EventBus
	logger  ports.Logger
	metrics ports.Metrics
}

// NewPortfolio creates the portfolio stage.
func NewPortfolio(signals ports.SignalStore, engine *sizing.Engine, bus ports.EventBus, logger ports.Logger, metrics ports.Metrics) (*Portfolio, error) {
	if signals == nil || engine == nil || bus == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Portfolio")
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Portfolio{signals: signals, engine: engine, bus: bus, logger: logger, metrics: metrics}, nil
}

// Register subscribes the stage to generated signals.
func (p *Portfolio) Register(r *stage.Runner) {
	r.Handle(message.StreamSignalsGenerated, p.HandleSignalGenerated)
}

// Run blocks until ctx is done; the portfolio has no periodic work.
func (p *Portfolio) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// HandleSignalGenerated sizes the stored signal. Only a pending signal is
// acted on, so a redelivered message is a no-op.
func (p *Portfolio) HandleSignalGenerated(ctx context.Context, msg message.Message) error {
	op := "HandleSignalGenerated"
	m, ok := msg.(message.SignalGenerated)
	if !ok {
		return unexpected(msg, message.TypeSignalGenerated)
	}
	fields := map[string]interface{}{"signalID": m.SignalID, "ticker": m.Ticker}

	sig, err := p.signals.GetSignal(ctx, m.SignalID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if sig == nil {
		return &message.ValidationError{Type: m.Type(), Field: "signal_id", Reason: "no such signal"}
	}
	if sig.Status != domain.SignalPending {
		p.logger.Debug(ctx, op+": signal already handled", mergeFields(fields, map[string]interface{}{"status": sig.Status}))
		return nil
	}

	decision := p.engine.Size(sig)
	p.metrics.IncCounter("sizing_decisions_total", map[string]string{"status": string(decision.Status)})
	if !decision.Accepted() {
		applied, err := p.signals.TransitionSignal(ctx, sig.ID, domain.SignalPending, decision.Status)
		if err != nil {
			p.fail(ctx, sig.ID, domain.SignalPending, err)
			return nil
		}
		p.logger.Info(ctx, op+": signal skipped", mergeFields(fields, map[string]interface{}{
			"status": decision.Status, "reason": decision.Reason, "applied": applied,
		}))
		return nil
	}

	applied, err := p.signals.TransitionSignal(ctx, sig.ID, domain.SignalPending, domain.SignalSentToExecution)
	if err != nil {
		p.fail(ctx, sig.ID, domain.SignalPending, err)
		return nil
	}
	if !applied {
		p.logger.Debug(ctx, op+": signal taken by another consumer", fields)
		return nil
	}

	order := decision.Order
	out := message.OrderSized{
		SignalID:   order.SignalID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Entry:      order.EntryPrice,
		Stop:       order.StopLoss,
		TakeProfit: order.TakeProfit,
		Quantity:   decision.Quantity,
		Mode:       order.Mode,
	}
	if _, err := message.Publish(ctx, p.bus, out); err != nil {
		p.fail(ctx, sig.ID, domain.SignalSentToExecution, err)
		return nil
	}
	p.logger.Info(ctx, op+": order sized", mergeFields(fields, map[string]interface{}{
		"side": order.Side, "quantity": decision.Quantity.String(), "mode": order.Mode,
	}))
	return nil
}

// fail moves the signal to failed_portfolio if it is still in from.
func (p *Portfolio) fail(ctx context.Context, signalID int64, from domain.SignalStatus, cause error) {
	fields := map[string]interface{}{"signalID": signalID}
	p.logger.Error(ctx, cause, "Portfolio: processing failed", fields)
	if _, err := p.signals.TransitionSignal(ctx, signalID, from, domain.FailedPortfolio); err != nil {
		p.logger.Error(ctx, err, "Portfolio: additionally failed to mark signal failed", fields)
	}
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
