// Package execution turns sized orders into fills. Only a simulated executor
// exists; it fills every order immediately at its entry price.
package execution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// executionNamespace scopes the name-based execution ids.
var executionNamespace = uuid.MustParse("6f1c2a7e-9b4d-4c1e-8a53-2f0d7b9e4c61")

// ExecutionID derives the execution id of a signal's order. Re-executing
// the same signal yields the same id, so a redelivered order cannot open a
// second position.
func ExecutionID(signalID int64) string {
	return uuid.NewSHA1(executionNamespace, []byte(strconv.FormatInt(signalID, 10))).String()
}

// Simulator implements ports.Executor without touching a broker.
type Simulator struct {
	logger ports.Logger
	now    func() time.Time
	newID  func(order domain.Order) string
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock overrides the fill timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithIDGenerator overrides execution id generation.
func WithIDGenerator(newID func(order domain.Order) string) Option {
	return func(s *Simulator) { s.newID = newID }
}

// NewSimulator creates a simulated executor.
func NewSimulator(logger ports.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func(order domain.Order) string { return ExecutionID(order.SignalID) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute fills the full quantity at the order's entry price.
func (s *Simulator) Execute(ctx context.Context, order domain.Order) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
	}
	if order.SignalID <= 0 || order.Symbol == "" || !order.Side.Valid() {
		return domain.Fill{}, fmt.Errorf("%w: order needs a signal, a symbol and a side", ports.ErrInvalidRequest)
	}
	if order.EntryPrice <= 0 || order.Quantity <= 0 {
		return domain.Fill{}, fmt.Errorf("%w: order price and quantity must be positive (price=%.8f qty=%.8f)",
			ports.ErrInvalidRequest, order.EntryPrice, order.Quantity)
	}

	fill := domain.Fill{
		ExecutionID: s.newID(order),
		Price:       order.EntryPrice,
		Quantity:    order.Quantity,
		FilledAt:    s.now(),
	}
	s.logger.Info(ctx, "Simulated fill", map[string]interface{}{
		"execution_id": fill.ExecutionID,
		"signal_id":    order.SignalID,
		"symbol":       order.Symbol,
		"side":         order.Side,
		"price":        fill.Price,
		"quantity":     fill.Quantity,
	})
	return fill, nil
}
