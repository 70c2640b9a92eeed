package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func testOrder() domain.Order {
	return domain.Order{
		SignalID:   9,
		Symbol:     "ETHUSDT",
		Side:       domain.Buy,
		EntryPrice: 3150.25,
		StopLoss:   3100,
		TakeProfit: 3300,
		Quantity:   0.0317,
		Mode:       domain.ModeDevelopment,
	}
}

func TestSimulator_FillsAtEntryPrice(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	sim := NewSimulator(nopLogger{},
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func(domain.Order) string { return "exec-1" }),
	)

	fill, err := sim.Execute(context.Background(), testOrder())

	require.NoError(t, err)
	assert.Equal(t, "exec-1", fill.ExecutionID)
	assert.Equal(t, 3150.25, fill.Price)
	assert.Equal(t, 0.0317, fill.Quantity)
	assert.Equal(t, at, fill.FilledAt)
}

func TestSimulator_ExecutionIDFollowsSignal(t *testing.T) {
	sim := NewSimulator(nopLogger{})

	first, err := sim.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	again, err := sim.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	other := testOrder()
	other.SignalID = 10
	third, err := sim.Execute(context.Background(), other)
	require.NoError(t, err)

	assert.Len(t, first.ExecutionID, 36)
	assert.Equal(t, first.ExecutionID, again.ExecutionID, "re-executing a signal reuses its id")
	assert.Equal(t, ExecutionID(9), first.ExecutionID)
	assert.NotEqual(t, first.ExecutionID, third.ExecutionID)
	assert.False(t, first.FilledAt.IsZero())
}

func TestSimulator_RejectsInvalidOrders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *domain.Order)
	}{
		{"missing signal", func(o *domain.Order) { o.SignalID = 0 }},
		{"missing symbol", func(o *domain.Order) { o.Symbol = "" }},
		{"unknown side", func(o *domain.Order) { o.Side = "HOLD" }},
		{"zero price", func(o *domain.Order) { o.EntryPrice = 0 }},
		{"zero quantity", func(o *domain.Order) { o.Quantity = 0 }},
	}
	sim := NewSimulator(nopLogger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := testOrder()
			tt.mutate(&order)
			_, err := sim.Execute(context.Background(), order)
			assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
		})
	}
}

func TestSimulator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator(nopLogger{}).Execute(ctx, testOrder())
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}
