package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/adapters/membus"
	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/monitor"
	"fvgTrader/internal/ports"
)

// fixedPrices returns the same close for every symbol.
type fixedPrices float64

func (p fixedPrices) LatestClose(ctx context.Context, symbol string) (float64, time.Time, error) {
	return float64(p), fillTime, nil
}

func filled(id string) message.OrderFilled {
	return message.OrderFilled{
		ExecutionID: id,
		SignalID:    5,
		Symbol:      "ETHUSDT",
		Side:        domain.Sell,
		FillPrice:   107,
		Quantity:    2,
		Stop:        110,
		TakeProfit:  101,
		FilledAt:    fillTime,
	}
}

func newTestTracker(t *testing.T, store *memStore, bus ports.EventBus, price float64) *Tracker {
	t.Helper()
	mon, err := monitor.New(store, fixedPrices(price), &mockLogger{}, nil, time.Minute)
	require.NoError(t, err)
	tr, err := NewTracker(store, mon, bus, &mockLogger{})
	require.NoError(t, err)
	return tr
}

func TestTracker_OpensPositionOnce(t *testing.T) {
	store := newMemStore()
	tr := newTestTracker(t, store, membus.New(), 107)
	ctx := context.Background()

	require.NoError(t, tr.HandleOrderFilled(ctx, filled("exec-1")))
	require.NoError(t, tr.HandleOrderFilled(ctx, filled("exec-1")))

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	pos := open[0]
	assert.Equal(t, "exec-1", pos.ExecutionID)
	assert.Equal(t, int64(5), pos.SignalID)
	assert.Equal(t, domain.Sell, pos.Side)
	assert.Equal(t, 107.0, pos.EntryPrice)
	assert.Equal(t, 2.0, pos.Quantity)
	assert.Equal(t, 110.0, pos.StopLoss)
	assert.Equal(t, 101.0, pos.TakeProfit)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.True(t, fillTime.Equal(pos.OpenedAt))
}

func TestTracker_PublishesMonitorCloses(t *testing.T) {
	store := newMemStore()
	bus := membus.New()
	// 100 is below the 101 take profit of a short.
	tr := newTestTracker(t, store, bus, 100)
	ctx := context.Background()
	require.NoError(t, tr.HandleOrderFilled(ctx, filled("exec-1")))

	closed, err := tr.monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	entries := bus.Entries(message.StreamPositionsClosed)
	require.Len(t, entries, 1)
	msg, err := message.Decode(entries[0])
	require.NoError(t, err)
	pc := msg.(message.PositionClosed)
	assert.Equal(t, "exec-1", pc.ExecutionID)
	assert.Equal(t, "ETHUSDT", pc.Symbol)
	assert.Equal(t, domain.CloseReasonTakeProfit, pc.Reason)
	assert.Equal(t, 100.0, pc.ExitPrice)
	assert.InDelta(t, 14.0, pc.PnL, 1e-9)

	// Already closed: the next check publishes nothing.
	_, err = tr.monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Len(message.StreamPositionsClosed))
}

func TestTracker_RepublishesCloseAfterPublishFailure(t *testing.T) {
	store := newMemStore()
	bus := &flakyBus{Bus: membus.New()}
	// 111 is above the 110 stop of a short.
	tr := newTestTracker(t, store, bus, 111)
	ctx := context.Background()
	require.NoError(t, tr.HandleOrderFilled(ctx, filled("exec-1")))

	bus.failures = 1
	_, err := tr.monitor.CheckOnce(ctx)
	require.NoError(t, err)
	pos, err := store.GetPosition(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, pos.Status)
	assert.Equal(t, 0, bus.Len(message.StreamPositionsClosed))

	// The bus is back: the committed close is announced on the next pass.
	_, err = tr.monitor.CheckOnce(ctx)
	require.NoError(t, err)
	entries := bus.Entries(message.StreamPositionsClosed)
	require.Len(t, entries, 1)
	msg, err := message.Decode(entries[0])
	require.NoError(t, err)
	pc := msg.(message.PositionClosed)
	assert.Equal(t, "exec-1", pc.ExecutionID)
	assert.Equal(t, domain.CloseReasonStopLoss, pc.Reason)
	assert.Equal(t, 111.0, pc.ExitPrice)
	assert.InDelta(t, -8.0, pc.PnL, 1e-9)

	_, err = tr.monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Len(message.StreamPositionsClosed))
}
