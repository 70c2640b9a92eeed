package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/adapters/membus"
	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
)

var archiveTime = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

func closedPosition(t *testing.T, store *memStore, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := store.OpenPosition(ctx, &domain.Position{
		ExecutionID: id, SignalID: 5, Symbol: "ETHUSDT", Side: domain.Sell,
		EntryPrice: 107, Quantity: 2, StopLoss: 110, TakeProfit: 101,
		Status: domain.StatusOpen, OpenedAt: fillTime,
	})
	require.NoError(t, err)
	_, err = store.ClosePosition(ctx, id, 100, 14, domain.CloseReasonTakeProfit, fillTime.Add(30*time.Minute))
	require.NoError(t, err)
}

func newTestJournal(t *testing.T, store *memStore, bus *membus.Bus) *Journal {
	t.Helper()
	j, err := NewJournal(store, store, bus, &mockLogger{})
	require.NoError(t, err)
	j.now = func() time.Time { return archiveTime }
	return j
}

func TestJournal_ArchivesClosedPosition(t *testing.T) {
	store := newMemStore()
	bus := membus.New()
	closedPosition(t, store, "exec-1")
	j := newTestJournal(t, store, bus)
	ctx := context.Background()

	closed := message.PositionClosed{ExecutionID: "exec-1", Symbol: "ETHUSDT"}
	require.NoError(t, j.HandlePositionClosed(ctx, closed))
	// Redelivery archives nothing new but announces again.
	require.NoError(t, j.HandlePositionClosed(ctx, closed))

	trades, err := store.ClosedTrades(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	e := trades[0]
	assert.Equal(t, "exec-1", e.ExecutionID)
	assert.Equal(t, 14.0, e.PnL)
	assert.Equal(t, 100.0, e.ExitPrice)
	assert.Equal(t, domain.CloseReasonTakeProfit, e.CloseReason)
	assert.Equal(t, archiveTime, e.ArchivedAt)

	entries := bus.Entries(message.StreamPositionsArchived)
	require.Len(t, entries, 2)
	msg, err := message.Decode(entries[0])
	require.NoError(t, err)
	pa := msg.(message.PositionArchived)
	assert.Equal(t, "exec-1", pa.ExecutionID)
	assert.Equal(t, 14.0, pa.PnL)
	assert.True(t, archiveTime.Equal(pa.ArchivedAt))
}

func TestJournal_RejectsUnknownOrOpenPositions(t *testing.T) {
	store := newMemStore()
	bus := membus.New()
	j := newTestJournal(t, store, bus)
	ctx := context.Background()

	_, err := store.OpenPosition(ctx, &domain.Position{ExecutionID: "open-1", Symbol: "ETHUSDT", Status: domain.StatusOpen})
	require.NoError(t, err)

	for _, id := range []string{"missing", "open-1"} {
		err := j.HandlePositionClosed(ctx, message.PositionClosed{ExecutionID: id})
		var verr *message.ValidationError
		assert.True(t, errors.As(err, &verr), id)
	}
	assert.Equal(t, 0, bus.Len(message.StreamPositionsArchived))
}

func TestJournal_SinkErrorIsReturned(t *testing.T) {
	store := newMemStore()
	closedPosition(t, store, "exec-1")
	boom := errors.New("disk full")
	store.journalErr = boom
	bus := membus.New()
	j := newTestJournal(t, store, bus)

	err := j.HandlePositionClosed(context.Background(), message.PositionClosed{ExecutionID: "exec-1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, bus.Len(message.StreamPositionsArchived))
}
