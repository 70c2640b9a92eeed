package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/adapters/membus"
	"fvgTrader/internal/adapters/metrics"
	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/sizing"
)

func newEngine(t *testing.T) *sizing.Engine {
	t.Helper()
	e, err := sizing.New(sizing.Config{
		Mode:                domain.ModeDevelopment,
		FixedNotionalUSD:    100,
		Precision:           3,
		MinQtyCrypto:        0.001,
		MinQtyEquity:        1,
		CryptoQuoteSuffixes: []string{"USDT"},
	})
	require.NoError(t, err)
	return e
}

func pendingSignal(entry float64) domain.TradeSignal {
	return domain.TradeSignal{
		Ticker:          "ETHUSDT",
		Timeframe:       "5m",
		Direction:       domain.Sell,
		FVGID:           3,
		EntryPrice:      entry,
		StopLoss:        110,
		LiquidityTarget: 101,
		RR:              2,
		Status:          domain.SignalPending,
	}
}

func generated(id int64) message.SignalGenerated {
	return message.SignalGenerated{SignalID: id, Ticker: "ETHUSDT", Side: domain.Sell}
}

func TestPortfolio_AcceptedSignalIsSized(t *testing.T) {
	store := newMemStore()
	bus := membus.New()
	m := metrics.NewMemory()
	p, err := NewPortfolio(store, newEngine(t), bus, &mockLogger{}, m)
	require.NoError(t, err)

	id := store.addSignal(pendingSignal(107))
	require.NoError(t, p.HandleSignalGenerated(context.Background(), generated(id)))

	assert.Equal(t, domain.SignalSentToExecution, store.signalStatus(id))
	entries := bus.Entries(message.StreamOrdersSized)
	require.Len(t, entries, 1)
	msg, err := message.Decode(entries[0])
	require.NoError(t, err)
	order := msg.(message.OrderSized)
	assert.Equal(t, id, order.SignalID)
	assert.Equal(t, "ETHUSDT", order.Symbol)
	assert.Equal(t, domain.Sell, order.Side)
	assert.Equal(t, 107.0, order.Entry)
	assert.Equal(t, 110.0, order.Stop)
	assert.Equal(t, 101.0, order.TakeProfit)
	assert.True(t, decimal.RequireFromString("0.934").Equal(order.Quantity), "got %s", order.Quantity)
	assert.Equal(t, domain.ModeDevelopment, order.Mode)
	assert.Equal(t, 1.0, m.Counter("sizing_decisions_total", map[string]string{"status": string(domain.SignalSentToExecution)}))

	// Redelivery finds the signal no longer pending.
	require.NoError(t, p.HandleSignalGenerated(context.Background(), generated(id)))
	assert.Equal(t, 1, bus.Len(message.StreamOrdersSized))
}

func TestPortfolio_SkippedSignal(t *testing.T) {
	store := newMemStore()
	bus := membus.New()
	m := metrics.NewMemory()
	p, err := NewPortfolio(store, newEngine(t), bus, &mockLogger{}, m)
	require.NoError(t, err)

	// 100 / 500000 floors to 0.000, below the crypto minimum.
	id := store.addSignal(pendingSignal(500000))
	require.NoError(t, p.HandleSignalGenerated(context.Background(), generated(id)))

	assert.Equal(t, domain.SkippedMinQuantity, store.signalStatus(id))
	assert.Equal(t, 0, bus.Len(message.StreamOrdersSized))
	assert.Equal(t, 1.0, m.Counter("sizing_decisions_total", map[string]string{"status": string(domain.SkippedMinQuantity)}))
}

func TestPortfolio_UnknownSignalIsDropped(t *testing.T) {
	p, err := NewPortfolio(newMemStore(), newEngine(t), membus.New(), &mockLogger{}, nil)
	require.NoError(t, err)

	err = p.HandleSignalGenerated(context.Background(), generated(404))
	var verr *message.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "signal_id", verr.Field)
}

func TestPortfolio_StoreErrorIsRetried(t *testing.T) {
	store := newMemStore()
	store.getSignalErr = ports.ErrDBConnection
	p, err := NewPortfolio(store, newEngine(t), membus.New(), &mockLogger{}, nil)
	require.NoError(t, err)

	err = p.HandleSignalGenerated(context.Background(), generated(1))
	assert.ErrorIs(t, err, ports.ErrDBConnection)
}

func TestPortfolio_PublishFailureMarksSignalFailed(t *testing.T) {
	store := newMemStore()
	logger := &mockLogger{}
	p, err := NewPortfolio(store, newEngine(t), failingBus{membus.New()}, logger, nil)
	require.NoError(t, err)

	id := store.addSignal(pendingSignal(107))
	require.NoError(t, p.HandleSignalGenerated(context.Background(), generated(id)))

	assert.Equal(t, domain.FailedPortfolio, store.signalStatus(id))
	assert.Equal(t, 1, logger.errorCount())
}

func TestPortfolio_TransitionFailureMarksSignalFailed(t *testing.T) {
	store := newMemStore()
	store.transitionErr = ports.ErrUpdateFailed
	bus := membus.New()
	p, err := NewPortfolio(store, newEngine(t), bus, &mockLogger{}, nil)
	require.NoError(t, err)

	id := store.addSignal(pendingSignal(107))
	require.NoError(t, p.HandleSignalGenerated(context.Background(), generated(id)))

	assert.Equal(t, domain.FailedPortfolio, store.signalStatus(id))
	assert.Equal(t, 0, bus.Len(message.StreamOrdersSized))
}

func TestPortfolio_WrongMessageType(t *testing.T) {
	p, err := NewPortfolio(newMemStore(), newEngine(t), membus.New(), &mockLogger{}, nil)
	require.NoError(t, err)

	err = p.HandleSignalGenerated(context.Background(), message.OrderFilled{ExecutionID: "x"})
	var verr *message.ValidationError
	assert.True(t, errors.As(err, &verr))
}
