package message

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

var at = time.Date(2024, 3, 4, 9, 15, 0, 123000000, time.UTC)

func TestEncode_FlatWireForm(t *testing.T) {
	fields, err := Encode(SignalGenerated{
		SignalID:    3,
		FVGID:       7,
		Ticker:      "BTCUSDT",
		Timeframe:   "5m",
		Side:        domain.Sell,
		Entry:       101.5,
		Stop:        110,
		Target:      90,
		RR:          1.35,
		Confluences: []string{"volume_spike", "session"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"type":        "signal_generated",
		"signal_id":   int64(3),
		"fvg_id":      int64(7),
		"ticker":      "BTCUSDT",
		"timeframe":   "5m",
		"side":        "SELL",
		"entry":       101.5,
		"stop":        110.0,
		"target":      90.0,
		"rr":          1.35,
		"confluences": `["volume_spike","session"]`,
	}, fields)
}

func TestEncode_TimesAndDecimals(t *testing.T) {
	local := at.In(time.FixedZone("UTC+2", 2*60*60))
	fields, err := Encode(OrderSized{
		SignalID: 1, Symbol: "ETHUSDT", Side: domain.Buy,
		Entry: 100, Stop: 95, TakeProfit: 110,
		Quantity: decimal.RequireFromString("0.03174"),
		Mode:     domain.ModeDevelopment,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.03174, fields["quantity"])

	fields, err = Encode(PositionArchived{ExecutionID: "e", Symbol: "ETHUSDT", PnL: 1, ArchivedAt: local})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04T09:15:00.123Z", fields["archived_at"])

	fields, err = Encode(AssetsScreened{ScreenedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "[]", fields["symbols"])
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		field string
	}{
		{"NaN price", PositionClosed{ExecutionID: "e", Symbol: "X", Reason: domain.CloseReasonStopLoss, ExitPrice: math.NaN(), ClosedAt: at}, "exit_price"},
		{"infinite rr", SignalGenerated{Side: domain.Buy, RR: math.Inf(1)}, "rr"},
		{"zero time", CandlesAvailable{Symbol: "X", Timeframe: "1h", To: at}, "from"},
		{"nil message", nil, TypeKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.msg)
			var encErr *EncodeError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, tt.field, encErr.Field)
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	msgs := []Message{
		AssetsScreened{Symbols: []string{"BTCUSDT", "ETHUSDT"}, ScreenedAt: at},
		CandlesAvailable{Symbol: "BTCUSDT", Timeframe: "1h", From: at, To: at.Add(time.Hour), Count: 2},
		SignalGenerated{SignalID: 3, FVGID: 7, Ticker: "BTCUSDT", Timeframe: "5m", Side: domain.Buy, Entry: 1, Stop: 0.5, Target: 2, RR: 2, Confluences: []string{}},
		OrderSized{SignalID: 3, Symbol: "BTCUSDT", Side: domain.Buy, Entry: 1, Stop: 0.5, TakeProfit: 2, Quantity: decimal.NewFromFloat(100), Mode: domain.ModeProduction},
		OrderFilled{ExecutionID: "e-1", SignalID: 3, Symbol: "BTCUSDT", Side: domain.Buy, FillPrice: 1, Quantity: 100, Stop: 0.5, TakeProfit: 2, FilledAt: at},
		PositionClosed{ExecutionID: "e-1", Symbol: "BTCUSDT", Reason: domain.CloseReasonTakeProfit, ExitPrice: 2, PnL: 100, ClosedAt: at},
		PositionArchived{ExecutionID: "e-1", Symbol: "BTCUSDT", PnL: 100, ArchivedAt: at},
	}
	for _, msg := range msgs {
		t.Run(msg.Type(), func(t *testing.T) {
			fields, err := Encode(msg)
			require.NoError(t, err)
			got, err := Decode(fields)
			require.NoError(t, err)

			if sized, ok := msg.(OrderSized); ok {
				gotSized := got.(OrderSized)
				assert.True(t, sized.Quantity.Equal(gotSized.Quantity))
				gotSized.Quantity = sized.Quantity
				got = gotSized
			}
			assert.Equal(t, msg, got)
		})
	}
}

// Stream transports hand every value back as a string.
func TestDecode_StringValues(t *testing.T) {
	got, err := Decode(map[string]interface{}{
		"type":         "order_filled",
		"execution_id": "9b2e",
		"signal_id":    "12",
		"symbol":       "SOLUSDT",
		"side":         "SELL",
		"fill_price":   "142.37",
		"quantity":     "0.7",
		"stop":         "150",
		"take_profit":  "120.5",
		"filled_at":    "2024-03-04T09:15:00.123Z",
	})
	require.NoError(t, err)
	assert.Equal(t, OrderFilled{
		ExecutionID: "9b2e",
		SignalID:    12,
		Symbol:      "SOLUSDT",
		Side:        domain.Sell,
		FillPrice:   142.37,
		Quantity:    0.7,
		Stop:        150,
		TakeProfit:  120.5,
		FilledAt:    at,
	}, got)
}

func TestDecode_ValidationErrors(t *testing.T) {
	valid := func() map[string]interface{} {
		return map[string]interface{}{
			"type":         "position_closed",
			"execution_id": "e-1",
			"symbol":       "BTCUSDT",
			"reason":       "stop_loss",
			"exit_price":   "95",
			"pnl":          "-50",
			"closed_at":    "2024-03-04T09:15:00Z",
		}
	}

	tests := []struct {
		name   string
		mutate func(f map[string]interface{})
		field  string
	}{
		{"missing type", func(f map[string]interface{}) { delete(f, "type") }, TypeKey},
		{"unknown type", func(f map[string]interface{}) { f["type"] = "heartbeat" }, TypeKey},
		{"missing field", func(f map[string]interface{}) { delete(f, "symbol") }, "symbol"},
		{"empty string", func(f map[string]interface{}) { f["execution_id"] = "" }, "execution_id"},
		{"bad number", func(f map[string]interface{}) { f["pnl"] = "lots" }, "pnl"},
		{"NaN number", func(f map[string]interface{}) { f["exit_price"] = "NaN" }, "exit_price"},
		{"bad time", func(f map[string]interface{}) { f["closed_at"] = "yesterday" }, "closed_at"},
		{"bad reason", func(f map[string]interface{}) { f["reason"] = "margin_call" }, "reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := valid()
			tt.mutate(fields)
			_, err := Decode(fields)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	_, err := Decode(valid())
	assert.NoError(t, err)
}

func TestDecode_BadSideAndList(t *testing.T) {
	fields, err := Encode(SignalGenerated{SignalID: 1, FVGID: 1, Ticker: "X", Timeframe: "5m", Side: domain.Buy, Entry: 1, Stop: 1, Target: 1, RR: 1})
	require.NoError(t, err)

	fields["side"] = "LONG"
	_, err = Decode(fields)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "side", vErr.Field)

	fields["side"] = "BUY"
	fields["confluences"] = "volume_spike"
	_, err = Decode(fields)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "confluences", vErr.Field)
}

type fakeBus struct {
	stream string
	fields map[string]interface{}
}

func (b *fakeBus) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	b.stream, b.fields = stream, fields
	return "1-0", nil
}

func (b *fakeBus) EnsureGroup(context.Context, string, string) error { return nil }

func (b *fakeBus) Read(context.Context, string, string, string, int64, time.Duration) ([]ports.Delivery, error) {
	return nil, nil
}

func (b *fakeBus) ReadPending(context.Context, string, string, string, int64) ([]ports.Delivery, error) {
	return nil, nil
}

func (b *fakeBus) Reclaim(context.Context, string, string, string, time.Duration, int64) ([]ports.Delivery, error) {
	return nil, nil
}

func (b *fakeBus) Ack(context.Context, string, string, ...string) error { return nil }
func (b *fakeBus) Close() error                                          { return nil }

func TestPublish(t *testing.T) {
	bus := &fakeBus{}
	id, err := Publish(context.Background(), bus, PositionArchived{ExecutionID: "e", Symbol: "X", PnL: 1, ArchivedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "1-0", id)
	assert.Equal(t, StreamPositionsArchived, bus.stream)
	assert.Equal(t, TypePositionArchived, bus.fields[TypeKey])

	bus = &fakeBus{}
	_, err = Publish(context.Background(), bus, PositionArchived{ExecutionID: "e", Symbol: "X", PnL: math.NaN(), ArchivedAt: at})
	var encErr *EncodeError
	assert.ErrorAs(t, err, &encErr)
	assert.Empty(t, bus.stream, "nothing is published when encoding fails")
}
