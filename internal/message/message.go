// Package message defines the events exchanged between pipeline stages and
// their flat wire encoding.
//
// Every event is one of a closed set of variants. On the wire a variant is a
// flat map carrying a "type" key plus scalar fields: floats stay float64,
// timestamps become RFC3339Nano strings in UTC and lists become JSON strings.
package message

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// Stream names.
const (
	StreamAssetsScreened    = "assets.screened"
	StreamCandlesAvailable  = "candles.available"
	StreamSignalsGenerated  = "signals.generated"
	StreamOrdersSized       = "orders.sized"
	StreamOrdersFilled      = "orders.filled"
	StreamPositionsClosed   = "positions.closed"
	StreamPositionsArchived = "positions.archived"
)

// Variant type tags.
const (
	TypeAssetsScreened   = "assets_screened"
	TypeCandlesAvailable = "candles_available"
	TypeSignalGenerated  = "signal_generated"
	TypeOrderSized       = "order_sized"
	TypeOrderFilled      = "order_filled"
	TypePositionClosed   = "position_closed"
	TypePositionArchived = "position_archived"
)

// TypeKey is the field holding the variant tag.
const TypeKey = "type"

// Message is implemented by every variant.
type Message interface {
	// Type is the variant tag written under TypeKey.
	Type() string
	// Stream is the stream the variant is published on.
	Stream() string

	encode(e *encoder)
}

// AssetsScreened lists the symbols that passed screening.
type AssetsScreened struct {
	Symbols    []string
	ScreenedAt time.Time
}

// CandlesAvailable announces newly stored candles for a symbol/timeframe.
type CandlesAvailable struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Count     int
}

// SignalGenerated announces a recorded pending trade signal.
type SignalGenerated struct {
	SignalID    int64
	FVGID       int64
	Ticker      string
	Timeframe   string
	Side        domain.OrderSide
	Entry       float64
	Stop        float64
	Target      float64
	RR          float64
	Confluences []string
}

// OrderSized carries a signal that passed sizing.
type OrderSized struct {
	SignalID   int64
	Symbol     string
	Side       domain.OrderSide
	Entry      float64
	Stop       float64
	TakeProfit float64
	Quantity   decimal.Decimal
	Mode       domain.SizingMode
}

// OrderFilled reports an executed order.
type OrderFilled struct {
	ExecutionID string
	SignalID    int64
	Symbol      string
	Side        domain.OrderSide
	FillPrice   float64
	Quantity    float64
	Stop        float64
	TakeProfit  float64
	FilledAt    time.Time
}

// PositionClosed reports a position closed by the monitor.
type PositionClosed struct {
	ExecutionID string
	Symbol      string
	Reason      domain.CloseReason
	ExitPrice   float64
	PnL         float64
	ClosedAt    time.Time
}

// PositionArchived reports a closed position written to the journal.
type PositionArchived struct {
	ExecutionID string
	Symbol      string
	PnL         float64
	ArchivedAt  time.Time
}

func (AssetsScreened) Type() string   { return TypeAssetsScreened }
func (CandlesAvailable) Type() string { return TypeCandlesAvailable }
func (SignalGenerated) Type() string  { return TypeSignalGenerated }
func (OrderSized) Type() string       { return TypeOrderSized }
func (OrderFilled) Type() string      { return TypeOrderFilled }
func (PositionClosed) Type() string   { return TypePositionClosed }
func (PositionArchived) Type() string { return TypePositionArchived }

func (AssetsScreened) Stream() string   { return StreamAssetsScreened }
func (CandlesAvailable) Stream() string { return StreamCandlesAvailable }
func (SignalGenerated) Stream() string  { return StreamSignalsGenerated }
func (OrderSized) Stream() string       { return StreamOrdersSized }
func (OrderFilled) Stream() string      { return StreamOrdersFilled }
func (PositionClosed) Stream() string   { return StreamPositionsClosed }
func (PositionArchived) Stream() string { return StreamPositionsArchived }

func (m AssetsScreened) encode(e *encoder) {
	e.list("symbols", m.Symbols)
	e.time("screened_at", m.ScreenedAt)
}

func (m CandlesAvailable) encode(e *encoder) {
	e.str("symbol", m.Symbol)
	e.str("timeframe", m.Timeframe)
	e.time("from", m.From)
	e.time("to", m.To)
	e.int("count", int64(m.Count))
}

func (m SignalGenerated) encode(e *encoder) {
	e.int("signal_id", m.SignalID)
	e.int("fvg_id", m.FVGID)
	e.str("ticker", m.Ticker)
	e.str("timeframe", m.Timeframe)
	e.str("side", string(m.Side))
	e.float("entry", m.Entry)
	e.float("stop", m.Stop)
	e.float("target", m.Target)
	e.float("rr", m.RR)
	e.list("confluences", m.Confluences)
}

func (m OrderSized) encode(e *encoder) {
	e.int("signal_id", m.SignalID)
	e.str("symbol", m.Symbol)
	e.str("side", string(m.Side))
	e.float("entry", m.Entry)
	e.float("stop", m.Stop)
	e.float("take_profit", m.TakeProfit)
	e.decimal("quantity", m.Quantity)
	e.str("mode", string(m.Mode))
}

func (m OrderFilled) encode(e *encoder) {
	e.str("execution_id", m.ExecutionID)
	e.int("signal_id", m.SignalID)
	e.str("symbol", m.Symbol)
	e.str("side", string(m.Side))
	e.float("fill_price", m.FillPrice)
	e.float("quantity", m.Quantity)
	e.float("stop", m.Stop)
	e.float("take_profit", m.TakeProfit)
	e.time("filled_at", m.FilledAt)
}

func (m PositionClosed) encode(e *encoder) {
	e.str("execution_id", m.ExecutionID)
	e.str("symbol", m.Symbol)
	e.str("reason", string(m.Reason))
	e.float("exit_price", m.ExitPrice)
	e.float("pnl", m.PnL)
	e.time("closed_at", m.ClosedAt)
}

func (m PositionArchived) encode(e *encoder) {
	e.str("execution_id", m.ExecutionID)
	e.str("symbol", m.Symbol)
	e.float("pnl", m.PnL)
	e.time("archived_at", m.ArchivedAt)
}

// Publish encodes msg and appends it to its stream. Nothing is sent when
// encoding fails.
func Publish(ctx context.Context, bus ports.EventBus, msg Message) (string, error) {
	fields, err := Encode(msg)
	if err != nil {
		return "", err
	}
	id, err := bus.Publish(ctx, msg.Stream(), fields)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", msg.Type(), err)
	}
	return id, nil
}
