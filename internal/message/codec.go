package message

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fvgTrader/internal/domain"
)

// EncodeError means a value could not be put on the wire.
type EncodeError struct {
	Type   string
	Field  string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("message: cannot encode %s.%s: %s", e.Type, e.Field, e.Reason)
}

// ValidationError means an incoming record is not a valid variant. Such
// records are dropped rather than retried.
type ValidationError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("message: invalid %q record: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("message: invalid %q record, field %s: %s", e.Type, e.Field, e.Reason)
}

// Encode flattens msg into its wire form.
func Encode(msg Message) (map[string]interface{}, error) {
	if msg == nil {
		return nil, &EncodeError{Field: TypeKey, Reason: "nil message"}
	}
	e := &encoder{typ: msg.Type(), fields: map[string]interface{}{TypeKey: msg.Type()}}
	msg.encode(e)
	if e.err != nil {
		return nil, e.err
	}
	return e.fields, nil
}

type encoder struct {
	typ    string
	fields map[string]interface{}
	err    *EncodeError
}

func (e *encoder) fail(field, reason string) {
	if e.err == nil {
		e.err = &EncodeError{Type: e.typ, Field: field, Reason: reason}
	}
}

func (e *encoder) str(key, v string) {
	e.fields[key] = v
}

func (e *encoder) int(key string, v int64) {
	e.fields[key] = v
}

func (e *encoder) float(key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		e.fail(key, "float must be finite")
		return
	}
	e.fields[key] = v
}

func (e *encoder) decimal(key string, v decimal.Decimal) {
	e.float(key, v.InexactFloat64())
}

func (e *encoder) time(key string, v time.Time) {
	if v.IsZero() {
		e.fail(key, "time is required")
		return
	}
	e.fields[key] = v.UTC().Format(time.RFC3339Nano)
}

func (e *encoder) list(key string, v []string) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		e.fail(key, err.Error())
		return
	}
	e.fields[key] = string(b)
}

// Decode rebuilds a variant from its wire form. Values may be native Go
// types or the strings a stream transport hands back.
func Decode(fields map[string]interface{}) (Message, error) {
	raw, ok := fields[TypeKey]
	if !ok {
		return nil, &ValidationError{Field: TypeKey, Reason: "missing"}
	}
	typ, ok := asString(raw)
	if !ok {
		return nil, &ValidationError{Field: TypeKey, Reason: "not a string"}
	}
	d := &decoder{typ: typ, fields: fields}

	var msg Message
	switch typ {
	case TypeAssetsScreened:
		msg = AssetsScreened{
			Symbols:    d.list("symbols"),
			ScreenedAt: d.time("screened_at"),
		}
	case TypeCandlesAvailable:
		msg = CandlesAvailable{
			Symbol:    d.str("symbol"),
			Timeframe: d.str("timeframe"),
			From:      d.time("from"),
			To:        d.time("to"),
			Count:     int(d.int("count")),
		}
	case TypeSignalGenerated:
		msg = SignalGenerated{
			SignalID:    d.int("signal_id"),
			FVGID:       d.int("fvg_id"),
			Ticker:      d.str("ticker"),
			Timeframe:   d.str("timeframe"),
			Side:        d.side("side"),
			Entry:       d.float("entry"),
			Stop:        d.float("stop"),
			Target:      d.float("target"),
			RR:          d.float("rr"),
			Confluences: d.list("confluences"),
		}
	case TypeOrderSized:
		msg = OrderSized{
			SignalID:   d.int("signal_id"),
			Symbol:     d.str("symbol"),
			Side:       d.side("side"),
			Entry:      d.float("entry"),
			Stop:       d.float("stop"),
			TakeProfit: d.float("take_profit"),
			Quantity:   decimal.NewFromFloat(d.float("quantity")),
			Mode:       domain.SizingMode(d.str("mode")),
		}
	case TypeOrderFilled:
		msg = OrderFilled{
			ExecutionID: d.str("execution_id"),
			SignalID:    d.int("signal_id"),
			Symbol:      d.str("symbol"),
			Side:        d.side("side"),
			FillPrice:   d.float("fill_price"),
			Quantity:    d.float("quantity"),
			Stop:        d.float("stop"),
			TakeProfit:  d.float("take_profit"),
			FilledAt:    d.time("filled_at"),
		}
	case TypePositionClosed:
		msg = PositionClosed{
			ExecutionID: d.str("execution_id"),
			Symbol:      d.str("symbol"),
			Reason:      d.reason("reason"),
			ExitPrice:   d.float("exit_price"),
			PnL:         d.float("pnl"),
			ClosedAt:    d.time("closed_at"),
		}
	case TypePositionArchived:
		msg = PositionArchived{
			ExecutionID: d.str("execution_id"),
			Symbol:      d.str("symbol"),
			PnL:         d.float("pnl"),
			ArchivedAt:  d.time("archived_at"),
		}
	default:
		return nil, &ValidationError{Type: typ, Field: TypeKey, Reason: "unknown message type"}
	}

	if d.err != nil {
		return nil, d.err
	}
	return msg, nil
}

type decoder struct {
	typ    string
	fields map[string]interface{}
	err    *ValidationError
}

func (d *decoder) fail(field, reason string) {
	if d.err == nil {
		d.err = &ValidationError{Type: d.typ, Field: field, Reason: reason}
	}
}

func (d *decoder) get(key string) (interface{}, bool) {
	v, ok := d.fields[key]
	if !ok || v == nil {
		d.fail(key, "missing")
		return nil, false
	}
	return v, true
}

func (d *decoder) str(key string) string {
	v, ok := d.get(key)
	if !ok {
		return ""
	}
	s, ok := asString(v)
	if !ok {
		d.fail(key, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
	if s == "" {
		d.fail(key, "empty")
	}
	return s
}

func (d *decoder) side(key string) domain.OrderSide {
	s := domain.OrderSide(d.str(key))
	if d.err == nil && !s.Valid() {
		d.fail(key, fmt.Sprintf("unknown side %q", s))
	}
	return s
}

func (d *decoder) reason(key string) domain.CloseReason {
	r := domain.CloseReason(d.str(key))
	if d.err == nil && r != domain.CloseReasonStopLoss && r != domain.CloseReasonTakeProfit {
		d.fail(key, fmt.Sprintf("unknown close reason %q", r))
	}
	return r
}

func (d *decoder) float(key string) float64 {
	v, ok := d.get(key)
	if !ok {
		return 0
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	default:
		s, ok := asString(v)
		if !ok {
			d.fail(key, fmt.Sprintf("expected number, got %T", v))
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			d.fail(key, "not a number")
			return 0
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		d.fail(key, "float must be finite")
		return 0
	}
	return f
}

func (d *decoder) int(key string) int64 {
	v, ok := d.get(key)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		if x != math.Trunc(x) {
			d.fail(key, "not an integer")
			return 0
		}
		return int64(x)
	}
	s, ok := asString(v)
	if !ok {
		d.fail(key, fmt.Sprintf("expected integer, got %T", v))
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d.fail(key, "not an integer")
		return 0
	}
	return n
}

func (d *decoder) time(key string) time.Time {
	v, ok := d.get(key)
	if !ok {
		return time.Time{}
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	s, ok := asString(v)
	if !ok {
		d.fail(key, fmt.Sprintf("expected timestamp, got %T", v))
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		d.fail(key, "not an RFC3339 timestamp")
		return time.Time{}
	}
	return t.UTC()
}

func (d *decoder) list(key string) []string {
	v, ok := d.get(key)
	if !ok {
		return nil
	}
	if l, ok := v.([]string); ok {
		return l
	}
	s, ok := asString(v)
	if !ok {
		d.fail(key, fmt.Sprintf("expected JSON list, got %T", v))
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		d.fail(key, "not a JSON string list")
		return nil
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func asString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
