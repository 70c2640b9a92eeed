package domain

// OrderSide represents the side of a trade (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Valid reports whether the side is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

// Direction is the directional bias of a detected pattern.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Opposite returns the inverse direction.
func (d Direction) Opposite() Direction {
	if d == Bullish {
		return Bearish
	}
	return Bullish
}

// Side maps a direction onto the order side that trades with it.
func (d Direction) Side() OrderSide {
	if d == Bullish {
		return Buy
	}
	return Sell
}

// DirectionOf maps an order side back onto a pattern direction.
func DirectionOf(s OrderSide) Direction {
	if s == Buy {
		return Bullish
	}
	return Bearish
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
)

// SizingMode selects how the sizing engine computes quantity.
type SizingMode string

const (
	ModeDevelopment SizingMode = "development" // fixed notional per order
	ModeProduction  SizingMode = "production"  // fixed fraction of balance at risk
)
