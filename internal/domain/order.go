package domain

import "time"

// Order is a sized signal ready for execution.
type Order struct {
	SignalID   int64
	Symbol     string
	Side       OrderSide
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Quantity   float64
	Mode       SizingMode
}

// Fill is the result of executing an order.
type Fill struct {
	ExecutionID string // Primary identity of the resulting position
	Price       float64
	Quantity    float64
	FilledAt    time.Time
}
