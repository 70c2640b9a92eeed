package domain

import "time"

// Position is an open or closed trade created from a fill.
type Position struct {
	ExecutionID string // Unique per fill
	SignalID    int64
	Symbol      string
	Side        OrderSide
	EntryPrice  float64
	Quantity    float64
	StopLoss    float64
	TakeProfit  float64
	Status      PositionStatus
	ExitPrice   float64 // 0 while open
	PnL         float64 // 0 while open
	CloseReason CloseReason
	OpenedAt    time.Time
	ClosedAt    time.Time // Zero while open
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// JournalEntry is the archived form of a closed position.
type JournalEntry struct {
	ExecutionID string
	Symbol      string
	Side        OrderSide
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	PnL         float64
	CloseReason CloseReason
	OpenedAt    time.Time
	ClosedAt    time.Time
	ArchivedAt  time.Time
}

// JournalEntryFrom converts a closed position into its archive record.
func JournalEntryFrom(p *Position, archivedAt time.Time) JournalEntry {
	return JournalEntry{
		ExecutionID: p.ExecutionID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		Quantity:    p.Quantity,
		PnL:         p.PnL,
		CloseReason: p.CloseReason,
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.ClosedAt,
		ArchivedAt:  archivedAt,
	}
}
