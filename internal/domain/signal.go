package domain

import (
	"strings"
	"time"
)

// SignalStatus is the lifecycle state of a trade signal.
type SignalStatus string

const (
	SignalPending         SignalStatus = "pending"
	SignalSentToExecution SignalStatus = "sent_to_execution"

	SkippedZeroPrice   SignalStatus = "skipped_zero_price"
	SkippedInvalidRisk SignalStatus = "skipped_invalid_risk"
	SkippedMinQuantity SignalStatus = "skipped_min_quantity"
	SkippedInvalidData SignalStatus = "skipped_invalid_data"
	SkippedInvalidMode SignalStatus = "skipped_invalid_mode"

	FailedPortfolio SignalStatus = "failed_portfolio"
)

// IsTerminal reports whether the signal can no longer change state.
func (s SignalStatus) IsTerminal() bool {
	return s != SignalPending
}

// IsSkipped reports whether the status is a skipped_* outcome.
func (s SignalStatus) IsSkipped() bool {
	return strings.HasPrefix(string(s), "skipped_")
}

// TradeSignal is an accepted FVG inversion waiting to be sized.
type TradeSignal struct {
	ID              int64
	Ticker          string
	Timeframe       string
	Direction       OrderSide // Trade side, inverse of the FVG direction
	FVGID           int64
	EntryPrice      float64
	StopLoss        float64
	LiquidityTarget float64
	RR              float64
	Confluences     []string
	Status          SignalStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
