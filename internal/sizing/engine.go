package sizing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// riskEpsilon is the smallest per-unit risk the engine will size against.
var riskEpsilon = decimal.New(1, -9)

// Config holds sizing configuration.
type Config struct {
	Mode                domain.SizingMode
	FixedNotionalUSD    float64  // development mode: value of every order, e.g. 100
	AccountBalance      float64  // production mode: balance the risk is taken from
	MaxRiskPct          float64  // production mode: fraction of balance at risk per trade, e.g. 0.01
	Precision           int32    // decimal places quantities are floored to
	MinQtyCrypto        float64  // smallest tradable quantity for fractional assets
	MinQtyEquity        float64  // smallest tradable quantity for everything else
	CryptoQuoteSuffixes []string // symbols ending in one of these count as crypto, e.g. "USDT"
}

// Decision is the outcome of sizing a signal. Order is nil unless the signal
// was accepted, in which case Status is sent_to_execution.
type Decision struct {
	Status   domain.SignalStatus
	Quantity decimal.Decimal
	Order    *domain.Order
	Reason   string
}

// Accepted reports whether an order was produced.
func (d Decision) Accepted() bool {
	return d.Order != nil
}

// Engine converts accepted signals into sized orders.
type Engine struct {
	config Config
}

// New creates a sizing engine.
func New(config Config) (*Engine, error) {
	if config.Precision < 0 {
		return nil, fmt.Errorf("%w: quantity precision cannot be negative", ports.ErrConfigurationError)
	}
	if config.MinQtyCrypto < 0 || config.MinQtyEquity < 0 {
		return nil, fmt.Errorf("%w: minimum quantities cannot be negative", ports.ErrConfigurationError)
	}
	return &Engine{config: config}, nil
}

// IsCrypto reports whether a symbol trades in fractional units: multi-part
// tickers such as "BTC-USD" and pairs quoted in a configured suffix.
func (e *Engine) IsCrypto(symbol string) bool {
	if strings.Contains(symbol, "-") {
		return true
	}
	upper := strings.ToUpper(symbol)
	for _, suffix := range e.config.CryptoQuoteSuffixes {
		if suffix != "" && strings.HasSuffix(upper, strings.ToUpper(suffix)) && len(upper) > len(suffix) {
			return true
		}
	}
	return false
}

// MinQuantity returns the threshold that applies to the symbol.
func (e *Engine) MinQuantity(symbol string) decimal.Decimal {
	if e.IsCrypto(symbol) {
		return decimal.NewFromFloat(e.config.MinQtyCrypto)
	}
	return decimal.NewFromFloat(e.config.MinQtyEquity)
}

// Size computes the order quantity for a signal. Rejections come back as a
// skipped_* status; the quantity is floored, never rounded up.
func (e *Engine) Size(sig *domain.TradeSignal) Decision {
	if reason := invalidData(sig, e.config.Mode); reason != "" {
		return skip(domain.SkippedInvalidData, reason)
	}
	entry := decimal.NewFromFloat(sig.EntryPrice)
	stop := decimal.NewFromFloat(sig.StopLoss)

	var qty decimal.Decimal
	switch e.config.Mode {
	case domain.ModeDevelopment:
		if !entry.IsPositive() {
			return skip(domain.SkippedZeroPrice, "entry price is zero")
		}
		qty = decimal.NewFromFloat(e.config.FixedNotionalUSD).Div(entry)
	case domain.ModeProduction:
		riskPerUnit := entry.Sub(stop).Abs()
		if riskPerUnit.LessThanOrEqual(riskEpsilon) {
			return skip(domain.SkippedInvalidRisk, "entry and stop loss are equal")
		}
		riskAmount := decimal.NewFromFloat(e.config.AccountBalance).Mul(decimal.NewFromFloat(e.config.MaxRiskPct))
		qty = riskAmount.Div(riskPerUnit)
	default:
		return skip(domain.SkippedInvalidMode, fmt.Sprintf("unknown sizing mode %q", e.config.Mode))
	}

	qty = qty.Truncate(e.config.Precision)
	if min := e.MinQuantity(sig.Ticker); qty.LessThan(min) || !qty.IsPositive() {
		d := skip(domain.SkippedMinQuantity, fmt.Sprintf("quantity %s below minimum %s", qty.String(), min.String()))
		d.Quantity = qty
		return d
	}

	return Decision{
		Status:   domain.SignalSentToExecution,
		Quantity: qty,
		Order: &domain.Order{
			SignalID:   sig.ID,
			Symbol:     sig.Ticker,
			Side:       sig.Direction,
			EntryPrice: sig.EntryPrice,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.LiquidityTarget,
			Quantity:   qty.InexactFloat64(),
			Mode:       e.config.Mode,
		},
	}
}

func skip(status domain.SignalStatus, reason string) Decision {
	return Decision{Status: status, Reason: reason}
}

// invalidData rejects malformed signals. A zero entry is left to the
// development sizer, which reports it as skipped_zero_price.
func invalidData(sig *domain.TradeSignal, mode domain.SizingMode) string {
	switch {
	case sig == nil:
		return "signal is nil"
	case sig.Ticker == "":
		return "ticker is empty"
	case !sig.Direction.Valid():
		return fmt.Sprintf("unknown direction %q", sig.Direction)
	case !finite(sig.EntryPrice) || !finite(sig.StopLoss) || !finite(sig.LiquidityTarget):
		return "prices must be finite"
	case sig.EntryPrice < 0 || sig.StopLoss <= 0 || sig.LiquidityTarget <= 0:
		return "prices must be positive"
	case sig.EntryPrice == 0 && mode != domain.ModeDevelopment:
		return "entry price must be positive"
	}
	return ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
