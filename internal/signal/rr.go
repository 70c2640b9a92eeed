package signal

import (
	"math"

	"fvgTrader/internal/domain"
)

// riskEpsilon is the smallest entry/stop distance treated as real risk.
const riskEpsilon = 1e-9

// RiskReward computes the reward/risk ratio of a trade and applies the cap.
//
// Both bounds are checked on the unrounded ratio. When it exceeds maxRR the
// target is moved to entry +/- risk*maxRR in the trade direction and the ratio
// is clamped to maxRR exactly. Otherwise the ratio is rounded to two decimals
// for storage. The returned target is always on the
// profitable side of entry unless a rejection is returned.
func RiskReward(side domain.OrderSide, entry, stop, target, minRR, maxRR float64) (float64, float64, Rejection) {
	risk := math.Abs(entry - stop)
	if risk <= riskEpsilon {
		return 0, 0, RejectZeroRisk
	}
	rr := math.Abs(target-entry) / risk
	if rr < minRR {
		return 0, 0, RejectLowRR
	}
	if rr > maxRR {
		if side == domain.Buy {
			target = entry + risk*maxRR
		} else {
			target = entry - risk*maxRR
		}
		rr = maxRR
	} else {
		rr = math.Round(rr*100) / 100
	}
	if (side == domain.Buy && target <= entry) || (side == domain.Sell && target >= entry) {
		return 0, 0, RejectWrongSide
	}
	return target, rr, ""
}
