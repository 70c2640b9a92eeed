package signal

import (
	"time"

	"fvgTrader/internal/domain"
)

// Confluence names recorded on a signal.
const (
	ConfluenceVolumeSpike = "volume_spike"
	ConfluenceSession     = "session"
	ConfluenceOrderBlock  = "order_block"
)

// Session is an inclusive UTC time-of-day window.
type Session struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// DefaultSessions are the London (08:00-11:00) and New York (13:30-16:00)
// windows in UTC.
func DefaultSessions() []Session {
	return []Session{
		{Start: 8 * time.Hour, End: 11 * time.Hour},
		{Start: 13*time.Hour + 30*time.Minute, End: 16 * time.Hour},
	}
}

// VolumeSpike reports whether candle idx traded more than factor times the
// mean volume of the window candles before it. Needs a full window.
func VolumeSpike(candles []domain.Candle, idx, window int, factor float64) bool {
	if window <= 0 || idx < window || idx >= len(candles) {
		return false
	}
	sum := 0.0
	for _, c := range candles[idx-window : idx] {
		sum += c.Volume
	}
	return candles[idx].Volume > factor*(sum/float64(window))
}

// InSession reports whether ts falls inside any session, bounds included.
func InSession(ts time.Time, sessions []Session) bool {
	ts = ts.UTC()
	tod := time.Duration(ts.Hour())*time.Hour +
		time.Duration(ts.Minute())*time.Minute +
		time.Duration(ts.Second())*time.Second
	for _, s := range sessions {
		if tod >= s.Start && tod <= s.End {
			return true
		}
	}
	return false
}

// OrderBlockBefore looks back up to lookback candles before idx for an
// opposing-colour candle whose body is at least bodyRatio of its range. A
// bullish break needs a bearish candle and a bearish break a bullish one.
func OrderBlockBefore(candles []domain.Candle, idx int, dir domain.Direction, lookback int, bodyRatio float64) bool {
	if idx > len(candles) {
		idx = len(candles)
	}
	from := idx - lookback
	if from < 0 {
		from = 0
	}
	for _, c := range candles[from:idx] {
		opposing := c.IsBearish()
		if dir == domain.Bearish {
			opposing = c.IsBullish()
		}
		if !opposing || c.Range() <= 0 {
			continue
		}
		if c.Body() >= bodyRatio*c.Range() {
			return true
		}
	}
	return false
}
