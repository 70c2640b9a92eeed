package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"fvgTrader/internal/domain"
)

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const candleColumns = `symbol, timeframe, open_time, open, high, low, close, volume`

func scanCandle(s scanner) (domain.Candle, error) {
	var c domain.Candle
	err := s.Scan(&c.Symbol, &c.Timeframe, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if err != nil {
		return domain.Candle{}, err
	}
	c.Timestamp = c.Timestamp.UTC()
	return c, nil
}

const fvgColumns = `id, symbol, timeframe, direction, start_price, end_price, formed_at,
	height, pct_of_price, status, inversion_time, confirmation`

func scanFVG(s scanner) (*domain.FairValueGap, error) {
	f := &domain.FairValueGap{}
	var direction, status string
	var inversion sql.NullTime
	var confirmation sql.NullString
	err := s.Scan(&f.ID, &f.Symbol, &f.Timeframe, &direction, &f.Start, &f.End, &f.FormedAt,
		&f.Height, &f.PctOfPrice, &status, &inversion, &confirmation)
	if err != nil {
		return nil, err
	}
	f.Direction = domain.Direction(direction)
	f.Status = domain.FVGStatus(status)
	f.FormedAt = f.FormedAt.UTC()
	if inversion.Valid {
		f.InversionTime = inversion.Time.UTC()
	}
	if confirmation.Valid && confirmation.String != "" {
		conf := &domain.Confirmation{}
		if err := json.Unmarshal([]byte(confirmation.String), conf); err != nil {
			return nil, fmt.Errorf("decode confirmation of fvg %d: %w", f.ID, err)
		}
		f.Confirmation = conf
	}
	return f, nil
}

const poolColumns = `id, symbol, timeframe, pool_type, level, formed_at, significance,
	touches, tapped, tap_time, metadata`

func scanPool(s scanner) (*domain.LiquidityPool, error) {
	p := &domain.LiquidityPool{}
	var poolType, significance string
	var tapTime sql.NullTime
	var metadata sql.NullString
	err := s.Scan(&p.ID, &p.Symbol, &p.Timeframe, &poolType, &p.Level, &p.FormedAt, &significance,
		&p.Touches, &p.Tapped, &tapTime, &metadata)
	if err != nil {
		return nil, err
	}
	p.Type = domain.PoolType(poolType)
	p.Significance = domain.PoolSignificance(significance)
	p.FormedAt = p.FormedAt.UTC()
	if tapTime.Valid {
		p.TapTime = tapTime.Time.UTC()
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of pool %d: %w", p.ID, err)
		}
	}
	return p, nil
}

const signalColumns = `id, ticker, timeframe, direction, fvg_id, entry_price, stop_loss,
	liquidity_target, rr, confluences, status, created_at, updated_at`

func scanSignal(s scanner) (*domain.TradeSignal, error) {
	sig := &domain.TradeSignal{}
	var direction, status, confluences string
	err := s.Scan(&sig.ID, &sig.Ticker, &sig.Timeframe, &direction, &sig.FVGID, &sig.EntryPrice, &sig.StopLoss,
		&sig.LiquidityTarget, &sig.RR, &confluences, &status, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sig.Direction = domain.OrderSide(direction)
	sig.Status = domain.SignalStatus(status)
	sig.CreatedAt = sig.CreatedAt.UTC()
	sig.UpdatedAt = sig.UpdatedAt.UTC()
	if err := json.Unmarshal([]byte(confluences), &sig.Confluences); err != nil {
		return nil, fmt.Errorf("decode confluences of signal %d: %w", sig.ID, err)
	}
	return sig, nil
}

const positionColumns = `execution_id, signal_id, symbol, side, entry_price, quantity, stop_loss,
	take_profit, status, COALESCE(exit_price, 0), COALESCE(pnl, 0), close_reason, opened_at, closed_at`

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side, status string
	var closeReason sql.NullString
	var closedAt sql.NullTime
	err := s.Scan(&p.ExecutionID, &p.SignalID, &p.Symbol, &side, &p.EntryPrice, &p.Quantity, &p.StopLoss,
		&p.TakeProfit, &status, &p.ExitPrice, &p.PnL, &closeReason, &p.OpenedAt, &closedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Side = domain.OrderSide(side)
	p.Status = domain.PositionStatus(status)
	p.OpenedAt = p.OpenedAt.UTC()
	if closeReason.Valid {
		p.CloseReason = domain.CloseReason(closeReason.String)
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time.UTC()
	}
	return p, nil
}

const journalColumns = `execution_id, symbol, side, entry_price, exit_price, quantity, pnl,
	close_reason, opened_at, closed_at, archived_at`

func scanJournalEntry(s scanner) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	var side, reason string
	err := s.Scan(&e.ExecutionID, &e.Symbol, &side, &e.EntryPrice, &e.ExitPrice, &e.Quantity, &e.PnL,
		&reason, &e.OpenedAt, &e.ClosedAt, &e.ArchivedAt)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	e.Side = domain.OrderSide(side)
	e.CloseReason = domain.CloseReason(reason)
	e.OpenedAt = e.OpenedAt.UTC()
	e.ClosedAt = e.ClosedAt.UTC()
	e.ArchivedAt = e.ArchivedAt.UTC()
	return e, nil
}
