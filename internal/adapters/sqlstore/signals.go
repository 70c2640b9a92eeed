package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// RecordSignal marks the gap filled and upserts its pending signal in one
// transaction. When the gap is no longer pending nothing is written and
// fvgFilled is false.
func (s *Store) RecordSignal(ctx context.Context, fvgID int64, inversionTime time.Time, conf domain.Confirmation, sig *domain.TradeSignal) (int64, bool, error) {
	confJSON, err := json.Marshal(conf)
	if err != nil {
		return 0, false, fmt.Errorf("%w: encode confirmation: %v", ports.ErrInvalidRequest, err)
	}
	confluences := sig.Confluences
	if confluences == nil {
		confluences = []string{}
	}
	confluencesJSON, err := json.Marshal(confluences)
	if err != nil {
		return 0, false, fmt.Errorf("%w: encode confluences: %v", ports.ErrInvalidRequest, err)
	}

	var (
		signalID int64
		filled   bool
	)
	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		guard := s.q(`
		UPDATE fvgs SET status = ?, inversion_time = ?, confirmation = ?
		WHERE id = ? AND status = ?`)
		res, err := tx.ExecContext(ctx, guard,
			string(domain.FVGFilled), utc(inversionTime), string(confJSON), fvgID, string(domain.FVGPending))
		if err != nil {
			return fmt.Errorf("%w: fill fvg %d: %v", ports.ErrUpdateFailed, fvgID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
		}
		if n == 0 {
			return nil
		}
		filled = true

		upsert := s.q(`
		INSERT INTO trade_signals (ticker, timeframe, direction, fvg_id, entry_price, stop_loss,
		                           liquidity_target, rr, confluences, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, timeframe, fvg_id) WHERE status = 'pending'
		DO UPDATE SET direction = excluded.direction,
		              entry_price = excluded.entry_price,
		              stop_loss = excluded.stop_loss,
		              liquidity_target = excluded.liquidity_target,
		              rr = excluded.rr,
		              confluences = excluded.confluences,
		              updated_at = excluded.updated_at
		RETURNING id`)
		err = tx.QueryRowContext(ctx, upsert,
			sig.Ticker, sig.Timeframe, string(sig.Direction), fvgID, sig.EntryPrice, sig.StopLoss,
			sig.LiquidityTarget, sig.RR, string(confluencesJSON), string(domain.SignalPending), now, now).Scan(&signalID)
		if err != nil {
			return fmt.Errorf("%w: upsert signal for fvg %d: %v", ports.ErrUpdateFailed, fvgID, err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if !filled {
		s.logger.Debug(ctx, "FVG no longer pending, signal not recorded", map[string]interface{}{"fvgID": fvgID})
		return 0, false, nil
	}

	sig.ID = signalID
	sig.FVGID = fvgID
	sig.Status = domain.SignalPending
	sig.UpdatedAt = now
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	s.logger.Debug(ctx, "Signal recorded", map[string]interface{}{"signalID": signalID, "fvgID": fvgID, "ticker": sig.Ticker})
	return signalID, true, nil
}

// GetSignal retrieves a signal by id. Returns nil, nil if not found.
func (s *Store) GetSignal(ctx context.Context, id int64) (*domain.TradeSignal, error) {
	query := s.q(`SELECT ` + signalColumns + ` FROM trade_signals WHERE id = ?`)
	sig, err := scanSignal(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: signal %d: %v", ports.ErrQueryFailed, id, err)
	}
	return sig, nil
}

// TransitionSignal changes the status only if it currently equals from.
func (s *Store) TransitionSignal(ctx context.Context, id int64, from, to domain.SignalStatus) (bool, error) {
	query := s.q(`UPDATE trade_signals SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("%w: transition signal %d: %v", ports.ErrUpdateFailed, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	if n == 1 {
		s.logger.Debug(ctx, "Signal transitioned", map[string]interface{}{"signalID": id, "from": from, "to": to})
	}
	return n == 1, nil
}

// UnannouncedSignals lists pending signals of a ticker and timeframe that
// were recorded but never published, oldest first.
func (s *Store) UnannouncedSignals(ctx context.Context, ticker, timeframe string) ([]*domain.TradeSignal, error) {
	query := s.q(`
	SELECT ` + signalColumns + `
	FROM trade_signals
	WHERE ticker = ? AND timeframe = ? AND status = ? AND announced = ?
	ORDER BY id ASC`)

	rows, err := s.db.QueryContext(ctx, query, ticker, timeframe, string(domain.SignalPending), false)
	if err != nil {
		return nil, fmt.Errorf("%w: unannounced signals for %s %s: %v", ports.ErrQueryFailed, ticker, timeframe, err)
	}
	defer rows.Close()

	signals := make([]*domain.TradeSignal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan signal: %v", ports.ErrQueryFailed, err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating signal rows: %v", ports.ErrQueryFailed, err)
	}
	return signals, nil
}

// MarkSignalAnnounced records that the signal was published. Returns false
// when it was already marked.
func (s *Store) MarkSignalAnnounced(ctx context.Context, id int64) (bool, error) {
	query := s.q(`UPDATE trade_signals SET announced = ? WHERE id = ? AND announced = ?`)
	res, err := s.db.ExecContext(ctx, query, true, id, false)
	if err != nil {
		return false, fmt.Errorf("%w: mark signal %d announced: %v", ports.ErrUpdateFailed, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	return n == 1, nil
}
