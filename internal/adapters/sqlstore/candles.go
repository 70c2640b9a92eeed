package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// SaveCandles inserts candles, ignoring those already stored.
func (s *Store) SaveCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	query := s.q(`
	INSERT INTO candles (` + candleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, timeframe, open_time) DO NOTHING`)

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("%w: prepare candle insert: %v", ports.ErrQueryFailed, err)
		}
		defer stmt.Close()

		for _, c := range candles {
			res, err := stmt.ExecContext(ctx, c.Symbol, c.Timeframe, utc(c.Timestamp), c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				return fmt.Errorf("%w: insert candle %s %s %s: %v", ports.ErrUpdateFailed, c.Symbol, c.Timeframe, c.Timestamp, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug(ctx, "Candles saved", map[string]interface{}{
		"symbol":    candles[0].Symbol,
		"timeframe": candles[0].Timeframe,
		"received":  len(candles),
		"inserted":  inserted,
	})
	return inserted, nil
}

// CandlesSince returns candles at or after since, oldest first.
func (s *Store) CandlesSince(ctx context.Context, symbol, timeframe string, since time.Time) ([]domain.Candle, error) {
	query := s.q(`
	SELECT ` + candleColumns + `
	FROM candles
	WHERE symbol = ? AND timeframe = ? AND open_time >= ?
	ORDER BY open_time ASC`)

	rows, err := s.db.QueryContext(ctx, query, symbol, timeframe, utc(since))
	if err != nil {
		return nil, fmt.Errorf("%w: candles for %s %s: %v", ports.ErrQueryFailed, symbol, timeframe, err)
	}
	defer rows.Close()

	candles := make([]domain.Candle, 0)
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan candle: %v", ports.ErrQueryFailed, err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating candle rows: %v", ports.ErrQueryFailed, err)
	}
	return candles, nil
}

// LatestCandleTime returns the newest stored open time for symbol/timeframe.
func (s *Store) LatestCandleTime(ctx context.Context, symbol, timeframe string) (time.Time, bool, error) {
	query := s.q(`
	SELECT open_time FROM candles
	WHERE symbol = ? AND timeframe = ?
	ORDER BY open_time DESC LIMIT 1`)

	var ts time.Time
	err := s.db.QueryRowContext(ctx, query, symbol, timeframe).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: latest candle for %s %s: %v", ports.ErrQueryFailed, symbol, timeframe, err)
	}
	return ts.UTC(), true, nil
}

// LatestClose returns the close of the newest candle of any timeframe.
func (s *Store) LatestClose(ctx context.Context, symbol string) (float64, time.Time, error) {
	query := s.q(`
	SELECT close, open_time FROM candles
	WHERE symbol = ?
	ORDER BY open_time DESC LIMIT 1`)

	var price float64
	var ts time.Time
	err := s.db.QueryRowContext(ctx, query, symbol).Scan(&price, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, fmt.Errorf("no candles for %s: %w", symbol, ports.ErrNotFound)
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: latest close for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	return price, ts.UTC(), nil
}
