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

// SaveFVG stores a gap unless an identical one exists. The returned id is
// the existing row's id when created is false.
func (s *Store) SaveFVG(ctx context.Context, fvg *domain.FairValueGap) (int64, bool, error) {
	insert := s.q(`
	INSERT INTO fvgs (symbol, timeframe, direction, start_price, end_price, formed_at,
	                  height, pct_of_price, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, timeframe, direction, start_price, end_price, formed_at) DO NOTHING
	RETURNING id`)

	var id int64
	err := s.db.QueryRowContext(ctx, insert,
		fvg.Symbol, fvg.Timeframe, string(fvg.Direction), fvg.Start, fvg.End, utc(fvg.FormedAt),
		fvg.Height, fvg.PctOfPrice, string(domain.FVGPending), time.Now().UTC()).Scan(&id)
	if err == nil {
		fvg.ID = id
		fvg.Status = domain.FVGPending
		s.logger.Debug(ctx, "FVG created", map[string]interface{}{"fvgID": id, "symbol": fvg.Symbol, "direction": fvg.Direction})
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("%w: insert fvg for %s: %v", ports.ErrUpdateFailed, fvg.Symbol, err)
	}

	existing := s.q(`
	SELECT id FROM fvgs
	WHERE symbol = ? AND timeframe = ? AND direction = ? AND start_price = ? AND end_price = ? AND formed_at = ?`)
	err = s.db.QueryRowContext(ctx, existing,
		fvg.Symbol, fvg.Timeframe, string(fvg.Direction), fvg.Start, fvg.End, utc(fvg.FormedAt)).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("%w: lookup existing fvg for %s: %v", ports.ErrQueryFailed, fvg.Symbol, err)
	}
	fvg.ID = id
	return id, false, nil
}

// PendingFVGs returns pending gaps, oldest first.
func (s *Store) PendingFVGs(ctx context.Context, symbol, timeframe string) ([]*domain.FairValueGap, error) {
	query := s.q(`
	SELECT ` + fvgColumns + `
	FROM fvgs
	WHERE symbol = ? AND timeframe = ? AND status = ?
	ORDER BY formed_at ASC, id ASC`)

	rows, err := s.db.QueryContext(ctx, query, symbol, timeframe, string(domain.FVGPending))
	if err != nil {
		return nil, fmt.Errorf("%w: pending fvgs for %s %s: %v", ports.ErrQueryFailed, symbol, timeframe, err)
	}
	defer rows.Close()

	fvgs := make([]*domain.FairValueGap, 0)
	for rows.Next() {
		f, err := scanFVG(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan fvg: %v", ports.ErrQueryFailed, err)
		}
		fvgs = append(fvgs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating fvg rows: %v", ports.ErrQueryFailed, err)
	}
	return fvgs, nil
}

// GetFVG retrieves a gap by id. Returns nil, nil if not found.
func (s *Store) GetFVG(ctx context.Context, id int64) (*domain.FairValueGap, error) {
	query := s.q(`SELECT ` + fvgColumns + ` FROM fvgs WHERE id = ?`)
	f, err := scanFVG(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fvg %d: %v", ports.ErrQueryFailed, id, err)
	}
	return f, nil
}

// ExpireFVGs moves pending gaps formed before the cutoff to expired.
func (s *Store) ExpireFVGs(ctx context.Context, formedBefore time.Time) (int64, error) {
	query := s.q(`UPDATE fvgs SET status = ? WHERE status = ? AND formed_at < ?`)
	res, err := s.db.ExecContext(ctx, query, string(domain.FVGExpired), string(domain.FVGPending), utc(formedBefore))
	if err != nil {
		return 0, fmt.Errorf("%w: expire fvgs: %v", ports.ErrUpdateFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	if n > 0 {
		s.logger.Info(ctx, "Expired stale FVGs", map[string]interface{}{"count": n, "formedBefore": formedBefore})
	}
	return n, nil
}
