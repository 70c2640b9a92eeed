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

// OpenPosition inserts an open position. A repeated execution id, or a second
// position for the same signal, is a no-op and reports created=false.
func (s *Store) OpenPosition(ctx context.Context, pos *domain.Position) (bool, error) {
	if pos.ExecutionID == "" {
		return false, fmt.Errorf("%w: position needs an execution id", ports.ErrInvalidRequest)
	}
	query := s.q(`
	INSERT INTO positions (execution_id, signal_id, symbol, side, entry_price, quantity,
	                       stop_loss, take_profit, status, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query,
		pos.ExecutionID, pos.SignalID, pos.Symbol, string(pos.Side), pos.EntryPrice, pos.Quantity,
		pos.StopLoss, pos.TakeProfit, string(domain.StatusOpen), utc(pos.OpenedAt))
	if err != nil {
		return false, fmt.Errorf("%w: insert position %s: %v", ports.ErrUpdateFailed, pos.ExecutionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	if n == 0 {
		s.logger.Debug(ctx, "Position already exists", map[string]interface{}{"executionID": pos.ExecutionID, "signalID": pos.SignalID})
		return false, nil
	}
	pos.Status = domain.StatusOpen
	s.logger.Debug(ctx, "Position created", map[string]interface{}{"executionID": pos.ExecutionID, "symbol": pos.Symbol})
	return true, nil
}

// GetPosition retrieves a position. Returns nil, nil if not found.
func (s *Store) GetPosition(ctx context.Context, executionID string) (*domain.Position, error) {
	query := s.q(`SELECT ` + positionColumns + ` FROM positions WHERE execution_id = ?`)
	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "Position not found", map[string]interface{}{"executionID": executionID})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("%w: position %s: %v", ports.ErrQueryFailed, executionID, err)
	}
	return pos, nil
}

// OpenPositions lists open positions, oldest first.
func (s *Store) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := s.q(`
	SELECT ` + positionColumns + `
	FROM positions
	WHERE status = ?
	ORDER BY opened_at ASC`)

	rows, err := s.db.QueryContext(ctx, query, string(domain.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("%w: open positions: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan position: %v", ports.ErrQueryFailed, err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating position rows: %v", ports.ErrQueryFailed, err)
	}
	return positions, nil
}

// ClosePosition moves an open position to closed. Returns false when it was
// not open.
func (s *Store) ClosePosition(ctx context.Context, executionID string, exitPrice, pnl float64, reason domain.CloseReason, closedAt time.Time) (bool, error) {
	query := s.q(`
	UPDATE positions
	SET status = ?, exit_price = ?, pnl = ?, close_reason = ?, closed_at = ?
	WHERE execution_id = ? AND status = ?`)

	res, err := s.db.ExecContext(ctx, query,
		string(domain.StatusClosed), exitPrice, pnl, string(reason), utc(closedAt),
		executionID, string(domain.StatusOpen))
	if err != nil {
		return false, fmt.Errorf("%w: close position %s: %v", ports.ErrUpdateFailed, executionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	if n == 1 {
		s.logger.Debug(ctx, "Position closed", map[string]interface{}{"executionID": executionID, "reason": reason, "pnl": pnl})
	}
	return n == 1, nil
}

// UnannouncedCloses lists closed positions whose close has not been
// published yet, oldest close first.
func (s *Store) UnannouncedCloses(ctx context.Context) ([]*domain.Position, error) {
	query := s.q(`
	SELECT ` + positionColumns + `
	FROM positions
	WHERE status = ? AND close_announced = ?
	ORDER BY closed_at ASC`)

	rows, err := s.db.QueryContext(ctx, query, string(domain.StatusClosed), false)
	if err != nil {
		return nil, fmt.Errorf("%w: unannounced closes: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan position: %v", ports.ErrQueryFailed, err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating position rows: %v", ports.ErrQueryFailed, err)
	}
	return positions, nil
}

// MarkCloseAnnounced records that the close of a position was published.
// Returns false when it was already marked or the position is not closed.
func (s *Store) MarkCloseAnnounced(ctx context.Context, executionID string) (bool, error) {
	query := s.q(`
	UPDATE positions SET close_announced = ?
	WHERE execution_id = ? AND status = ? AND close_announced = ?`)
	res, err := s.db.ExecContext(ctx, query, true, executionID, string(domain.StatusClosed), false)
	if err != nil {
		return false, fmt.Errorf("%w: mark close of %s announced: %v", ports.ErrUpdateFailed, executionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	return n == 1, nil
}
