package sqlstore

import (
	"context"
	"fmt"
	"time"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// Archive writes a closed trade to the journal once per execution id.
func (s *Store) Archive(ctx context.Context, e domain.JournalEntry) (bool, error) {
	query := s.q(`
	INSERT INTO trade_journal (` + journalColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (execution_id) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query,
		e.ExecutionID, e.Symbol, string(e.Side), e.EntryPrice, e.ExitPrice, e.Quantity, e.PnL,
		string(e.CloseReason), utc(e.OpenedAt), utc(e.ClosedAt), utc(e.ArchivedAt))
	if err != nil {
		return false, fmt.Errorf("%w: archive %s: %v", ports.ErrUpdateFailed, e.ExecutionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	if n == 1 {
		s.logger.Debug(ctx, "Trade archived", map[string]interface{}{"executionID": e.ExecutionID, "pnl": e.PnL})
	}
	return n == 1, nil
}

// ClosedTrades returns journal entries closed at or after since, oldest first.
func (s *Store) ClosedTrades(ctx context.Context, since time.Time) ([]domain.JournalEntry, error) {
	query := s.q(`
	SELECT ` + journalColumns + `
	FROM trade_journal
	WHERE closed_at >= ?
	ORDER BY closed_at ASC, execution_id ASC`)

	rows, err := s.db.QueryContext(ctx, query, utc(since))
	if err != nil {
		return nil, fmt.Errorf("%w: closed trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0)
	for rows.Next() {
		e, err := scanJournalEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan journal entry: %v", ports.ErrQueryFailed, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating journal rows: %v", ports.ErrQueryFailed, err)
	}
	return entries, nil
}
