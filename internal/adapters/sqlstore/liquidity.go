package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// SaveLiquidityPool stores a pool unless one of the same type and formation
// time already sits within tolerance×level of it. Exact duplicates written
// concurrently are caught by the table's unique key.
func (s *Store) SaveLiquidityPool(ctx context.Context, pool *domain.LiquidityPool, tolerance float64) (int64, bool, error) {
	band := math.Abs(tolerance * pool.Level)
	var (
		id      int64
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing := s.q(`
		SELECT id FROM liquidity_pools
		WHERE symbol = ? AND timeframe = ? AND pool_type = ? AND formed_at = ? AND ABS(level - ?) <= ?
		ORDER BY id LIMIT 1`)
		err := tx.QueryRowContext(ctx, existing,
			pool.Symbol, pool.Timeframe, string(pool.Type), utc(pool.FormedAt), pool.Level, band).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: lookup pool for %s: %v", ports.ErrQueryFailed, pool.Symbol, err)
		}

		var metadata sql.NullString
		if len(pool.Metadata) > 0 {
			b, err := json.Marshal(pool.Metadata)
			if err != nil {
				return fmt.Errorf("%w: encode pool metadata: %v", ports.ErrInvalidRequest, err)
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}

		insert := s.q(`
		INSERT INTO liquidity_pools (symbol, timeframe, pool_type, level, formed_at, significance,
		                             touches, tapped, tap_time, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, pool_type, formed_at, level) DO NOTHING
		RETURNING id`)
		err = tx.QueryRowContext(ctx, insert,
			pool.Symbol, pool.Timeframe, string(pool.Type), pool.Level, utc(pool.FormedAt), string(pool.Significance),
			pool.Touches, pool.Tapped, nullTime(pool.TapTime), metadata, time.Now().UTC()).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent writer stored the same pool first.
			err = tx.QueryRowContext(ctx, existing,
				pool.Symbol, pool.Timeframe, string(pool.Type), utc(pool.FormedAt), pool.Level, band).Scan(&id)
			if err != nil {
				return fmt.Errorf("%w: lookup pool for %s: %v", ports.ErrQueryFailed, pool.Symbol, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: insert pool for %s: %v", ports.ErrUpdateFailed, pool.Symbol, err)
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	pool.ID = id
	if created {
		s.logger.Debug(ctx, "Liquidity pool created", map[string]interface{}{
			"poolID": id, "symbol": pool.Symbol, "type": pool.Type, "level": pool.Level,
		})
	}
	return id, created, nil
}

// UntappedPools returns pools not yet tapped, ordered by formation then level.
func (s *Store) UntappedPools(ctx context.Context, symbol, timeframe string) ([]*domain.LiquidityPool, error) {
	query := s.q(`
	SELECT ` + poolColumns + `
	FROM liquidity_pools
	WHERE symbol = ? AND timeframe = ? AND tapped = ?
	ORDER BY formed_at ASC, level ASC`)

	rows, err := s.db.QueryContext(ctx, query, symbol, timeframe, false)
	if err != nil {
		return nil, fmt.Errorf("%w: untapped pools for %s %s: %v", ports.ErrQueryFailed, symbol, timeframe, err)
	}
	defer rows.Close()

	pools := make([]*domain.LiquidityPool, 0)
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan pool: %v", ports.ErrQueryFailed, err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating pool rows: %v", ports.ErrQueryFailed, err)
	}
	return pools, nil
}

// MarkPoolTapped sets tapped only if the pool is still untapped.
func (s *Store) MarkPoolTapped(ctx context.Context, id int64, tapTime time.Time) (bool, error) {
	query := s.q(`UPDATE liquidity_pools SET tapped = ?, tap_time = ? WHERE id = ? AND tapped = ?`)
	res, err := s.db.ExecContext(ctx, query, true, utc(tapTime), id, false)
	if err != nil {
		return false, fmt.Errorf("%w: tap pool %d: %v", ports.ErrUpdateFailed, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	return n == 1, nil
}
