package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// FetchCandles pages through klines with open time in [start, end] and
// returns the closed ones, oldest first.
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error) {
	op := "FetchCandles"
	if symbol == "" || timeframe == "" || end.Before(start) {
		return nil, fmt.Errorf("%s: %w: symbol=%q timeframe=%q range=[%s, %s]",
			op, ports.ErrInvalidRequest, symbol, timeframe, start, end)
	}

	now := c.now()
	candles := make([]domain.Candle, 0)
	from := start
	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(c.pageLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			if time.UnixMilli(bk.CloseTime).After(now) {
				continue // still forming
			}
			candle, err := translateKline(bk, symbol, timeframe)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
			}
			candles = append(candles, candle)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < c.pageLimit {
			break
		}
	}

	c.logger.Debug(ctx, op+" completed", map[string]interface{}{
		"symbol": symbol, "timeframe": timeframe, "count": len(candles),
	})
	return candles, nil
}

func translateKline(bk *futures.Kline, symbol, timeframe string) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		Symbol:    symbol, // futures.Kline does not carry the symbol
		Timeframe: timeframe,
		Timestamp: time.UnixMilli(bk.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
