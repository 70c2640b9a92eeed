package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fvgTrader/internal/domain"
)

var candleHeader = []string{"open_time", "symbol", "timeframe", "open", "high", "low", "close", "volume"}

// WriteCandlesToCSV writes candles to filename, replacing it.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteCandles(file, candles); err != nil {
		return err
	}
	return file.Close()
}

// WriteCandles writes a header row and one row per candle. Times are RFC 3339
// in UTC.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		err := writer.Write([]string{
			c.Timestamp.UTC().Format(time.RFC3339),
			c.Symbol,
			c.Timeframe,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandlesFromCSV reads a file written by WriteCandlesToCSV.
func ReadCandlesFromCSV(filename string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCandles(file)
}

// ReadCandles parses the CSV produced by WriteCandles. Columns are matched
// by header name, so their order may differ.
func ReadCandles(r io.Reader) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv: missing header")
	}
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range candleHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", name)
		}
	}

	var candles []domain.Candle
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := parseCandleRow(row, col)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseCandleRow(row []string, col map[string]int) (domain.Candle, error) {
	ts, err := time.Parse(time.RFC3339, row[col["open_time"]])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("open_time: %w", err)
	}
	c := domain.Candle{
		Symbol:    row[col["symbol"]],
		Timeframe: row[col["timeframe"]],
		Timestamp: ts.UTC(),
	}
	if c.Symbol == "" || c.Timeframe == "" {
		return domain.Candle{}, fmt.Errorf("symbol and timeframe are required")
	}
	for _, f := range []struct {
		name string
		dest *float64
	}{
		{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close}, {"volume", &c.Volume},
	} {
		v, err := strconv.ParseFloat(row[col[f.name]], 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dest = v
	}
	return c, nil
}
