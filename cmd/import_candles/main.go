package main

import (
	"context"
	"flag"
	"log"
	"sort"

	"fvgTrader/config"
	"fvgTrader/internal/adapters/logger"
	"fvgTrader/internal/adapters/redisbus"
	"fvgTrader/internal/adapters/sqlstore"
	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/utils"
)

// Imports a candle CSV into the store and announces every series that
// received new rows, so a running analysis stage picks them up.
func main() {
	file := flag.String("file", "", "Candle CSV written by fetch_candles")
	notify := flag.Bool("notify", true, "Publish candles-available for imported series (needs Redis)")
	flag.Parse()
	if *file == "" {
		log.Fatal("FATAL: -file is required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	candles, err := utils.ReadCandlesFromCSV(*file)
	if err != nil {
		log.Fatalf("FATAL: Failed to read %s: %v", *file, err)
	}

	// 3. Initialize Store
	store, err := sqlstore.Open(sqlstore.Config{Driver: cfg.DBDriver, DBPath: cfg.DBPath, DSN: cfg.DBDSN, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize store")
		log.Fatalf("FATAL: Failed to initialize store: %v", err)
	}
	defer store.Close()

	// 4. Initialize Event Bus. The in-memory bus would have no readers here.
	var bus *redisbus.Bus
	if *notify {
		bus, err = redisbus.New(ctx, redisbus.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, MaxLen: cfg.StreamMaxLen})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to connect to Redis")
			log.Fatalf("FATAL: Failed to connect to Redis: %v", err)
		}
		defer bus.Close()
	}

	for _, series := range groupSeries(candles) {
		fields := map[string]interface{}{"symbol": series[0].Symbol, "timeframe": series[0].Timeframe, "rows": len(series)}
		inserted, err := store.SaveCandles(ctx, series)
		if err != nil {
			appLogger.Error(ctx, err, "Import failed", fields)
			log.Fatalf("FATAL: Import failed: %v", err)
		}
		fields["inserted"] = inserted
		appLogger.Info(ctx, "Series imported", fields)
		if inserted == 0 || bus == nil {
			continue
		}
		msg := message.CandlesAvailable{
			Symbol:    series[0].Symbol,
			Timeframe: series[0].Timeframe,
			From:      series[0].Timestamp,
			To:        series[len(series)-1].Timestamp,
			Count:     inserted,
		}
		if _, err := message.Publish(ctx, bus, msg); err != nil {
			appLogger.Error(ctx, err, "Failed to publish candles-available", fields)
		}
	}
}

// groupSeries splits candles by symbol and timeframe, each sorted by time.
func groupSeries(candles []domain.Candle) [][]domain.Candle {
	index := make(map[string]int)
	var out [][]domain.Candle
	for _, c := range candles {
		key := c.Symbol + "|" + c.Timeframe
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], c)
	}
	for _, series := range out {
		sort.Slice(series, func(a, b int) bool { return series[a].Timestamp.Before(series[b].Timestamp) })
	}
	return out
}
